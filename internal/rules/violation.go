// Package rules classifies method signatures inside interface-marked
// declarations against the async-contract rules and emits violations with
// exact spans and proposed replacement text.
package rules

import (
	"fmt"

	"awaitlint/internal/syntax"
)

// Kind identifies one violation rule.
type Kind int

const (
	// AsyncNonWrappedReturn: an async signature whose return type is not
	// wrapped in the deferred-value wrapper.
	AsyncNonWrappedReturn Kind = iota
	// SyncIoNameShouldBeAsync: a sync signature whose name matches the I/O
	// verb lexicon.
	SyncIoNameShouldBeAsync
	// UnguardedForwardReference: a signature references a not-yet-defined
	// symbol outside a type-checking guard. Detection only; no fix.
	UnguardedForwardReference
)

var kindNames = map[Kind]string{
	AsyncNonWrappedReturn:     "AsyncNonWrappedReturn",
	SyncIoNameShouldBeAsync:   "SyncIoNameShouldBeAsync",
	UnguardedForwardReference: "UnguardedForwardReference",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Kinds lists every rule in evaluation order.
func Kinds() []Kind {
	return []Kind{AsyncNonWrappedReturn, SyncIoNameShouldBeAsync, UnguardedForwardReference}
}

// Import names a symbol plus the canonical module it is imported from.
type Import struct {
	Symbol string
	Module string
}

// Statement renders the import line without a terminator.
func (i Import) Statement() string {
	return fmt.Sprintf("from %s import %s", i.Module, i.Symbol)
}

// Violation is one rule hit on one signature. Original and Proposed cover
// exactly the Span; a detection-only violation has Proposed == Original and
// no RequiredImport.
type Violation struct {
	Kind     Kind
	Path     string
	Line     int
	Decl     string
	Method   string
	Span     syntax.Span
	Original string
	Proposed string
	// RequiredImport is set when the fix needs the wrapper symbol and is
	// nil otherwise.
	RequiredImport *Import
}

// Fixable reports whether the violation carries an applicable edit.
func (v Violation) Fixable() bool {
	return v.Proposed != v.Original
}
