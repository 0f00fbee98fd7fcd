// Package syntax holds the span-annotated model of a protocol declaration
// file and the Tree-sitter based loader that builds it. Spans are byte
// offsets into the immutable original text, so any region the planner does
// not touch reserializes byte-identically.
package syntax

import (
	"fmt"
	"sort"
	"strings"
)

// Span is a half-open [Start, End) byte range in the original file text.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// Contains reports whether other lies entirely inside s.
func (s Span) Contains(other Span) bool {
	return s.Start <= other.Start && other.End <= s.End
}

// TypeRef is a return-type (or parameter-type) token with its exact location.
type TypeRef struct {
	Text string
	Span Span
}

// AnnRef is a single identifier referenced inside a signature annotation.
// Quoted refs ("Foo" as a string literal) are lazily evaluated by the target
// language and therefore count as guarded.
type AnnRef struct {
	Name   string
	Span   Span
	Quoted bool
}

// Param is one parameter of a method signature.
type Param struct {
	Name string
	Type string
}

// MethodSignature is one method declared inside an interface-marked class.
type MethodSignature struct {
	Name string
	Line int

	// IsAsync is true for `async def` signatures.
	IsAsync bool
	// IsPropertyAccessor marks property-like accessors, which are exempt
	// from every rule.
	IsPropertyAccessor bool

	Params []Param
	// Return is the declared return-type token, nil when the signature has
	// no annotation.
	Return *TypeRef
	// DefSpan covers exactly the `def` keyword; it is the anchor for the
	// async-marker insertion.
	DefSpan Span
	// AnnRefs lists every identifier referenced by the signature's
	// annotations, in source order.
	AnnRefs []AnnRef

	// Owner is a back-reference only; the declaration owns the signature.
	Owner *InterfaceDeclaration
}

// InterfaceDeclaration is a class declaration carrying the interface
// capability marker (Protocol/ABC base). Concrete classes are recorded with
// IsInterface=false and skipped by the scanner.
type InterfaceDeclaration struct {
	Name        string
	Line        int
	IsInterface bool
	Methods     []*MethodSignature
}

// SourceFile is the parsed model of one declaration file. Text is never
// mutated; edits always produce a new buffer.
type SourceFile struct {
	Path string
	Text []byte

	Decls []*InterfaceDeclaration

	// ImportEnd is the byte offset just past the last top-level import
	// statement, or 0 when the file has none. New imports anchor here.
	ImportEnd int
	// Imported holds every name bound by an unguarded top-level import.
	Imported map[string]struct{}
	// Guarded holds names bound only inside `if TYPE_CHECKING:` blocks.
	Guarded map[string]struct{}
	// ClassPos maps every class name defined in the file to the byte
	// offset of its definition, used for forward-reference detection.
	ClassPos map[string]int
	// LazyAnnotations is true when the file carries
	// `from __future__ import annotations`; forward references are then
	// legal everywhere and rule 3 does not apply.
	LazyAnnotations bool

	lineStarts []int
}

// indexLines precomputes line start offsets for LineOf/LineText.
func (sf *SourceFile) indexLines() {
	sf.lineStarts = sf.lineStarts[:0]
	sf.lineStarts = append(sf.lineStarts, 0)
	for i, b := range sf.Text {
		if b == '\n' {
			sf.lineStarts = append(sf.lineStarts, i+1)
		}
	}
}

// LineOf returns the 1-based line number containing the byte offset.
func (sf *SourceFile) LineOf(offset int) int {
	if len(sf.lineStarts) == 0 {
		sf.indexLines()
	}
	n := sort.Search(len(sf.lineStarts), func(i int) bool {
		return sf.lineStarts[i] > offset
	})
	return n
}

// LineText returns the text of a 1-based line without its terminator.
func (sf *SourceFile) LineText(line int) string {
	if len(sf.lineStarts) == 0 {
		sf.indexLines()
	}
	if line < 1 || line > len(sf.lineStarts) {
		return ""
	}
	start := sf.lineStarts[line-1]
	end := len(sf.Text)
	if line < len(sf.lineStarts) {
		end = sf.lineStarts[line] - 1
	}
	return strings.TrimRight(string(sf.Text[start:end]), "\r")
}

// SpanText returns the original text covered by a span.
func (sf *SourceFile) SpanText(s Span) string {
	return string(sf.Text[s.Start:s.End])
}

// ParseError reports a file the loader could not turn into a model. The
// file is skipped and recorded as a scan-level warning; it never aborts the
// run.
type ParseError struct {
	Path  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }
