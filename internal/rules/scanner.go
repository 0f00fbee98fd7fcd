package rules

import (
	"strings"

	"awaitlint/internal/syntax"
	"go.uber.org/zap"
)

// Options configures the scanner. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	// WrapperSymbol is the deferred-value wrapper type, e.g. Deferred.
	WrapperSymbol string
	// WrapperModule is the canonical module the wrapper is imported from.
	WrapperModule string
	// Lexicon overrides the I/O verb set for rule 2.
	Lexicon []string
}

// DefaultOptions returns the stock wrapper and lexicon.
func DefaultOptions() Options {
	return Options{
		WrapperSymbol: "Deferred",
		WrapperModule: "protocols.deferred",
		Lexicon:       DefaultLexicon(),
	}
}

// Scanner evaluates the three rules against every method signature of every
// interface-marked declaration. Scanning is deterministic: declaration
// order, then signature order, then rule order.
type Scanner struct {
	opts Options
	lex  *lexicon
	log  *zap.Logger
}

// NewScanner creates a Scanner. A nil logger is replaced with a no-op one.
func NewScanner(opts Options, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.WrapperSymbol == "" {
		opts.WrapperSymbol = "Deferred"
	}
	if opts.WrapperModule == "" {
		opts.WrapperModule = "protocols.deferred"
	}
	verbs := opts.Lexicon
	if len(verbs) == 0 {
		verbs = DefaultLexicon()
	}
	return &Scanner{opts: opts, lex: newLexicon(verbs), log: log}
}

// Scan returns the file's violations in stable order. Spans of distinct
// violations never overlap except for the rule-2 signature span enclosing a
// rule-3 reference token; rule 3 carries no edit so the planner never sees
// colliding replacements from one scan.
func (s *Scanner) Scan(sf *syntax.SourceFile) []Violation {
	var out []Violation
	for _, decl := range sf.Decls {
		if !decl.IsInterface {
			continue
		}
		for _, sig := range decl.Methods {
			if sig.IsPropertyAccessor {
				continue
			}
			if v := s.checkAsyncReturn(sf, decl, sig); v != nil {
				out = append(out, *v)
			}
			if v := s.checkSyncIoName(sf, decl, sig); v != nil {
				out = append(out, *v)
			}
			out = append(out, s.checkForwardRefs(sf, decl, sig)...)
		}
	}
	if len(out) > 0 {
		s.log.Debug("scanned file",
			zap.String("file", sf.Path),
			zap.Int("violations", len(out)))
	}
	return out
}

// checkAsyncReturn implements AsyncNonWrappedReturn: an async signature must
// declare a wrapped return type unless it returns no value.
func (s *Scanner) checkAsyncReturn(sf *syntax.SourceFile, decl *syntax.InterfaceDeclaration, sig *syntax.MethodSignature) *Violation {
	if !sig.IsAsync || sig.Return == nil {
		return nil
	}
	original := sig.Return.Text
	wrapped := s.wrapIfNeeded(original)
	if wrapped == original {
		return nil
	}
	return &Violation{
		Kind:           AsyncNonWrappedReturn,
		Path:           sf.Path,
		Line:           sig.Line,
		Decl:           decl.Name,
		Method:         sig.Name,
		Span:           sig.Return.Span,
		Original:       original,
		Proposed:       wrapped,
		RequiredImport: &Import{Symbol: s.opts.WrapperSymbol, Module: s.opts.WrapperModule},
	}
}

// checkSyncIoName implements SyncIoNameShouldBeAsync: a sync signature whose
// name matches the lexicon gets the async marker, with the return wrap
// composed into the same edit.
func (s *Scanner) checkSyncIoName(sf *syntax.SourceFile, decl *syntax.InterfaceDeclaration, sig *syntax.MethodSignature) *Violation {
	if sig.IsAsync || !s.lex.Matches(sig.Name) {
		return nil
	}

	span := sig.DefSpan
	if sig.Return != nil {
		span = syntax.Span{Start: sig.DefSpan.Start, End: sig.Return.Span.End}
	}
	original := sf.SpanText(span)

	var proposed string
	var imp *Import
	if sig.Return == nil {
		proposed = "async " + original
	} else {
		head := sf.SpanText(syntax.Span{Start: span.Start, End: sig.Return.Span.Start})
		wrapped := s.wrapIfNeeded(sig.Return.Text)
		proposed = "async " + head + wrapped
		if wrapped != sig.Return.Text {
			imp = &Import{Symbol: s.opts.WrapperSymbol, Module: s.opts.WrapperModule}
		}
	}

	return &Violation{
		Kind:           SyncIoNameShouldBeAsync,
		Path:           sf.Path,
		Line:           sig.Line,
		Decl:           decl.Name,
		Method:         sig.Name,
		Span:           span,
		Original:       original,
		Proposed:       proposed,
		RequiredImport: imp,
	}
}

// checkForwardRefs implements UnguardedForwardReference. A reference is
// flagged when it names a class defined later in the same file, or a name
// importable only under the TYPE_CHECKING guard, and is written unquoted.
// Files with lazy annotation evaluation are exempt. Detection only.
func (s *Scanner) checkForwardRefs(sf *syntax.SourceFile, decl *syntax.InterfaceDeclaration, sig *syntax.MethodSignature) []Violation {
	if sf.LazyAnnotations {
		return nil
	}
	var out []Violation
	for _, ref := range sig.AnnRefs {
		if ref.Quoted || ref.Name == s.opts.WrapperSymbol {
			continue
		}
		if _, imported := sf.Imported[ref.Name]; imported {
			continue
		}
		forward := false
		if pos, defined := sf.ClassPos[ref.Name]; defined && pos > ref.Span.Start {
			forward = true
		}
		if _, guarded := sf.Guarded[ref.Name]; guarded {
			forward = true
		}
		if !forward {
			continue
		}
		text := sf.SpanText(ref.Span)
		out = append(out, Violation{
			Kind:     UnguardedForwardReference,
			Path:     sf.Path,
			Line:     sf.LineOf(ref.Span.Start),
			Decl:     decl.Name,
			Method:   sig.Name,
			Span:     ref.Span,
			Original: text,
			Proposed: text,
		})
	}
	return out
}

// wrapIfNeeded wraps a return type in the deferred wrapper. Already-wrapped
// types and the no-value marker pass through unchanged.
func (s *Scanner) wrapIfNeeded(ret string) string {
	t := strings.TrimSpace(ret)
	if t == "None" {
		return ret
	}
	if t == s.opts.WrapperSymbol ||
		strings.HasPrefix(t, s.opts.WrapperSymbol+"[") ||
		qualifiedWrapper(t, s.opts.WrapperSymbol) {
		return ret
	}
	return s.opts.WrapperSymbol + "[" + ret + "]"
}

// qualifiedWrapper matches forms like pkg.Deferred[...].
func qualifiedWrapper(t, symbol string) bool {
	head, _, found := strings.Cut(t, "[")
	if !found {
		return false
	}
	return strings.HasSuffix(head, "."+symbol)
}
