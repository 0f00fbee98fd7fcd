// Package plan converts a file's violation list into a minimal, ordered,
// non-overlapping edit plan plus deduplicated import insertions.
package plan

import (
	"fmt"
	"sort"

	"awaitlint/internal/rules"
	"awaitlint/internal/syntax"
)

// Edit replaces one span of the original text.
type Edit struct {
	Span        syntax.Span
	Replacement string
}

// Insertion adds text at a zero-width anchor in the original text. The
// rendered line terminator is chosen at apply time based on position.
type Insertion struct {
	At   int
	Text string
}

// Plan is the complete set of textual changes for one file. Edits are
// sorted by start offset and guaranteed non-overlapping; Imports hold at
// most one insertion per distinct import statement.
type Plan struct {
	Path    string
	Edits   []Edit
	Imports []Insertion
}

// IsEmpty reports whether applying the plan would be the identity
// transform.
func (p *Plan) IsEmpty() bool {
	return len(p.Edits) == 0 && len(p.Imports) == 0
}

// OverlappingEditError reports two planned replacements colliding on the
// same bytes, which would corrupt the file if applied independently. It is
// fatal to that file's apply step only.
type OverlappingEditError struct {
	Path string
	A, B syntax.Span
}

func (e *OverlappingEditError) Error() string {
	return fmt.Sprintf("%s: overlapping edits [%d,%d) and [%d,%d)",
		e.Path, e.A.Start, e.A.End, e.B.Start, e.B.End)
}

// RuleSet selects which rules may produce edits. The forward-reference
// rule is detection-only and has no member here.
type RuleSet struct {
	AsyncReturns bool
	SyncIo       bool
}

// Allows reports whether a violation kind is enabled for fixing.
func (rs RuleSet) Allows(k rules.Kind) bool {
	switch k {
	case rules.AsyncNonWrappedReturn:
		return rs.AsyncReturns
	case rules.SyncIoNameShouldBeAsync:
		return rs.SyncIo
	default:
		return false
	}
}

// Build turns violations into a Plan for the requested rule set. With no
// rules requested the plan is empty and applying it is the identity. Only
// violations whose proposed text differs from the original produce edits;
// when two fixes land on the same signature the edit covering the union
// span wins, because the scanner composes the inner fix into the enclosing
// one. Import insertions are deduplicated and skipped when the file already
// imports the symbol.
func Build(sf *syntax.SourceFile, violations []rules.Violation, requested RuleSet) (*Plan, error) {
	p := &Plan{Path: sf.Path}

	var edits []Edit
	var needed []rules.Import
	for _, v := range violations {
		if !v.Fixable() || !requested.Allows(v.Kind) {
			continue
		}
		edits = append(edits, Edit{Span: v.Span, Replacement: v.Proposed})
		if v.RequiredImport != nil {
			needed = append(needed, *v.RequiredImport)
		}
	}

	sort.Slice(edits, func(i, j int) bool {
		if edits[i].Span.Start != edits[j].Span.Start {
			return edits[i].Span.Start < edits[j].Span.Start
		}
		return edits[i].Span.End > edits[j].Span.End
	})

	merged, err := mergeOverlaps(sf.Path, edits)
	if err != nil {
		return nil, err
	}
	p.Edits = merged

	if len(merged) > 0 {
		p.Imports = importInsertions(sf, needed)
	}
	return p, nil
}

// mergeOverlaps enforces span disjointness. An edit wholly contained in a
// neighbour is dropped in favour of the containing edit; a partial overlap
// has no safe resolution and fails the plan.
func mergeOverlaps(path string, edits []Edit) ([]Edit, error) {
	var out []Edit
	for _, e := range edits {
		if len(out) == 0 {
			out = append(out, e)
			continue
		}
		last := out[len(out)-1]
		switch {
		case !last.Span.Overlaps(e.Span):
			out = append(out, e)
		case last.Span.Contains(e.Span):
			// The containing replacement already composes the inner fix.
		default:
			return nil, &OverlappingEditError{Path: path, A: last.Span, B: e.Span}
		}
	}
	return out, nil
}

// importInsertions deduplicates required imports and anchors each new one
// after the last existing top-level import statement, or at the top of the
// file when there is none.
func importInsertions(sf *syntax.SourceFile, needed []rules.Import) []Insertion {
	seen := make(map[rules.Import]struct{})
	var out []Insertion
	for _, imp := range needed {
		if _, dup := seen[imp]; dup {
			continue
		}
		seen[imp] = struct{}{}
		if _, present := sf.Imported[imp.Symbol]; present {
			continue
		}
		out = append(out, Insertion{At: sf.ImportEnd, Text: imp.Statement()})
	}
	return out
}
