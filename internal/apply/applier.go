// Package apply executes an edit plan: either rendering a dry-run preview
// or splicing a new buffer and writing it back atomically. Detection and
// planning are shared by both modes; only the final side-effecting step
// differs.
package apply

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"awaitlint/internal/plan"
	"awaitlint/internal/rules"
	"awaitlint/internal/syntax"
)

// Splice applies a plan to the file's original text and returns the new
// buffer. The original is never mutated; with an empty plan the result is a
// byte-identical copy. Overlap is re-checked as a final guard before any
// bytes move.
func Splice(sf *syntax.SourceFile, p *plan.Plan) ([]byte, error) {
	type piece struct {
		span syntax.Span
		text string
	}
	pieces := make([]piece, 0, len(p.Edits)+len(p.Imports))
	for _, e := range p.Edits {
		pieces = append(pieces, piece{span: e.Span, text: e.Replacement})
	}
	for _, ins := range p.Imports {
		text := "\n" + ins.Text
		if ins.At == 0 {
			text = ins.Text + "\n"
		}
		pieces = append(pieces, piece{span: syntax.Span{Start: ins.At, End: ins.At}, text: text})
	}
	sort.Slice(pieces, func(i, j int) bool {
		return pieces[i].span.Start < pieces[j].span.Start
	})

	out := make([]byte, 0, len(sf.Text)+64)
	cursor := 0
	for _, pc := range pieces {
		if pc.span.Start < cursor {
			return nil, &plan.OverlappingEditError{
				Path: sf.Path,
				A:    syntax.Span{Start: cursor, End: cursor},
				B:    pc.span,
			}
		}
		if pc.span.End > len(sf.Text) {
			return nil, fmt.Errorf("%s: edit span [%d,%d) exceeds file length %d",
				sf.Path, pc.span.Start, pc.span.End, len(sf.Text))
		}
		out = append(out, sf.Text[cursor:pc.span.Start]...)
		out = append(out, pc.text...)
		cursor = pc.span.End
	}
	out = append(out, sf.Text[cursor:]...)
	return out, nil
}

// WriteFile replaces path with data all-or-nothing: the buffer lands in a
// temp file in the same directory and is renamed over the original, so a
// failure leaves the file untouched.
func WriteFile(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, info.Mode()); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Preview is the structured dry-run rendering of one violation.
type Preview struct {
	Path         string
	Line         int
	Kind         string
	Decl         string
	Method       string
	OriginalLine string
	ProposedLine string
}

// PreviewViolation renders the before/after line text for one violation
// without touching disk.
func PreviewViolation(sf *syntax.SourceFile, v rules.Violation) Preview {
	pv := Preview{
		Path:   sf.Path,
		Line:   v.Line,
		Kind:   v.Kind.String(),
		Decl:   v.Decl,
		Method: v.Method,
	}
	pv.OriginalLine = sf.LineText(v.Line)

	// Rebuild only the affected line with the replacement spliced in. Spans
	// on declaration files are single-line in practice; a multi-line span
	// falls back to splicing within the first line's bounds.
	lineStart := v.Span.Start - columnOf(sf, v.Span.Start)
	lineEnd := lineStart + len(pv.OriginalLine)
	if v.Span.End <= lineEnd {
		pv.ProposedLine = string(sf.Text[lineStart:v.Span.Start]) + v.Proposed + string(sf.Text[v.Span.End:lineEnd])
	} else {
		pv.ProposedLine = string(sf.Text[lineStart:v.Span.Start]) + v.Proposed
	}
	return pv
}

func columnOf(sf *syntax.SourceFile, offset int) int {
	col := 0
	for i := offset - 1; i >= 0 && sf.Text[i] != '\n'; i-- {
		col++
	}
	return col
}
