// Package report folds per-file scan results into the overall run result:
// violation tallies per rule, analysis errors counted separately, and the
// process exit status.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"awaitlint/internal/apply"
	"awaitlint/internal/plan"
	"awaitlint/internal/rules"
	"github.com/google/uuid"
)

// Mode distinguishes a preview run from an enforcement run.
type Mode string

const (
	DryRun Mode = "dry-run"
	Apply  Mode = "apply"
)

// FileResult is one file's contribution to the run. Exactly one worker
// produces each FileResult; the aggregator is the single writer that merges
// them.
type FileResult struct {
	Path       string
	Violations []rules.Violation
	Plan       *plan.Plan
	Previews   []apply.Preview
	// Fixed is true when the plan was applied to disk.
	Fixed bool
	// FixExempt marks files scanned for reporting but excluded from
	// automatic fixing by path pattern.
	FixExempt bool
	// Err records a per-file analysis failure (parse, IO, overlap). The
	// file is skipped, the run continues.
	Err error
	// Skipped marks files not processed at all (cancelled run).
	Skipped    bool
	SkipReason string
}

// RunReport is the aggregate outcome of one run. No process-wide mutable
// counters exist; this value is threaded through and merged at the
// aggregator boundary.
type RunReport struct {
	RunID string
	Mode  Mode
	Root  string

	Files []FileResult

	FilesScanned        int
	FilesWithViolations int
	TotalViolations     int
	CountsByKind        map[rules.Kind]int
	// RemainingViolations counts violations not fixed by this run; it
	// drives the exit status.
	RemainingViolations int
	// ErrorCount tallies files the tool failed to analyze, kept separate
	// from the violation tally so CI can tell the two apart.
	ErrorCount   int
	SkippedCount int
}

// NewRunReport creates an empty report for one run.
func NewRunReport(mode Mode, root string) *RunReport {
	return &RunReport{
		RunID:        uuid.NewString(),
		Mode:         mode,
		Root:         root,
		CountsByKind: make(map[rules.Kind]int),
	}
}

// Merge folds one file's result into the aggregate. Only the aggregator
// goroutine calls Merge.
func (r *RunReport) Merge(fr FileResult) {
	r.Files = append(r.Files, fr)
	switch {
	case fr.Skipped:
		r.SkippedCount++
		return
	case fr.Err != nil:
		r.ErrorCount++
		return
	}
	r.FilesScanned++
	if len(fr.Violations) == 0 {
		return
	}
	r.FilesWithViolations++
	r.TotalViolations += len(fr.Violations)
	for _, v := range fr.Violations {
		r.CountsByKind[v.Kind]++
		if !fr.Fixed || !v.Fixable() {
			r.RemainingViolations++
		}
	}
}

// Finalize sorts file results by path so output order is independent of
// worker scheduling.
func (r *RunReport) Finalize() {
	sort.Slice(r.Files, func(i, j int) bool {
		return r.Files[i].Path < r.Files[j].Path
	})
}

// Success reports whether the run ends in the "no violations remain" state.
// Analysis errors are surfaced but do not flip the violation bit.
func (r *RunReport) Success() bool {
	return r.RemainingViolations == 0
}

// ExitCode maps the run outcome to the process exit status.
func (r *RunReport) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}

// WriteHuman renders the per-file listing followed by the summary.
func (r *RunReport) WriteHuman(w io.Writer) error {
	for _, fr := range r.Files {
		switch {
		case fr.Skipped:
			fmt.Fprintf(w, "SKIP  %s: %s\n", fr.Path, fr.SkipReason)
			continue
		case fr.Err != nil:
			fmt.Fprintf(w, "ERROR %s: %v\n", fr.Path, fr.Err)
			continue
		}
		for _, pv := range fr.Previews {
			fmt.Fprintf(w, "%s:%d: [%s] %s.%s\n", pv.Path, pv.Line, pv.Kind, pv.Decl, pv.Method)
			fmt.Fprintf(w, "    - %s\n", pv.OriginalLine)
			if pv.ProposedLine != pv.OriginalLine {
				fmt.Fprintf(w, "    + %s\n", pv.ProposedLine)
			} else {
				fmt.Fprintf(w, "      (detection only, no automatic fix)\n")
			}
		}
		if fr.Fixed {
			fmt.Fprintf(w, "FIXED %s\n", fr.Path)
		} else if fr.FixExempt && len(fr.Violations) > 0 && r.Mode == Apply {
			fmt.Fprintf(w, "EXEMPT %s: reported only, path excluded from fixing\n", fr.Path)
		}
	}

	fmt.Fprintf(w, "\nFiles scanned:         %d\n", r.FilesScanned)
	fmt.Fprintf(w, "Files with violations: %d\n", r.FilesWithViolations)
	fmt.Fprintf(w, "Total violations:      %d\n", r.TotalViolations)
	for _, k := range rules.Kinds() {
		if n := r.CountsByKind[k]; n > 0 {
			fmt.Fprintf(w, "  %-26s %d\n", k.String()+":", n)
		}
	}
	if r.ErrorCount > 0 {
		fmt.Fprintf(w, "Analysis errors:       %d\n", r.ErrorCount)
	}
	if r.SkippedCount > 0 {
		fmt.Fprintf(w, "Skipped (cancelled):   %d\n", r.SkippedCount)
	}
	if r.Mode == Apply {
		fmt.Fprintf(w, "Violations remaining:  %d\n", r.RemainingViolations)
	}
	return nil
}

// jsonFile is the machine-readable projection of a FileResult.
type jsonFile struct {
	Path       string          `json:"path"`
	Violations []jsonViolation `json:"violations,omitempty"`
	Fixed      bool            `json:"fixed,omitempty"`
	FixExempt  bool            `json:"fix_exempt,omitempty"`
	Error      string          `json:"error,omitempty"`
	Skipped    bool            `json:"skipped,omitempty"`
	SkipReason string          `json:"skip_reason,omitempty"`
}

type jsonViolation struct {
	Kind     string `json:"kind"`
	Line     int    `json:"line"`
	Decl     string `json:"declaration"`
	Method   string `json:"method"`
	Original string `json:"original"`
	Proposed string `json:"proposed"`
}

// WriteJSON renders the report for CI consumers.
func (r *RunReport) WriteJSON(w io.Writer) error {
	files := make([]jsonFile, 0, len(r.Files))
	for _, fr := range r.Files {
		jf := jsonFile{
			Path:       fr.Path,
			Fixed:      fr.Fixed,
			FixExempt:  fr.FixExempt,
			Skipped:    fr.Skipped,
			SkipReason: fr.SkipReason,
		}
		if fr.Err != nil {
			jf.Error = fr.Err.Error()
		}
		for _, v := range fr.Violations {
			jf.Violations = append(jf.Violations, jsonViolation{
				Kind:     v.Kind.String(),
				Line:     v.Line,
				Decl:     v.Decl,
				Method:   v.Method,
				Original: v.Original,
				Proposed: v.Proposed,
			})
		}
		files = append(files, jf)
	}

	counts := make(map[string]int, len(r.CountsByKind))
	for k, n := range r.CountsByKind {
		counts[k.String()] = n
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		RunID               string         `json:"run_id"`
		Mode                Mode           `json:"mode"`
		Root                string         `json:"root"`
		Files               []jsonFile     `json:"files"`
		FilesScanned        int            `json:"files_scanned"`
		FilesWithViolations int            `json:"files_with_violations"`
		TotalViolations     int            `json:"total_violations"`
		CountsByKind        map[string]int `json:"counts_by_kind"`
		RemainingViolations int            `json:"remaining_violations"`
		ErrorCount          int            `json:"error_count"`
		SkippedCount        int            `json:"skipped_count"`
		Success             bool           `json:"success"`
	}{
		RunID:               r.RunID,
		Mode:                r.Mode,
		Root:                r.Root,
		Files:               files,
		FilesScanned:        r.FilesScanned,
		FilesWithViolations: r.FilesWithViolations,
		TotalViolations:     r.TotalViolations,
		CountsByKind:        counts,
		RemainingViolations: r.RemainingViolations,
		ErrorCount:          r.ErrorCount,
		SkippedCount:        r.SkippedCount,
		Success:             r.Success(),
	})
}
