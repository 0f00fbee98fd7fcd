package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"awaitlint/internal/apply"
	"awaitlint/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func violation(kind rules.Kind, method string, fixable bool) rules.Violation {
	v := rules.Violation{
		Kind:     kind,
		Path:     "a/protocol_x.py",
		Line:     3,
		Decl:     "Reader",
		Method:   method,
		Original: "bytes",
		Proposed: "bytes",
	}
	if fixable {
		v.Proposed = "Deferred[bytes]"
	}
	return v
}

func TestMergeCounts(t *testing.T) {
	r := NewRunReport(DryRun, ".")
	r.Merge(FileResult{
		Path: "a.py",
		Violations: []rules.Violation{
			violation(rules.AsyncNonWrappedReturn, "fetch", true),
			violation(rules.SyncIoNameShouldBeAsync, "save", true),
		},
	})
	r.Merge(FileResult{Path: "b.py"})
	r.Merge(FileResult{Path: "c.py", Err: errors.New("boom")})
	r.Merge(FileResult{Path: "d.py", Skipped: true, SkipReason: "run cancelled"})

	assert.Equal(t, 2, r.FilesScanned)
	assert.Equal(t, 1, r.FilesWithViolations)
	assert.Equal(t, 2, r.TotalViolations)
	assert.Equal(t, 1, r.CountsByKind[rules.AsyncNonWrappedReturn])
	assert.Equal(t, 1, r.CountsByKind[rules.SyncIoNameShouldBeAsync])
	assert.Equal(t, 1, r.ErrorCount, "errors counted separately from violations")
	assert.Equal(t, 1, r.SkippedCount)
	assert.NotEmpty(t, r.RunID)
}

func TestExitStatus(t *testing.T) {
	t.Run("clean run exits zero", func(t *testing.T) {
		r := NewRunReport(DryRun, ".")
		r.Merge(FileResult{Path: "a.py"})
		assert.True(t, r.Success())
		assert.Equal(t, 0, r.ExitCode())
	})

	t.Run("dry-run with violations exits one", func(t *testing.T) {
		r := NewRunReport(DryRun, ".")
		r.Merge(FileResult{
			Path:       "a.py",
			Violations: []rules.Violation{violation(rules.AsyncNonWrappedReturn, "fetch", true)},
		})
		assert.Equal(t, 1, r.ExitCode())
	})

	t.Run("applied fixes exit zero", func(t *testing.T) {
		r := NewRunReport(Apply, ".")
		r.Merge(FileResult{
			Path:       "a.py",
			Fixed:      true,
			Violations: []rules.Violation{violation(rules.SyncIoNameShouldBeAsync, "save", true)},
		})
		assert.Equal(t, 0, r.ExitCode())
	})

	t.Run("detection-only violations always remain", func(t *testing.T) {
		r := NewRunReport(Apply, ".")
		r.Merge(FileResult{
			Path:  "a.py",
			Fixed: true,
			Violations: []rules.Violation{
				violation(rules.SyncIoNameShouldBeAsync, "save", true),
				violation(rules.UnguardedForwardReference, "render", false),
			},
		})
		assert.Equal(t, 1, r.ExitCode())
		assert.Equal(t, 1, r.RemainingViolations)
	})

	t.Run("analysis errors alone do not flip the violation bit", func(t *testing.T) {
		r := NewRunReport(DryRun, ".")
		r.Merge(FileResult{Path: "a.py", Err: errors.New("unreadable")})
		assert.Equal(t, 0, r.ExitCode())
		assert.Equal(t, 1, r.ErrorCount)
	})
}

func TestFinalizeSortsByPath(t *testing.T) {
	r := NewRunReport(DryRun, ".")
	r.Merge(FileResult{Path: "z.py"})
	r.Merge(FileResult{Path: "a.py"})
	r.Merge(FileResult{Path: "m.py"})
	r.Finalize()
	assert.Equal(t, "a.py", r.Files[0].Path)
	assert.Equal(t, "m.py", r.Files[1].Path)
	assert.Equal(t, "z.py", r.Files[2].Path)
}

func TestWriteHuman(t *testing.T) {
	r := NewRunReport(DryRun, ".")
	r.Merge(FileResult{
		Path:       "a/protocol_x.py",
		Violations: []rules.Violation{violation(rules.AsyncNonWrappedReturn, "fetch", true)},
		Previews: []apply.Preview{{
			Path:         "a/protocol_x.py",
			Line:         3,
			Kind:         "AsyncNonWrappedReturn",
			Decl:         "Reader",
			Method:       "fetch",
			OriginalLine: "    async def fetch(self) -> bytes:",
			ProposedLine: "    async def fetch(self) -> Deferred[bytes]:",
		}},
	})
	r.Merge(FileResult{Path: "a/protocol_bad.py", Err: errors.New("syntax errors")})
	r.Finalize()

	var buf bytes.Buffer
	require.NoError(t, r.WriteHuman(&buf))
	out := buf.String()

	assert.Contains(t, out, "a/protocol_x.py:3: [AsyncNonWrappedReturn] Reader.fetch")
	assert.Contains(t, out, "- "+"    async def fetch(self) -> bytes:")
	assert.Contains(t, out, "+ "+"    async def fetch(self) -> Deferred[bytes]:")
	assert.Contains(t, out, "ERROR a/protocol_bad.py")
	assert.Contains(t, out, "Total violations:      1")
	assert.Contains(t, out, "Analysis errors:       1")
}

func TestWriteJSON(t *testing.T) {
	r := NewRunReport(Apply, "root")
	r.Merge(FileResult{
		Path:       "a.py",
		Fixed:      true,
		Violations: []rules.Violation{violation(rules.SyncIoNameShouldBeAsync, "save", true)},
	})
	r.Finalize()

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "apply", decoded["mode"])
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, float64(1), decoded["total_violations"])
	assert.True(t, strings.Contains(buf.String(), "SyncIoNameShouldBeAsync"))
}
