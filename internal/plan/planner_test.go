package plan

import (
	"context"
	"testing"

	"awaitlint/internal/rules"
	"awaitlint/internal/syntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allRules = RuleSet{AsyncReturns: true, SyncIo: true}

func loadAndScan(t *testing.T, src string) (*syntax.SourceFile, []rules.Violation) {
	t.Helper()
	sf, err := syntax.NewLoader(nil).Load(context.Background(), "protocol_plan_test.py", []byte(src))
	require.NoError(t, err)
	return sf, rules.NewScanner(rules.DefaultOptions(), nil).Scan(sf)
}

func TestBuildEmptyWithoutRequestedRules(t *testing.T) {
	sf, vs := loadAndScan(t, `from typing import Protocol

class F(Protocol):
    async def fetch(self) -> bytes:
        ...
`)
	require.NotEmpty(t, vs)

	p, err := Build(sf, vs, RuleSet{})
	require.NoError(t, err)
	assert.True(t, p.IsEmpty(), "no requested rules means an identity plan")
}

func TestBuildEmptyIffNoViolations(t *testing.T) {
	sf, vs := loadAndScan(t, `from typing import Protocol
from protocols.deferred import Deferred

class F(Protocol):
    async def fetch(self) -> Deferred[bytes]:
        ...
`)
	assert.Empty(t, vs)

	p, err := Build(sf, vs, allRules)
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
}

func TestBuildRespectsRuleSelection(t *testing.T) {
	src := `from typing import Protocol

class F(Protocol):
    async def fetch(self) -> bytes:
        ...

    def save(self) -> str:
        ...
`
	sf, vs := loadAndScan(t, src)
	require.Len(t, vs, 2)

	t.Run("async returns only", func(t *testing.T) {
		p, err := Build(sf, vs, RuleSet{AsyncReturns: true})
		require.NoError(t, err)
		require.Len(t, p.Edits, 1)
		assert.Equal(t, "Deferred[bytes]", p.Edits[0].Replacement)
	})

	t.Run("sync io only", func(t *testing.T) {
		p, err := Build(sf, vs, RuleSet{SyncIo: true})
		require.NoError(t, err)
		require.Len(t, p.Edits, 1)
		assert.Equal(t, "async def save(self) -> Deferred[str]", p.Edits[0].Replacement)
	})

	t.Run("both", func(t *testing.T) {
		p, err := Build(sf, vs, allRules)
		require.NoError(t, err)
		require.Len(t, p.Edits, 2)
		assert.Less(t, p.Edits[0].Span.Start, p.Edits[1].Span.Start, "edits sorted by offset")
	})
}

func TestImportDedup(t *testing.T) {
	// Several violations all needing the wrapper yield exactly one
	// insertion.
	src := `from typing import Protocol

class F(Protocol):
    async def fetch(self) -> bytes:
        ...

    def load(self) -> str:
        ...

    def save(self) -> int:
        ...
`
	sf, vs := loadAndScan(t, src)
	require.Len(t, vs, 3)

	p, err := Build(sf, vs, allRules)
	require.NoError(t, err)
	require.Len(t, p.Imports, 1)
	assert.Equal(t, "from protocols.deferred import Deferred", p.Imports[0].Text)
	assert.Equal(t, sf.ImportEnd, p.Imports[0].At)
}

func TestImportSkippedWhenPresent(t *testing.T) {
	sf, vs := loadAndScan(t, `from typing import Protocol
from protocols.deferred import Deferred

class F(Protocol):
    async def fetch(self) -> bytes:
        ...
`)
	p, err := Build(sf, vs, allRules)
	require.NoError(t, err)
	assert.Len(t, p.Edits, 1)
	assert.Empty(t, p.Imports)
}

func TestDetectionOnlyViolationsProduceNoEdits(t *testing.T) {
	sf, vs := loadAndScan(t, `from typing import Protocol

class R(Protocol):
    async def render(self, page: Page) -> None:
        ...

class Page(Protocol):
    async def body(self) -> None:
        ...
`)
	require.Len(t, vs, 1)
	require.Equal(t, rules.UnguardedForwardReference, vs[0].Kind)

	p, err := Build(sf, vs, allRules)
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
}

func TestMergeContainedEdit(t *testing.T) {
	sf := &syntax.SourceFile{Path: "x.py", Text: []byte("0123456789")}
	edits := []Edit{
		{Span: syntax.Span{Start: 0, End: 8}, Replacement: "outer"},
		{Span: syntax.Span{Start: 2, End: 5}, Replacement: "inner"},
	}
	merged, err := mergeOverlaps(sf.Path, edits)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "outer", merged[0].Replacement)
}

func TestMergePartialOverlapFails(t *testing.T) {
	edits := []Edit{
		{Span: syntax.Span{Start: 0, End: 5}, Replacement: "a"},
		{Span: syntax.Span{Start: 3, End: 8}, Replacement: "b"},
	}
	_, err := mergeOverlaps("x.py", edits)
	var oerr *OverlappingEditError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, "x.py", oerr.Path)
}
