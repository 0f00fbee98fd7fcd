package apply

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"awaitlint/internal/plan"
	"awaitlint/internal/rules"
	"awaitlint/internal/syntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allRules = plan.RuleSet{AsyncReturns: true, SyncIo: true}

func pipeline(t *testing.T, src string) (*syntax.SourceFile, []rules.Violation, *plan.Plan) {
	t.Helper()
	sf, err := syntax.NewLoader(nil).Load(context.Background(), "protocol_apply_test.py", []byte(src))
	require.NoError(t, err)
	vs := rules.NewScanner(rules.DefaultOptions(), nil).Scan(sf)
	p, err := plan.Build(sf, vs, allRules)
	require.NoError(t, err)
	return sf, vs, p
}

func TestSpliceIdentityWithEmptyPlan(t *testing.T) {
	src := `from typing import Protocol

# A comment that must survive untouched.
class Reader(Protocol):
    async def peek(self) -> None:
        ...


trailing = "whitespace and blank lines preserved"
`
	sf, vs, p := pipeline(t, src)
	assert.Empty(t, vs)
	require.True(t, p.IsEmpty())

	out, err := Splice(sf, p)
	require.NoError(t, err)
	assert.Equal(t, []byte(src), out, "round-trip must be byte-identical")
}

func TestSpliceSyncIoFix(t *testing.T) {
	// Sync I/O name: async marker added, return wrapped, import inserted.
	src := `from typing import Protocol


class Reader(Protocol):
    def read_text(self) -> str:
        ...
`
	want := `from typing import Protocol
from protocols.deferred import Deferred


class Reader(Protocol):
    async def read_text(self) -> Deferred[str]:
        ...
`
	sf, vs, p := pipeline(t, src)
	require.Len(t, vs, 1)

	out, err := Splice(sf, p)
	require.NoError(t, err)
	assert.Equal(t, want, string(out))
}

func TestSpliceAsyncReturnFix(t *testing.T) {
	src := `from typing import Protocol
from protocols.deferred import Deferred


class Fetcher(Protocol):
    async def fetch(self) -> bytes:
        ...
`
	want := `from typing import Protocol
from protocols.deferred import Deferred


class Fetcher(Protocol):
    async def fetch(self) -> Deferred[bytes]:
        ...
`
	sf, _, p := pipeline(t, src)
	out, err := Splice(sf, p)
	require.NoError(t, err)
	assert.Equal(t, want, string(out))
}

func TestSpliceImportAtTopWhenNoImports(t *testing.T) {
	src := `class Reader(Protocol):
    def load(self) -> str:
        ...
`
	sf, err := syntax.NewLoader(nil).Load(context.Background(), "p.py", []byte(src))
	require.NoError(t, err)
	vs := rules.NewScanner(rules.DefaultOptions(), nil).Scan(sf)
	p, err := plan.Build(sf, vs, allRules)
	require.NoError(t, err)

	out, err := Splice(sf, p)
	require.NoError(t, err)
	assert.Equal(t, "from protocols.deferred import Deferred\n", string(out[:40]))
}

func TestApplyIsIdempotent(t *testing.T) {
	src := `from typing import Protocol


class Store(Protocol):
    def save(self, data: bytes) -> bool:
        ...

    async def fetch(self) -> bytes:
        ...
`
	sf, vs, p := pipeline(t, src)
	require.Len(t, vs, 2)

	once, err := Splice(sf, p)
	require.NoError(t, err)

	// Rescan the fixed text: the fixed kinds report nothing further and a
	// second apply is the identity.
	sf2, err := syntax.NewLoader(nil).Load(context.Background(), sf.Path, once)
	require.NoError(t, err)
	vs2 := rules.NewScanner(rules.DefaultOptions(), nil).Scan(sf2)
	assert.Empty(t, vs2)

	p2, err := plan.Build(sf2, vs2, allRules)
	require.NoError(t, err)
	twice, err := Splice(sf2, p2)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestWriteFileAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protocol_x.py")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o640))

	require.NoError(t, WriteFile(path, []byte("new contents")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm(), "mode preserved")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteFileMissingTarget(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "absent.py"), []byte("x"))
	assert.Error(t, err)
}

func TestPreviewViolation(t *testing.T) {
	src := `from typing import Protocol


class Reader(Protocol):
    def read_text(self) -> str:
        ...
`
	sf, vs, _ := pipeline(t, src)
	require.Len(t, vs, 1)

	pv := PreviewViolation(sf, vs[0])
	assert.Equal(t, "SyncIoNameShouldBeAsync", pv.Kind)
	assert.Equal(t, "Reader", pv.Decl)
	assert.Equal(t, "read_text", pv.Method)
	assert.Equal(t, "    def read_text(self) -> str:", pv.OriginalLine)
	assert.Equal(t, "    async def read_text(self) -> Deferred[str]:", pv.ProposedLine)
}

func TestPreviewDetectionOnly(t *testing.T) {
	src := `from typing import Protocol

class R(Protocol):
    async def render(self, page: Page) -> None:
        ...

class Page(Protocol):
    async def body(self) -> None:
        ...
`
	sf, vs, _ := pipeline(t, src)
	require.Len(t, vs, 1)

	pv := PreviewViolation(sf, vs[0])
	assert.Equal(t, pv.OriginalLine, pv.ProposedLine, "no fix proposed")
}
