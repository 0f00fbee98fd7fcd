package syntax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `from typing import Protocol, TYPE_CHECKING
import os.path
import functools

if TYPE_CHECKING:
    from models import Page

class Reader(Protocol):
    def read_text(self) -> str:
        ...

    async def fetch(self) -> bytes:
        ...

    @property
    def get_value(self) -> int:
        ...

    def render(self, page: Page) -> "Document":
        ...

class Codec:
    def encode(self) -> bytes:
        return b""

class Document(Protocol):
    async def save(self) -> None:
        ...
`

func loadSample(t *testing.T, src string) *SourceFile {
	t.Helper()
	sf, err := NewLoader(nil).Load(context.Background(), "protocol_sample.py", []byte(src))
	require.NoError(t, err)
	return sf
}

func TestLoadClassifiesDeclarations(t *testing.T) {
	sf := loadSample(t, sampleFile)

	require.Len(t, sf.Decls, 3)

	reader := sf.Decls[0]
	assert.Equal(t, "Reader", reader.Name)
	assert.True(t, reader.IsInterface)
	require.Len(t, reader.Methods, 4)

	codec := sf.Decls[1]
	assert.Equal(t, "Codec", codec.Name)
	assert.False(t, codec.IsInterface, "concrete classes are not interface-marked")
	assert.Empty(t, codec.Methods, "concrete class bodies are not parsed")

	doc := sf.Decls[2]
	assert.True(t, doc.IsInterface)
}

func TestLoadMethodSignatures(t *testing.T) {
	sf := loadSample(t, sampleFile)
	methods := sf.Decls[0].Methods

	t.Run("sync method with return annotation", func(t *testing.T) {
		sig := methods[0]
		assert.Equal(t, "read_text", sig.Name)
		assert.False(t, sig.IsAsync)
		assert.False(t, sig.IsPropertyAccessor)
		require.NotNil(t, sig.Return)
		assert.Equal(t, "str", sig.Return.Text)
		assert.Equal(t, "str", sf.SpanText(sig.Return.Span))
		assert.Equal(t, "def", sf.SpanText(sig.DefSpan))
		assert.Same(t, sf.Decls[0], sig.Owner)
	})

	t.Run("async method", func(t *testing.T) {
		sig := methods[1]
		assert.Equal(t, "fetch", sig.Name)
		assert.True(t, sig.IsAsync)
		require.NotNil(t, sig.Return)
		assert.Equal(t, "bytes", sig.Return.Text)
	})

	t.Run("property accessor", func(t *testing.T) {
		sig := methods[2]
		assert.Equal(t, "get_value", sig.Name)
		assert.True(t, sig.IsPropertyAccessor)
	})

	t.Run("annotation references", func(t *testing.T) {
		sig := methods[3]
		require.Len(t, sig.AnnRefs, 2)
		assert.Equal(t, "Page", sig.AnnRefs[0].Name)
		assert.False(t, sig.AnnRefs[0].Quoted)
		assert.Equal(t, "Document", sig.AnnRefs[1].Name)
		assert.True(t, sig.AnnRefs[1].Quoted)
	})
}

func TestLoadImportsAndGuards(t *testing.T) {
	sf := loadSample(t, sampleFile)

	assert.Contains(t, sf.Imported, "Protocol")
	assert.Contains(t, sf.Imported, "TYPE_CHECKING")
	assert.Contains(t, sf.Imported, "os", "dotted imports bind the root segment")
	assert.Contains(t, sf.Imported, "functools")
	assert.NotContains(t, sf.Imported, "Page")

	assert.Contains(t, sf.Guarded, "Page")

	assert.Contains(t, sf.ClassPos, "Reader")
	assert.Contains(t, sf.ClassPos, "Codec")
	assert.Less(t, sf.ClassPos["Reader"], sf.ClassPos["Document"])

	// ImportEnd sits just past "import functools".
	assert.Equal(t, "import functools", string(sf.Text[sf.ImportEnd-len("import functools"):sf.ImportEnd]))
	assert.False(t, sf.LazyAnnotations)
}

func TestLoadLazyAnnotations(t *testing.T) {
	sf := loadSample(t, "from __future__ import annotations\n\nclass P:\n    pass\n")
	assert.True(t, sf.LazyAnnotations)
}

func TestLoadNoImports(t *testing.T) {
	sf := loadSample(t, "class P:\n    pass\n")
	assert.Equal(t, 0, sf.ImportEnd)
}

func TestLoadAliasedImports(t *testing.T) {
	sf := loadSample(t, "import numpy as np\nfrom typing import Protocol as Proto\n")
	assert.Contains(t, sf.Imported, "np")
	assert.Contains(t, sf.Imported, "Proto")
	assert.NotContains(t, sf.Imported, "numpy")
}

func TestLoadParseError(t *testing.T) {
	_, err := NewLoader(nil).Load(context.Background(), "broken.py", []byte("class (:\n"))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "broken.py", perr.Path)
}

func TestLineHelpers(t *testing.T) {
	sf := loadSample(t, "a = 1\nb = 2\nc = 3\n")
	assert.Equal(t, 1, sf.LineOf(0))
	assert.Equal(t, 2, sf.LineOf(6))
	assert.Equal(t, "b = 2", sf.LineText(2))
	assert.Equal(t, "c = 3", sf.LineText(3))
}

func TestSpanPredicates(t *testing.T) {
	a := Span{Start: 0, End: 10}
	b := Span{Start: 5, End: 8}
	c := Span{Start: 10, End: 12}
	assert.True(t, a.Overlaps(b))
	assert.True(t, a.Contains(b))
	assert.False(t, a.Overlaps(c), "spans are half-open")
	assert.False(t, b.Contains(a))
}
