// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pychunk/pychunk/internal/chunk"
	"github.com/pychunk/pychunk/internal/emit"
)

type graph map[string][]string

func (g graph) deps(m string) []string { return g[m] }

func storeInput(t *testing.T, specs ...chunk.Spec) (Input, *chunk.Assignment) {
	t.Helper()
	order := []string{"models/product.py", "services/store.py", "config/empty.py", "app.py"}
	g := graph{
		"services/store.py": {"models/product.py"},
		"app.py":            {"services/store.py", "config/empty.py"},
	}
	a, err := chunk.Assign(chunk.Input{Modules: order, Deps: g.deps, Entry: "app.py", Specs: specs})
	require.NoError(t, err)
	return Input{Version: 1700000000, Assignment: a, Deps: g.deps, Ext: "py"}, a
}

func TestGenerate_ChunkImports(t *testing.T) {
	t.Parallel()

	in, a := storeInput(t,
		chunk.Spec{Name: "main", Includes: []string{"services/"}},
		chunk.Spec{Name: "models", Includes: []string{"models/.*"}},
	)
	in.Outputs = []emit.Output{
		{Chunk: "main", File: "main.0123abcd.py"},
		{Chunk: "models", File: "models.89abcdef.py"},
	}
	m := Generate(in)

	assert.Equal(t, int64(1700000000), m.Version)
	require.Len(t, m.Chunks, 2)
	assert.Equal(t, []string{"models"}, m.Chunks["main"].Imports)
	assert.Equal(t, []string{}, m.Chunks["models"].Imports)
	assert.Equal(t, a.Members["main"], m.Chunks["main"].Modules)
	assert.Equal(t, "models.89abcdef.py", m.FileMap["models.py"])
	assert.Equal(t, "main.0123abcd.py", m.FileMap["main.py"])

	c, ok := m.ChunkFor("models/product.py")
	assert.True(t, ok)
	assert.Equal(t, "models", c)
}

func TestGenerate_DroppedChunkIsInvisible(t *testing.T) {
	t.Parallel()

	in, a := storeInput(t,
		chunk.Spec{Name: "models", Includes: []string{"models/.*"}},
		chunk.Spec{Name: "config", Includes: []string{"config/"}},
		chunk.Spec{Name: "ghost", Includes: []string{"nothing/"}},
	)
	require.False(t, a.Has("ghost"), "a chunk matching no module is never registered")
	require.True(t, a.Has("config"))

	// config produced no output, as the emitter reports an empty chunk.
	a.Drop("config")
	in.Outputs = []emit.Output{
		{Chunk: "main", File: "main.0123abcd.py"},
		{Chunk: "models", File: "models.89abcdef.py"},
	}
	m := Generate(in)

	assert.NotContains(t, m.Chunks, "config")
	assert.NotContains(t, m.Chunks, "ghost")
	assert.NotContains(t, m.FileMap, "config.py")
	assert.NotContains(t, m.ModuleToChunk, "config/empty.py")
	for name, e := range m.Chunks {
		assert.NotContains(t, e.Imports, "config", name)
		assert.NotContains(t, e.Imports, "ghost", name)
	}
}

func TestGenerate_ChunkWithoutOutputIsSkipped(t *testing.T) {
	t.Parallel()

	in, _ := storeInput(t, chunk.Spec{Name: "models", Includes: []string{"models/.*"}})
	in.Outputs = []emit.Output{{Chunk: "main", File: "main.0123abcd.py"}}
	m := Generate(in)

	require.Len(t, m.Chunks, 1)
	assert.Empty(t, m.Chunks["main"].Imports)
}

func TestMarshal_Layout(t *testing.T) {
	t.Parallel()

	in, _ := storeInput(t)
	in.Outputs = []emit.Output{{Chunk: "main", File: "main.0123abcd.py"}}
	b, err := Marshal(Generate(in))
	require.NoError(t, err)

	s := string(b)
	assert.True(t, strings.HasPrefix(s, "{\n  \"version\": 1700000000,\n  \"chunks\": {\n"))
	assert.True(t, strings.HasSuffix(s, "}\n"))
	assert.Contains(t, s, `"imports": []`)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, key := range []string{"version", "chunks", "moduleToChunk", "fileMap"} {
		assert.Contains(t, raw, key)
	}
}

func TestWriteRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in, _ := storeInput(t, chunk.Spec{Name: "models", Includes: []string{"models/.*"}})
	in.Outputs = []emit.Output{
		{Chunk: "main", File: "main.0123abcd.py"},
		{Chunk: "models", File: "models.89abcdef.py"},
	}
	want := Generate(in)

	path, err := Write(dir, want)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestRead_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for name, body := range map[string]string{"garbage.json": "not json", "empty.json": "{}"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Read(path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalid), name)
	}

	_, err := Read(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNames_LoadOrder(t *testing.T) {
	t.Parallel()

	m := &Manifest{Chunks: map[string]Entry{
		"main":   {Imports: []string{"models", "utils"}},
		"models": {Imports: []string{"utils"}},
		"utils":  {Imports: []string{}},
		"extra":  {Imports: []string{}},
	}}
	assert.Equal(t, []string{"extra", "utils", "models", "main"}, m.Names())

	m.Chunks["utils"] = Entry{Imports: []string{"main"}}
	assert.ElementsMatch(t, []string{"extra", "main", "models", "utils"}, m.Names())
}
