// SPDX-License-Identifier: MPL-2.0

package bundler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pychunk/pychunk/internal/chunk"
	"github.com/pychunk/pychunk/internal/config"
	"github.com/pychunk/pychunk/internal/dag"
	"github.com/pychunk/pychunk/internal/depgraph"
	"github.com/pychunk/pychunk/internal/issue"
	"github.com/pychunk/pychunk/internal/manifest"
	"github.com/pychunk/pychunk/internal/minify"
	"github.com/pychunk/pychunk/internal/testutil"
)

var fixedNow = func() time.Time { return time.Unix(1700000000, 0) }

var usersProject = map[string]string{
	"app.py": `import os
from models.user import User
from utils.string_helpers import slugify

print(slugify(User("Ada Lovelace").name), os.sep)
`,
	"models/user.py": `from utils.string_helpers import slugify


class User:
    def __init__(self, name):
        self.name = name
        self.slug = slugify(name)
`,
	"utils/string_helpers.py": `import re


def slugify(text):
    return re.sub(r"\W+", "-", text).strip("-").lower()
`,
}

var storeProject = map[string]string{
	"app.py": `from services.store import Store

print(Store().first())
`,
	"services/store.py": `from models.product import Product


class Store:
    def first(self):
        return Product("widget").name
`,
	"models/product.py": `class Product:
    def __init__(self, name):
        self.name = name
`,
}

var storeChunks = []chunk.Spec{
	{Name: "main", Includes: []string{"services/"}},
	{Name: "models", Includes: []string{"models/.*"}},
}

func TestBuild_SingleDefaultChunk(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, usersProject)
	st, err := Build(t.Context(), Options{Entry: filepath.Join(root, "app.py"), Now: fixedNow})
	require.NoError(t, err)

	rel := make([]string, 0, len(st.Sorted))
	for _, p := range st.Sorted {
		rel = append(rel, st.Graph.Rel(p))
	}
	assert.Equal(t, []string{"utils/string_helpers.py", "models/user.py", "app.py"}, rel)

	require.Len(t, st.Outputs, 1)
	assert.Equal(t, "main", st.Outputs[0].Chunk)
	assert.Equal(t, filepath.Join(root, "dist"), st.Options.OutDir)

	m := st.Manifest
	assert.Equal(t, int64(1700000000), m.Version)
	require.Contains(t, m.Chunks, "main")
	assert.Empty(t, m.Chunks["main"].Imports)
	assert.Equal(t, []string{"utils/string_helpers.py", "models/user.py", "app.py"}, m.Chunks["main"].Modules)
	assert.Equal(t, "main", m.ModuleToChunk["models/user.py"])
	assert.Equal(t, st.Outputs[0].File, m.FileMap["main.py"])

	text, err := os.ReadFile(st.Outputs[0].Path)
	require.NoError(t, err)
	assert.NotContains(t, string(text), "from models")
	assert.NotContains(t, string(text), "from utils")

	onDisk, err := manifest.Read(st.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, m, onDisk)
	assert.Equal(t, st.TotalSize(), st.Outputs[0].Size)
	assert.Equal(t, 3, st.ModuleCount())
}

func TestBuild_CrossChunkImport(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, storeProject)
	st, err := Build(t.Context(), Options{
		Entry:  filepath.Join(root, "app.py"),
		Chunks: storeChunks,
		Now:    fixedNow,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"models"}, st.Manifest.Chunks["main"].Imports)
	assert.Empty(t, st.Manifest.Chunks["models"].Imports)
	assert.Equal(t, "models", st.Manifest.ModuleToChunk["models/product.py"])

	var mainOut, modelsOut string
	for _, o := range st.Outputs {
		switch o.Chunk {
		case "main":
			mainOut = o.Path
		case "models":
			modelsOut = o.File
		}
	}
	require.NotEmpty(t, modelsOut)
	text, err := os.ReadFile(mainOut)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(text), `__load_chunk__("models.`))
	assert.Contains(t, string(text), strings.TrimSuffix(modelsOut, ".py"))
}

func TestBuild_OverlappingChunksAssignEachModuleOnce(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, storeProject)
	st, err := Build(t.Context(), Options{
		Entry: filepath.Join(root, "app.py"),
		Chunks: []chunk.Spec{
			{Name: "models", Includes: []string{"models/"}},
			{Name: "catalog", Includes: []string{"models/product"}},
		},
		Now: fixedNow,
	})
	require.NoError(t, err)

	assert.Equal(t, "catalog", st.Manifest.ModuleToChunk["models/product.py"])
	owners := 0
	for name, c := range st.Manifest.Chunks {
		for _, m := range c.Modules {
			if m == "models/product.py" {
				owners++
				assert.Equal(t, "catalog", name)
			}
		}
	}
	assert.Equal(t, 1, owners)
	assert.NotContains(t, st.Manifest.Chunks, "models")
	assert.Equal(t, []string{"catalog"}, st.Manifest.Chunks["main"].Imports)
}

func TestBuild_DroppedChunkLeavesNoManifestEntries(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, map[string]string{
		"app.py":           "from reexports.api import thing\n\nprint(thing)\n",
		"reexports/api.py": "from core.things import thing\n",
		"core/things.py":   "thing = 42\n",
	})
	st, err := Build(t.Context(), Options{
		Entry:  filepath.Join(root, "app.py"),
		Chunks: []chunk.Spec{{Name: "reexports", Includes: []string{"reexports/"}}},
		Now:    fixedNow,
	})
	require.NoError(t, err)

	m := st.Manifest
	assert.Equal(t, []string{"main"}, m.Names())
	assert.NotContains(t, m.Chunks, "reexports")
	assert.NotContains(t, m.FileMap, "reexports.py")
	assert.NotContains(t, m.ModuleToChunk, "reexports/api.py")
	assert.Equal(t, "main", m.ModuleToChunk["core/things.py"])
	assert.Empty(t, m.Chunks["main"].Imports)
}

func TestBuild_EntryPointsAreRelativeToRoot(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, storeProject)
	st, err := Build(t.Context(), Options{
		Entry: filepath.Join(root, "app.py"),
		Chunks: []chunk.Spec{
			{Name: "main", Includes: []string{"services/"}},
			{Name: "catalog", EntryPoints: []string{"models/product.py"}},
		},
		Now: fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, "catalog", st.Manifest.ModuleToChunk["models/product.py"])
}

func TestBuild_Cycle(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, map[string]string{
		"app.py": "import a\n",
		"a.py":   "import b\n",
		"b.py":   "import a\n",
	})
	st, err := Build(t.Context(), Options{Entry: filepath.Join(root, "app.py")})
	require.Error(t, err)

	var cycleErr *dag.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, cycleErr.Cycle, "a.py")
	assert.Contains(t, cycleErr.Cycle, "b.py")
	assert.Equal(t, issue.DependencyCycleId, issue.IssueOf(err))

	assert.Nil(t, st.Manifest)
	_, statErr := os.Stat(filepath.Join(root, "dist", manifest.FileName))
	assert.True(t, os.IsNotExist(statErr), "no manifest after a failed build")
}

func TestBuild_MissingEntry(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, err := Build(t.Context(), Options{Entry: filepath.Join(root, "missing.py")})
	require.ErrorIs(t, err, depgraph.ErrEntryNotFound)
	assert.Equal(t, issue.EntryNotFoundId, issue.IssueOf(err))

	_, err = Build(t.Context(), Options{})
	require.ErrorIs(t, err, ErrNoEntry)
}

func TestBuild_InvalidPattern(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, usersProject)
	_, err := Build(t.Context(), Options{
		Entry:  filepath.Join(root, "app.py"),
		Chunks: []chunk.Spec{{Name: "broken", Includes: []string{"models/("}}},
	})
	require.ErrorIs(t, err, chunk.ErrInvalidPattern)
	assert.Equal(t, issue.InvalidChunkPatternId, issue.IssueOf(err))
}

func TestBuild_Canceled(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, usersProject)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := Build(ctx, Options{Entry: filepath.Join(root, "app.py")})
	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(root, "dist", manifest.FileName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuild_PruneKeepsCurrentOutputs(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, usersProject)
	opts := Options{Entry: filepath.Join(root, "app.py"), Prune: true, Now: fixedNow}

	first, err := Build(t.Context(), opts)
	require.NoError(t, err)
	assert.Empty(t, first.Pruned)

	path := filepath.Join(root, "models", "user.py")
	require.NoError(t, os.WriteFile(path, []byte("class User:\n    pass\n"), 0o644))

	second, err := Build(t.Context(), opts)
	require.NoError(t, err)
	require.NotEqual(t, first.Outputs[0].File, second.Outputs[0].File)
	assert.Equal(t, []string{first.Outputs[0].File}, second.Pruned)
	assert.FileExists(t, second.Outputs[0].Path)
	assert.NoFileExists(t, first.Outputs[0].Path)
}

func TestBuild_SharedSourceCacheReadsEachModuleOnce(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, storeProject)
	cache, err := depgraph.NewSourceCache(16)
	require.NoError(t, err)

	_, err = Build(t.Context(), Options{Entry: filepath.Join(root, "app.py"), Chunks: storeChunks, Reader: cache})
	require.NoError(t, err)
	assert.Equal(t, int64(3), cache.DiskReads(), "discovery and emission share one read per module")
}

type blankLineMinifier struct{}

func (blankLineMinifier) Minify(_ context.Context, src string) (string, error) {
	return strings.ReplaceAll(src, "\n\n", "\n"), nil
}

func TestBuild_Minifier(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, usersProject)
	plain, err := Build(t.Context(), Options{Entry: filepath.Join(root, "app.py"), OutDir: filepath.Join(root, "plain")})
	require.NoError(t, err)
	small, err := Build(t.Context(), Options{Entry: filepath.Join(root, "app.py"), OutDir: filepath.Join(root, "small"), Minifier: blankLineMinifier{}})
	require.NoError(t, err)

	assert.True(t, small.Outputs[0].Minified)
	assert.Less(t, small.TotalSize(), plain.TotalSize())
	assert.Equal(t, plain.Outputs[0].Hash, small.Outputs[0].Hash, "the hash names the unminified text")
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.BaseDir = base
	cfg.Entry = "src/app.py"
	cfg.Root = "src"
	cfg.OutDir = "build"
	cfg.Workers = 3
	cfg.StandardModules = []string{"numpy"}
	cfg.Chunks = []config.ChunkConfig{{Name: "models", Includes: []config.IncludePattern{"models/"}}}
	cfg.Minify = config.MinifyConfig{Enabled: true, Command: "cat"}

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "src", "app.py"), opts.Entry)
	assert.Equal(t, filepath.Join(base, "src"), opts.Root)
	assert.Equal(t, filepath.Join(base, "build"), opts.OutDir)
	assert.Equal(t, "py", opts.Ext)
	assert.Equal(t, "main", opts.DefaultChunk)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, []string{"numpy"}, opts.Standard)
	assert.Equal(t, chunk.AutoOptions{MinSize: chunk.DefaultMinSize, Threshold: chunk.DefaultThreshold}, opts.Auto)
	require.Len(t, opts.Chunks, 1)
	assert.Equal(t, "models", opts.Chunks[0].Name)

	sh, ok := opts.Minifier.(*minify.Shell)
	require.True(t, ok, "expected a shell minifier, got %T", opts.Minifier)
	assert.Equal(t, "cat", sh.String())
	assert.Equal(t, base, sh.Dir)

	cfg.Entry = ""
	cfg.Root = ""
	cfg.Minify.Enabled = false
	opts, err = OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Empty(t, opts.Entry)
	assert.Empty(t, opts.Root)
	assert.Nil(t, opts.Minifier)
}

func TestBuild_FromConfigWithMinifierCommand(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, usersProject)
	cfg := config.DefaultConfig()
	cfg.BaseDir = root
	cfg.Entry = "app.py"
	cfg.Minify = config.MinifyConfig{Enabled: true, Command: "grep -v '^#'"}

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	opts.Now = fixedNow
	st, err := Build(t.Context(), opts)
	require.NoError(t, err)

	text, err := os.ReadFile(st.Outputs[0].Path)
	require.NoError(t, err)
	assert.True(t, st.Outputs[0].Minified)
	assert.NotContains(t, string(text), "# Module:")
}

func TestPlan_WritesNothing(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, storeProject)
	st, err := Plan(t.Context(), Options{Entry: filepath.Join(root, "app.py"), Chunks: storeChunks})
	require.NoError(t, err)

	assert.Equal(t, []string{"main", "models"}, st.Assignment.Names)
	assert.Equal(t, 3, st.ModuleCount())
	assert.Empty(t, st.Outputs)
	assert.Nil(t, st.Manifest)
	assert.NoDirExists(t, filepath.Join(root, "dist"))
}
