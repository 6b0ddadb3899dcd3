// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pychunk/pychunk/internal/pyimport"
)

// project lays out files under a fresh root and returns the root.
func project(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("\n"), 0o644))
	}
	return root
}

func decl(t *testing.T, stmt string) pyimport.Decl {
	t.Helper()
	f, err := pyimport.Parse([]byte(stmt + "\n"))
	require.NoError(t, err)
	require.Len(t, f.Decls, 1)
	return f.Decls[0]
}

func TestResolve(t *testing.T) {
	t.Parallel()

	root := project(t,
		"app.py",
		"models/__init__.py",
		"models/user.py",
		"models/base.py",
		"utils/string_helpers.py",
		"services/api/client.py",
		"services/api/retry.py",
		"services/shared.py",
		"nsp/thing.py",
	)
	r, err := New(root)
	require.NoError(t, err)

	at := func(rel string) string { return filepath.Join(root, filepath.FromSlash(rel)) }

	tests := []struct {
		name string
		stmt string
		from string
		kind Kind
		path string
		subs []string
	}{
		{name: "stdlib", stmt: "import os.path", from: "app.py", kind: Standard},
		{name: "stdlib from", stmt: "from collections import OrderedDict", from: "app.py", kind: Standard},
		{name: "third party", stmt: "import requests", from: "app.py", kind: External},
		{name: "module file", stmt: "from models.user import User", from: "app.py", kind: Internal, path: "models/user.py"},
		{name: "package init", stmt: "import models", from: "app.py", kind: Internal, path: "models/__init__.py"},
		{
			name: "package with submodule names", stmt: "from models import user, base, Thing", from: "app.py",
			kind: Internal, path: "models/__init__.py", subs: []string{"models/user.py", "models/base.py"},
		},
		{name: "namespace package", stmt: "from nsp import thing", from: "app.py", kind: Internal, subs: []string{"nsp/thing.py"}},
		{name: "sibling from importing dir", stmt: "import retry", from: "services/api/client.py", kind: Internal, path: "services/api/retry.py"},
		{name: "parent dir", stmt: "import shared", from: "services/api/client.py", kind: Internal, path: "services/shared.py"},
		{name: "project root", stmt: "from utils.string_helpers import slug", from: "services/api/client.py", kind: Internal, path: "utils/string_helpers.py"},
		{name: "relative module", stmt: "from .base import Base", from: "models/user.py", kind: Internal, path: "models/base.py"},
		{name: "relative sibling names", stmt: "from . import base", from: "models/user.py", kind: Internal, subs: []string{"models/base.py"}},
		{name: "relative package attribute", stmt: "from . import VERSION", from: "models/user.py", kind: Internal, path: "models/__init__.py"},
		{name: "two levels up", stmt: "from ..shared import x", from: "services/api/client.py", kind: Internal, path: "services/shared.py"},
		{name: "relative missing", stmt: "from .nope import x", from: "models/user.py", kind: External},
		{name: "relative above root", stmt: "from ... import x", from: "models/user.py", kind: External},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := r.Resolve(decl(t, tt.stmt), at(tt.from))
			assert.Equal(t, tt.kind, res.Kind)
			if tt.path == "" {
				assert.Empty(t, res.Path)
			} else {
				assert.Equal(t, at(tt.path), res.Path)
			}
			var subs []string
			for _, s := range tt.subs {
				subs = append(subs, at(s))
			}
			assert.Equal(t, subs, res.Submodules)
		})
	}
}

func TestResolve_FilePreferredOverPackage(t *testing.T) {
	t.Parallel()

	root := project(t, "app.py", "config.py", "config/__init__.py")
	r, err := New(root)
	require.NoError(t, err)

	res := r.Resolve(decl(t, "import config"), filepath.Join(root, "app.py"))
	assert.Equal(t, filepath.Join(root, "config.py"), res.Path)
}

func TestResolve_StandardWinsOverLocalFile(t *testing.T) {
	t.Parallel()

	root := project(t, "app.py", "logging.py", "vendor_lib.py")
	r, err := New(root, WithStandard(StandardPredicate("vendor_lib")))
	require.NoError(t, err)

	from := filepath.Join(root, "app.py")
	assert.Equal(t, Standard, r.Resolve(decl(t, "import logging"), from).Kind)
	assert.Equal(t, Standard, r.Resolve(decl(t, "import vendor_lib"), from).Kind)
}

func TestResolve_CustomExtension(t *testing.T) {
	t.Parallel()

	root := project(t, "main.pyw", "lib.pyw")
	r, err := New(root, WithExtension(".pyw"))
	require.NoError(t, err)

	res := r.Resolve(decl(t, "import lib"), filepath.Join(root, "main.pyw"))
	assert.Equal(t, Internal, res.Kind)
	assert.Equal(t, "lib.pyw", r.Rel(res.Path))
	assert.Equal(t, "pyw", r.Extension())
}

func TestResolution_Targets(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Resolution{Kind: External}.Targets())
	assert.Equal(t, []string{"a", "b"}, Resolution{Kind: Internal, Path: "a", Submodules: []string{"b"}}.Targets())
	assert.Equal(t, []string{"b"}, Resolution{Kind: Internal, Submodules: []string{"b"}}.Targets())
}

func TestIsStdlib(t *testing.T) {
	t.Parallel()

	assert.True(t, IsStdlib("os"))
	assert.True(t, IsStdlib("xml.etree.ElementTree"))
	assert.True(t, IsStdlib("__future__"))
	assert.False(t, IsStdlib("requests"))
	assert.False(t, IsStdlib("models"))
}
