// SPDX-License-Identifier: MPL-2.0

// Package manifest describes a finished build: which modules went into
// which chunk, the hashed file of every chunk and the chunks each one loads.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/pychunk/pychunk/internal/chunk"
	"github.com/pychunk/pychunk/internal/emit"
)

// FileName is the name of the manifest written next to the chunk files.
const FileName = "manifest.json"

// ErrInvalid is returned by Read for a document that is not a manifest.
var ErrInvalid = errors.New("invalid manifest")

type (
	// Manifest is the JSON document published at the end of a build.
	Manifest struct {
		// Version is the build time in unix seconds.
		Version       int64             `json:"version"`
		Chunks        map[string]Entry  `json:"chunks"`
		ModuleToChunk map[string]string `json:"moduleToChunk"`
		// FileMap maps "{chunk}.{ext}" to the hashed file name.
		FileMap map[string]string `json:"fileMap"`
	}

	// Entry describes one emitted chunk.
	Entry struct {
		Modules []string `json:"modules"`
		File    string   `json:"file"`
		Imports []string `json:"imports"`
	}

	// Input is everything Generate aggregates.
	Input struct {
		Version    int64
		Assignment *chunk.Assignment
		Outputs    []emit.Output
		// Deps returns the direct internal dependencies of a module path.
		Deps func(string) []string
		// Rel maps a module path to the name recorded in the manifest.
		Rel func(string) string
		Ext string
	}
)

// Generate builds the manifest. Only chunks that produced an output are
// listed; dependencies on any other chunk are left out of Imports.
func Generate(in Input) *Manifest {
	rel := in.Rel
	if rel == nil {
		rel = func(p string) string { return p }
	}
	deps := in.Deps
	if deps == nil {
		deps = func(string) []string { return nil }
	}

	m := &Manifest{
		Version:       in.Version,
		Chunks:        make(map[string]Entry, len(in.Outputs)),
		ModuleToChunk: make(map[string]string),
		FileMap:       make(map[string]string, len(in.Outputs)),
	}

	files := make(map[string]string, len(in.Outputs))
	for _, o := range in.Outputs {
		if in.Assignment.Has(o.Chunk) {
			files[o.Chunk] = o.File
		}
	}
	chunkDeps := in.Assignment.Dependencies(deps)

	for _, name := range in.Assignment.Names {
		file, ok := files[name]
		if !ok {
			continue
		}
		members := in.Assignment.Members[name]
		modules := make([]string, 0, len(members))
		for _, p := range members {
			modules = append(modules, rel(p))
			m.ModuleToChunk[rel(p)] = name
		}
		imports := slices.DeleteFunc(slices.Clone(chunkDeps[name]), func(c string) bool {
			_, emitted := files[c]
			return !emitted
		})
		if imports == nil {
			imports = []string{}
		}
		m.Chunks[name] = Entry{Modules: modules, File: file, Imports: imports}
		m.FileMap[name+"."+in.Ext] = file
	}
	return m
}

// Marshal renders m as pretty-printed JSON with a trailing newline.
func Marshal(m *Manifest) ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Write stores m as dir/manifest.json. The file is replaced atomically so a
// reader never sees a partial manifest.
func Write(dir string, m *Manifest) (string, error) {
	data, err := Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := filepath.Join(dir, FileName)

	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create manifest: %w", err)
	}
	if writeErr := func() (writeErr error) {
		defer func() {
			if closeErr := tmp.Close(); closeErr != nil && writeErr == nil {
				writeErr = closeErr
			}
		}()
		_, writeErr = tmp.Write(data)
		return writeErr
	}(); writeErr != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write manifest: %w", writeErr)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to publish manifest: %w", err)
	}
	return path, nil
}

// Read loads a manifest written by Write.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	if m.Chunks == nil {
		return nil, fmt.Errorf("%w: %s: no chunks", ErrInvalid, path)
	}
	return &m, nil
}

// ChunkFor returns the chunk owning a module, by its manifest name.
func (m *Manifest) ChunkFor(module string) (string, bool) {
	c, ok := m.ModuleToChunk[module]
	return c, ok
}

// Names returns the chunk names in load order: every chunk after the chunks
// it imports, ties broken by name.
func (m *Manifest) Names() []string {
	var out []string
	done := make(map[string]bool, len(m.Chunks))
	for len(out) < len(m.Chunks) {
		var ready []string
		for name, e := range m.Chunks {
			if done[name] {
				continue
			}
			ok := true
			for _, dep := range e.Imports {
				if _, known := m.Chunks[dep]; known && !done[dep] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			// cyclic imports: release the rest by name
			for name := range m.Chunks {
				if !done[name] {
					ready = append(ready, name)
				}
			}
		}
		slices.Sort(ready)
		for _, name := range ready {
			done[name] = true
		}
		out = append(out, ready...)
	}
	return out
}
