// SPDX-License-Identifier: MPL-2.0

package bundler

import (
	"github.com/pychunk/pychunk/internal/chunk"
	"github.com/pychunk/pychunk/internal/config"
	"github.com/pychunk/pychunk/internal/minify"
)

// OptionsFromConfig maps a loaded configuration to build options. Relative
// paths are anchored at cfg.BaseDir; an empty Root stays empty so that it
// defaults to the entry file's directory.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := Options{
		Ext:            string(cfg.Extension),
		DefaultChunk:   string(cfg.DefaultChunk),
		Chunks:         cfg.ChunkSpecs(),
		Standard:       cfg.StandardModules,
		Workers:        cfg.Workers,
		DynamicImports: cfg.DynamicImports,
		CacheEntries:   cfg.CacheEntries,
		Prune:          cfg.Prune,
		Auto: chunk.AutoOptions{
			MinSize:   cfg.Auto.MinChunkSize,
			Threshold: cfg.Auto.SimilarityThreshold,
		},
	}

	base := cfg.BaseDir
	if base == "" {
		base = "."
	}
	if cfg.Entry != "" {
		opts.Entry = anchor(base, cfg.Entry)
	}
	if cfg.Root != "" {
		opts.Root = anchor(base, cfg.Root)
	}
	if cfg.OutDir != "" {
		opts.OutDir = anchor(base, cfg.OutDir)
	}

	if cfg.Minify.Enabled {
		sh, err := minify.NewShell(cfg.Minify.Command)
		if err != nil {
			return opts, err
		}
		sh.Dir = base
		opts.Minifier = sh
	}
	return opts, nil
}
