// SPDX-License-Identifier: MPL-2.0

package chunk

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/pychunk/pychunk/internal/platform"
)

// rootGroupName names the directory group of modules at the project root.
const rootGroupName = "root"

// AutoSpecs proposes chunks for a build without configured chunks.
//
// Modules sharing a directory form a group when there are at least
// MinSize of them. The remaining modules are clustered by single linkage:
// two modules are linked when the Jaccard similarity of their dependency
// sets, or of their dependent sets, is strictly greater than Threshold.
// Clusters of at least MinSize modules become deps_<n> chunks. The entry
// module always stays in the default chunk and is never grouped.
func AutoSpecs(in Input) []Spec {
	in = in.withDefaults()

	pool := make([]string, 0, len(in.Modules))
	for _, m := range in.Modules {
		if m != in.Entry {
			pool = append(pool, m)
		}
	}

	used := map[string]bool{in.Default: true}
	var specs []Spec

	var dirs []string
	byDir := make(map[string][]string)
	for _, m := range pool {
		d := path.Dir(in.Rel(m))
		if _, seen := byDir[d]; !seen {
			dirs = append(dirs, d)
		}
		byDir[d] = append(byDir[d], m)
	}
	grouped := make(map[string]bool)
	for _, d := range dirs {
		members := byDir[d]
		if len(members) < in.Auto.MinSize {
			continue
		}
		specs = append(specs, Spec{Name: uniqueName(dirGroupName(d), used), EntryPoints: members})
		for _, m := range members {
			grouped[m] = true
		}
	}

	rest := make([]string, 0, len(pool))
	for _, m := range pool {
		if !grouped[m] {
			rest = append(rest, m)
		}
	}
	n := 0
	for _, cluster := range similarityClusters(in, rest) {
		if len(cluster) < in.Auto.MinSize {
			continue
		}
		n++
		specs = append(specs, Spec{Name: uniqueName(fmt.Sprintf("deps_%d", n), used), EntryPoints: cluster})
	}
	return specs
}

func similarityClusters(in Input, modules []string) [][]string {
	deps := make(map[string]map[string]bool, len(in.Modules))
	dependents := make(map[string]map[string]bool, len(in.Modules))
	for _, m := range in.Modules {
		deps[m] = make(map[string]bool)
		if dependents[m] == nil {
			dependents[m] = make(map[string]bool)
		}
		for _, d := range in.Deps(m) {
			deps[m][d] = true
			if dependents[d] == nil {
				dependents[d] = make(map[string]bool)
			}
			dependents[d][m] = true
		}
	}

	similar := func(a, b string) bool {
		return jaccard(deps[a], deps[b]) > in.Auto.Threshold ||
			jaccard(dependents[a], dependents[b]) > in.Auto.Threshold
	}

	assigned := make(map[string]bool, len(modules))
	var clusters [][]string
	for _, seed := range modules {
		if assigned[seed] {
			continue
		}
		assigned[seed] = true
		cluster := []string{seed}
		for i := 0; i < len(cluster); i++ {
			for _, other := range modules {
				if !assigned[other] && similar(cluster[i], other) {
					assigned[other] = true
					cluster = append(cluster, other)
				}
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// jaccard returns |a ∩ b| / |a ∪ b|, and 0 when both sets are empty.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func dirGroupName(dir string) string {
	if dir == "." || dir == "" {
		return rootGroupName
	}
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, path.Base(dir))
	if name == "" {
		return rootGroupName
	}
	// Chunk names become file names; "con.<hash>.py" cannot exist on Windows.
	if platform.IsWindowsReservedName(name) {
		name += "_"
	}
	return name
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s_%d", name, i)
	}
	used[candidate] = true
	return candidate
}
