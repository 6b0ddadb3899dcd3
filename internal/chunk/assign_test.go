// SPDX-License-Identifier: MPL-2.0

package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// graph is a tiny module graph keyed by relative path.
type graph map[string][]string

func (g graph) deps(m string) []string { return g[m] }

func input(order []string, g graph, entry string, specs ...Spec) Input {
	return Input{
		Modules: order,
		Deps:    g.deps,
		Entry:   entry,
		Specs:   specs,
	}
}

var (
	scenarioOrder = []string{"utils/string_helpers.py", "models/user.py", "app.py"}
	scenarioGraph = graph{
		"app.py":         {"models/user.py", "utils/string_helpers.py"},
		"models/user.py": {"utils/string_helpers.py"},
	}
)

func TestAssign_NoConfigKeepsSmallProjectInDefault(t *testing.T) {
	t.Parallel()

	a, err := Assign(input(scenarioOrder, scenarioGraph, "app.py"))
	require.NoError(t, err)

	assert.True(t, a.Auto)
	assert.Equal(t, []string{"main"}, a.Names)
	assert.Equal(t, scenarioOrder, a.Members["main"])
	for _, m := range scenarioOrder {
		assert.Equal(t, "main", a.Owner[m])
	}
}

func TestAssign_IncludePatternAndLeftovers(t *testing.T) {
	t.Parallel()

	a, err := Assign(input(scenarioOrder, scenarioGraph, "app.py",
		Spec{Name: "models", Includes: []string{"models/.*"}},
	))
	require.NoError(t, err)

	assert.False(t, a.Auto)
	assert.Equal(t, []string{"main", "models"}, a.Names)
	assert.Equal(t, []string{"models/user.py"}, a.Members["models"])
	assert.Equal(t, []string{"utils/string_helpers.py", "app.py"}, a.Members["main"])

	deps := a.Dependencies(scenarioGraph.deps)
	assert.Equal(t, []string{"models"}, deps["main"])
	assert.Equal(t, []string{"main"}, deps["models"])
}

func TestAssign_LastMatchWins(t *testing.T) {
	t.Parallel()

	a, err := Assign(input(scenarioOrder, scenarioGraph, "app.py",
		Spec{Name: "everything", Includes: []string{".*"}},
		Spec{Name: "models", Includes: []string{".*user.*"}},
	))
	require.NoError(t, err)

	assert.Equal(t, "models", a.Owner["models/user.py"])
	assert.Equal(t, "everything", a.Owner["utils/string_helpers.py"])
	assert.Equal(t, "main", a.Owner["app.py"], "entry module always stays in the default chunk")
}

func TestAssign_DefaultClaimsAreSticky(t *testing.T) {
	t.Parallel()

	a, err := Assign(input(scenarioOrder, scenarioGraph, "app.py",
		Spec{Name: "main", EntryPoints: []string{"utils/string_helpers.py"}},
		Spec{Name: "lib", Includes: []string{".*"}},
	))
	require.NoError(t, err)

	assert.Equal(t, "main", a.Owner["utils/string_helpers.py"])
	assert.Equal(t, "lib", a.Owner["models/user.py"])
	assert.Equal(t, []string{"main", "lib"}, a.Names)
}

func TestAssign_PatternsMatchFromStart(t *testing.T) {
	t.Parallel()

	a, err := Assign(input(scenarioOrder, scenarioGraph, "app.py",
		Spec{Name: "helpers", Includes: []string{"string_helpers"}},
	))
	require.NoError(t, err)

	assert.Equal(t, "main", a.Owner["utils/string_helpers.py"], "pattern is anchored at the path start")
	assert.Equal(t, []string{"main"}, a.Names)
}

func TestAssign_GlobPattern(t *testing.T) {
	t.Parallel()

	a, err := Assign(input(scenarioOrder, scenarioGraph, "app.py",
		Spec{Name: "utils", Includes: []string{"glob:utils/**/*.py"}},
	))
	require.NoError(t, err)
	assert.Equal(t, "utils", a.Owner["utils/string_helpers.py"])
}

func TestAssign_PluralityOfDependencies(t *testing.T) {
	t.Parallel()

	order := []string{"a.py", "b.py", "c.py", "tie.py", "majority.py", "app.py"}
	g := graph{
		"tie.py":      {"b.py", "a.py"},
		"majority.py": {"a.py", "b.py", "c.py"},
		"app.py":      {"tie.py", "majority.py"},
	}
	a, err := Assign(input(order, g, "app.py",
		Spec{Name: "alpha", EntryPoints: []string{"a.py"}},
		Spec{Name: "beta", EntryPoints: []string{"b.py", "c.py"}},
	))
	require.NoError(t, err)

	assert.Equal(t, "beta", a.Owner["tie.py"], "tie goes to the first dependency's chunk")
	assert.Equal(t, "beta", a.Owner["majority.py"])
}

func TestAssign_UndiscoveredEntryPointIsIgnored(t *testing.T) {
	t.Parallel()

	a, err := Assign(input(scenarioOrder, scenarioGraph, "app.py",
		Spec{Name: "ghost", EntryPoints: []string{"ghost.py"}},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, a.Names)
	assert.NotContains(t, a.Members, "ghost")
}

func TestAssign_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := Assign(input(scenarioOrder, scenarioGraph, "app.py",
		Spec{Name: "broken", Includes: []string{"models/("}},
	))
	require.ErrorIs(t, err, ErrInvalidPattern)
	assert.Contains(t, err.Error(), `chunk "broken"`)
}

func TestAssign_EveryModuleHasExactlyOneChunk(t *testing.T) {
	t.Parallel()

	order := []string{"z/shared.py", "x/p.py", "y/q.py", "models/a.py", "models/b.py", "app.py"}
	g := graph{
		"x/p.py": {"z/shared.py"},
		"y/q.py": {"z/shared.py"},
		"app.py": {"x/p.py", "y/q.py", "models/a.py", "models/b.py"},
	}
	a, err := Assign(input(order, g, "app.py"))
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, name := range a.Names {
		for _, m := range a.Members[name] {
			seen[m]++
		}
	}
	for _, m := range order {
		assert.Equal(t, 1, seen[m], m)
	}
}

func TestAutoSpecs(t *testing.T) {
	t.Parallel()

	order := []string{"z/shared.py", "x/p.py", "y/q.py", "models/a.py", "models/b.py", "main/c.py", "main/d.py", "app.py"}
	g := graph{
		"x/p.py": {"z/shared.py"},
		"y/q.py": {"z/shared.py"},
		"app.py": {"x/p.py", "y/q.py", "models/a.py", "models/b.py", "main/c.py"},
	}
	specs := AutoSpecs(input(order, g, "app.py"))

	require.Len(t, specs, 3)
	assert.Equal(t, Spec{Name: "models", EntryPoints: []string{"models/a.py", "models/b.py"}}, specs[0])
	assert.Equal(t, Spec{Name: "main_2", EntryPoints: []string{"main/c.py", "main/d.py"}}, specs[1])
	assert.Equal(t, Spec{Name: "deps_1", EntryPoints: []string{"x/p.py", "y/q.py"}}, specs[2])

	a, err := Assign(input(order, g, "app.py"))
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "models", "main_2", "deps_1"}, a.Names)
	assert.Equal(t, "main", a.Owner["z/shared.py"])
}

func TestAutoSpecs_RootGroupAndThreshold(t *testing.T) {
	t.Parallel()

	order := []string{"a.py", "b.py", "app.py"}
	specs := AutoSpecs(input(order, graph{"app.py": {"a.py", "b.py"}}, "app.py"))
	require.Len(t, specs, 1)
	assert.Equal(t, "root", specs[0].Name)

	in := input([]string{"x/a.py", "y/b.py", "app.py"}, graph{"app.py": {"x/a.py", "y/b.py"}}, "app.py")
	in.Auto.Threshold = 0.99
	specs = AutoSpecs(in)
	require.Len(t, specs, 1, "identical dependent sets have similarity 1")
	assert.Equal(t, Spec{Name: "deps_1", EntryPoints: []string{"x/a.py", "y/b.py"}}, specs[0])

	in.Auto.Threshold = 1
	specs = AutoSpecs(in)
	assert.Empty(t, specs, "similarity must be strictly greater than the threshold")
}

func TestJaccard(t *testing.T) {
	t.Parallel()

	set := func(xs ...string) map[string]bool {
		m := make(map[string]bool)
		for _, x := range xs {
			m[x] = true
		}
		return m
	}
	assert.Zero(t, jaccard(set(), set()))
	assert.InDelta(t, 1.0, jaccard(set("a"), set("a")), 1e-9)
	assert.InDelta(t, 0.5, jaccard(set("a", "b"), set("a")), 1e-9)
	assert.InDelta(t, 1.0/3, jaccard(set("a", "b"), set("b", "c")), 1e-9)
}

func TestAssignment_Drop(t *testing.T) {
	t.Parallel()

	a, err := Assign(input(scenarioOrder, scenarioGraph, "app.py",
		Spec{Name: "models", Includes: []string{"models/.*"}},
	))
	require.NoError(t, err)

	a.Drop("main")
	assert.True(t, a.Has("main"), "the default chunk cannot be dropped")

	a.Drop("models")
	assert.False(t, a.Has("models"))
	assert.NotContains(t, a.Owner, "models/user.py")
	assert.Empty(t, a.Dependencies(scenarioGraph.deps)["main"])
}

func TestDirGroupName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		".":             rootGroupName,
		"models":        "models",
		"api/v1":        "v1",
		"my-lib":        "my_lib",
		"drivers/con":   "con_",
		"ports/COM1":    "COM1_",
		"contrib/conio": "conio",
	}
	for dir, want := range tests {
		assert.Equal(t, want, dirGroupName(dir), "dirGroupName(%q)", dir)
	}
}
