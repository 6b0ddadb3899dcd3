// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"slices"
	"sort"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	EntryNotFoundId Id = iota + 1
	ConfigLoadFailedId
	InvalidConfigId
	DependencyCycleId
	InvalidChunkPatternId
	OutputWriteFailedId
	MinifierFailedId
	UnparseableModuleId
	DynamicImportId
	ManifestInvalidId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // reference documentation for the topic
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	entryNotFoundIssue = &Issue{
		id: EntryNotFoundId,
		mdMsg: `
# Entry module not found!

The entry file given to the bundler does not exist or is not a regular file.

## Things you can try:
- Pass the entry file explicitly:
~~~
$ pychunk build app.py
~~~

- Or set it in your project config:
~~~cue
entry: "app.py"
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load the configuration!

pychunk reads pychunk.cue or pychunk.toml from the project directory and
validates it against its schema.

## Things you can try:
- Show the effective configuration:
~~~
$ pychunk config show
~~~

- Generate a fresh config file to compare against:
~~~
$ pychunk config init --format toml
~~~`,
	}

	invalidConfigIssue = &Issue{
		id: InvalidConfigId,
		mdMsg: `
# Invalid configuration!

The configuration parsed, but some values are not usable.

## Rules
- Chunk names may only contain letters, digits, '_' and '-'
- Every chunk name must be unique
- Include patterns are regular expressions matched from the start of the
  module path, or globs prefixed with 'glob:'
- 'auto.similarity_threshold' must be between 0 and 1`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Circular import detected!

The modules listed in the error import each other. Bundled modules are
concatenated in dependency order, so such a cycle has no valid order.

## Things you can try:
- Move the shared code into a third module imported by both
- Defer one of the imports into the function that needs it
- Inspect the import graph:
~~~
$ pychunk graph app.py
~~~`,
		extLinks: []HttpLink{"https://docs.python.org/3/reference/import.html"},
	}

	invalidChunkPatternIssue = &Issue{
		id: InvalidChunkPatternId,
		mdMsg: `
# Invalid include pattern!

A chunk include pattern did not compile.

## Things you can try:
- Escape regular expression metacharacters such as '(' and '+'
- Use a glob instead:
~~~cue
chunks: [{name: "models", includes: ["glob:models/**"]}]
~~~`,
	}

	outputWriteFailedIssue = &Issue{
		id: OutputWriteFailedId,
		mdMsg: `
# Failed to write the bundle!

A chunk file or the manifest could not be written to the output directory.

## Things you can try:
- Check that the output directory is writable
- Choose another output directory:
~~~
$ pychunk build app.py --out-dir build
~~~`,
	}

	minifierFailedIssue = &Issue{
		id: MinifierFailedId,
		mdMsg: `
# Minifier failed!

The configured minifier command exited with an error. The affected chunks
were written unminified.

## Things you can try:
- Run the command by hand with a chunk on its standard input
- Disable minification with '--minify=false'`,
	}

	unparseableModuleIssue = &Issue{
		id: UnparseableModuleId,
		mdMsg: `
# Module could not be parsed!

The module was copied into its chunk verbatim and its imports were not
followed. Bundling continued without it.

## Things you can try:
- Run the module with the target Python version to find the syntax error`,
	}

	dynamicImportIssue = &Issue{
		id: DynamicImportId,
		mdMsg: `
# Dynamic import found!

Calls such as 'importlib.import_module(name)' or '__import__(name)' are not
followed. The imported module is only bundled if a static import reaches it.

## Things you can try:
- Add a static import of the target module
- Force the module into a chunk with 'entry_points'`,
		extLinks: []HttpLink{"https://docs.python.org/3/library/importlib.html"},
	}

	manifestInvalidIssue = &Issue{
		id: ManifestInvalidId,
		mdMsg: `
# Invalid manifest!

The manifest.json in the output directory could not be read.

## Things you can try:
- Rebuild the bundle:
~~~
$ pychunk build app.py
~~~`,
	}

	issues = map[Id]*Issue{
		entryNotFoundIssue.Id():       entryNotFoundIssue,
		configLoadFailedIssue.Id():    configLoadFailedIssue,
		invalidConfigIssue.Id():       invalidConfigIssue,
		dependencyCycleIssue.Id():     dependencyCycleIssue,
		invalidChunkPatternIssue.Id(): invalidChunkPatternIssue,
		outputWriteFailedIssue.Id():   outputWriteFailedIssue,
		minifierFailedIssue.Id():      minifierFailedIssue,
		unparseableModuleIssue.Id():   unparseableModuleIssue,
		dynamicImportIssue.Id():       dynamicImportIssue,
		manifestInvalidIssue.Id():     manifestInvalidIssue,
	}
)

// Values returns every catalog entry ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].id < out[b].id })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
