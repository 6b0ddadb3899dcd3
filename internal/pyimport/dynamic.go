// SPDX-License-Identifier: MPL-2.0

package pyimport

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

const (
	pyNodeCall        = "call"
	pyNodeIdentifier  = "identifier"
	pyNodeAttribute   = "attribute"
	pyNodeString      = "string"
	pyNodeInterpolate = "interpolation"

	maxCallDepth = 256
)

// DynamicImport is a runtime import call found in a module. Dynamic imports
// are never followed; they are reported so the user can list the module in a
// chunk configuration by hand.
type DynamicImport struct {
	// Module is the literal module name, or empty when the argument is computed.
	Module string
	// Via is the callee text, e.g. "importlib.import_module".
	Via  string
	Line int
}

func (d DynamicImport) String() string {
	if d.Module == "" {
		return fmt.Sprintf("line %d: %s(<computed>)", d.Line, d.Via)
	}
	return fmt.Sprintf("line %d: %s(%q)", d.Line, d.Via, d.Module)
}

// ScanDynamic reports calls to __import__ and importlib.import_module.
func ScanDynamic(ctx context.Context, src []byte) ([]DynamicImport, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type entry struct {
		node  *sitter.Node
		depth int
	}

	var found []DynamicImport
	stack := []entry{{node: tree.RootNode()}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if e.node == nil || e.depth > maxCallDepth {
			continue
		}

		if e.node.Type() == pyNodeCall {
			if via, ok := dynamicCallee(e.node.ChildByFieldName("function"), src); ok {
				found = append(found, DynamicImport{
					Module: literalArgument(e.node.ChildByFieldName("arguments"), src),
					Via:    via,
					Line:   int(e.node.StartPoint().Row) + 1,
				})
			}
		}

		for i := int(e.node.ChildCount()) - 1; i >= 0; i-- {
			if child := e.node.Child(i); child != nil {
				stack = append(stack, entry{node: child, depth: e.depth + 1})
			}
		}
	}
	return found, nil
}

func dynamicCallee(fn *sitter.Node, src []byte) (string, bool) {
	if fn == nil {
		return "", false
	}
	switch fn.Type() {
	case pyNodeIdentifier:
		if name := fn.Content(src); name == "__import__" {
			return name, true
		}
	case pyNodeAttribute:
		attr := fn.ChildByFieldName("attribute")
		if attr != nil && attr.Content(src) == "import_module" {
			return fn.Content(src), true
		}
	}
	return "", false
}

// literalArgument returns the first positional argument when it is a plain
// string literal.
func literalArgument(args *sitter.Node, src []byte) string {
	if args == nil || args.NamedChildCount() == 0 {
		return ""
	}
	arg := args.NamedChild(0)
	if arg == nil || arg.Type() != pyNodeString {
		return ""
	}
	for i := 0; i < int(arg.NamedChildCount()); i++ {
		if c := arg.NamedChild(i); c != nil && c.Type() == pyNodeInterpolate {
			return ""
		}
	}
	return unquote(arg.Content(src))
}

func unquote(lit string) string {
	prefix := strings.IndexAny(lit, `'"`)
	if prefix < 0 || strings.ContainsAny(lit[:prefix], "fF") {
		return ""
	}
	body := lit[prefix:]
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(body) >= 2*len(q) && strings.HasPrefix(body, q) && strings.HasSuffix(body, q) {
			return body[len(q) : len(body)-len(q)]
		}
	}
	return ""
}
