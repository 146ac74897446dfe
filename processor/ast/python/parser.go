// Package python extracts import statements from Python sources using tree-sitter.
package python

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/c360studio/semtopo/processor/ast"
)

// Parser extracts imported module paths from Python source.
// A Parser is not safe for concurrent use; give each worker its own.
type Parser struct {
	parser *sitter.Parser
}

// NewParser creates a new Python import parser.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{parser: p}
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	p.parser.Close()
}

// ExtractImports parses content and returns every imported module in
// document order: `import a.b` yields a source-import token, `from a.b import c`
// a source-from-import token. Relative and __future__ imports are skipped.
// Content that does not parse cleanly yields ast.ErrParse and no tokens.
func (p *Parser) ExtractImports(ctx context.Context, content []byte) ([]ast.Token, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ast.ErrParse, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, ast.ErrParse
	}

	var tokens []ast.Token
	walkImports(root, content, &tokens)
	return tokens, nil
}

// walkImports visits the tree depth-first so imports nested in functions,
// conditionals and try blocks are found too.
func walkImports(node *sitter.Node, content []byte, tokens *[]ast.Token) {
	switch node.Type() {
	case "import_statement":
		// import foo, bar.baz as qux
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				*tokens = append(*tokens, ast.Token{Kind: ast.KindSourceImport, Value: child.Content(content)})
			case "aliased_import":
				if name := child.ChildByFieldName("name"); name != nil {
					*tokens = append(*tokens, ast.Token{Kind: ast.KindSourceImport, Value: name.Content(content)})
				}
			}
		}
		return

	case "import_from_statement":
		// from foo.bar import baz; relative_import modules are not resolved
		module := node.ChildByFieldName("module_name")
		if module != nil && module.Type() == "dotted_name" {
			*tokens = append(*tokens, ast.Token{Kind: ast.KindSourceFromImport, Value: module.Content(content)})
		}
		return

	case "future_import_statement":
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		walkImports(node.NamedChild(i), content, tokens)
	}
}
