package ast

import "regexp"

// scriptImportRe matches `import x from "m"`, `import { a, b } from 'm'`,
// `import * as ns from "m"` and bare `import "m"`. Dynamic imports and
// require() calls are intentionally not matched.
var scriptImportRe = regexp.MustCompile(`(?m)\bimport\s+(?:[\w$*{},\s]+?\s+from\s+)?["']([^"'\r\n]+)["']`)

// ExtractScriptImports returns the quoted module of every import statement
// in bracket-syntax source, in file order.
func ExtractScriptImports(content []byte) []Token {
	matches := scriptImportRe.FindAllSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	tokens := make([]Token, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, Token{Kind: KindScriptImport, Value: string(m[1])})
	}
	return tokens
}
