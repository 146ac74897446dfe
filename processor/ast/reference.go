package ast

import (
	"regexp"
	"strings"
)

var (
	urlHostRe    = regexp.MustCompile(`https?://([A-Za-z0-9][A-Za-z0-9.-]*)`)
	serviceDNSRe = regexp.MustCompile(`\b[a-z0-9](?:[-a-z0-9]*[a-z0-9])?\.[a-z0-9](?:[-a-z0-9]*[a-z0-9])?\.svc\b`)
)

// ExtractReferences returns URL hosts followed by <service>.<namespace>.svc
// names found in config or markup text. Each group is in file order.
func ExtractReferences(content []byte) []Token {
	var tokens []Token
	for _, m := range urlHostRe.FindAllSubmatch(content, -1) {
		host := strings.TrimRight(string(m[1]), ".")
		if host == "" {
			continue
		}
		tokens = append(tokens, Token{Kind: KindReferenceURL, Value: host})
	}
	for _, m := range serviceDNSRe.FindAll(content, -1) {
		tokens = append(tokens, Token{Kind: KindReferenceURL, Value: string(m)})
	}
	return tokens
}
