package ast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ContentHash returns the SHA-256 hex digest of file content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Extraction is the outcome of scanning one file: the tokens found and, for
// a recovered failure, the reason no tokens were produced.
type Extraction struct {
	Tokens []Token
	Err    error
}

// TokenCache memoizes extraction results by extractor kind and content hash.
// Extraction is a pure function of content, so a hit is always equivalent to
// re-running the extractor. Safe for concurrent use.
type TokenCache struct {
	entries *lru.Cache[string, Extraction]
}

// NewTokenCache creates a cache holding at most size results.
func NewTokenCache(size int) (*TokenCache, error) {
	c, err := lru.New[string, Extraction](size)
	if err != nil {
		return nil, fmt.Errorf("create token cache: %w", err)
	}
	return &TokenCache{entries: c}, nil
}

func cacheKey(kind ExtractorKind, hash string) string {
	return kind.String() + ":" + hash
}

// Get returns the cached result for content scanned with kind.
func (c *TokenCache) Get(kind ExtractorKind, hash string) (Extraction, bool) {
	if c == nil {
		return Extraction{}, false
	}
	return c.entries.Get(cacheKey(kind, hash))
}

// Add records the result of scanning content with kind.
func (c *TokenCache) Add(kind ExtractorKind, hash string, x Extraction) {
	if c == nil {
		return
	}
	c.entries.Add(cacheKey(kind, hash), x)
}

// Len returns the number of cached results.
func (c *TokenCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
