package topology

import (
	"sort"
	"strings"

	"github.com/c360studio/semtopo/processor/ast"
)

type resolverEntry struct {
	id   string
	root string
	// name is the last segment of root, matched against host references.
	name string
}

// Resolver maps raw reference tokens to subsystem ids. It is built from the
// finalized subsystem set and is read-only afterwards, so one Resolver can
// serve any number of concurrent analyze workers.
type Resolver struct {
	entries []resolverEntry
}

// NewResolver builds a resolver over subsystems. Entries are kept in
// subsystem id order, which fixes the first-match order for host tokens.
func NewResolver(subsystems []Subsystem) *Resolver {
	entries := make([]resolverEntry, 0, len(subsystems))
	for _, s := range subsystems {
		name := s.Root
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		entries = append(entries, resolverEntry{id: s.ID, root: s.Root, name: name})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	return &Resolver{entries: entries}
}

// Resolve returns the subsystem a token refers to. A resolution to the
// token's own subsystem (from) is discarded.
func (r *Resolver) Resolve(tok ast.Token, from string) (string, bool) {
	var id string
	if tok.Kind.IsModule() {
		id = r.resolveModule(tok.Value, tok.Kind.Separator())
	} else {
		id = r.resolveHost(tok.Value)
	}
	if id == "" || id == from {
		return "", false
	}
	return id, true
}

// resolveModule converts each root to the token's separator convention and
// picks the longest root the token starts with, on a segment boundary.
func (r *Resolver) resolveModule(token, sep string) string {
	best, bestLen := "", 0
	for _, e := range r.entries {
		converted := e.root
		if sep != "/" {
			converted = strings.ReplaceAll(e.root, "/", sep)
		}
		if token != converted && !strings.HasPrefix(token, converted+sep) {
			continue
		}
		if len(converted) > bestLen {
			best, bestLen = e.id, len(converted)
		}
	}
	return best
}

// resolveHost returns the first subsystem whose name occurs in the token.
func (r *Resolver) resolveHost(token string) string {
	for _, e := range r.entries {
		if e.name != "" && strings.Contains(token, e.name) {
			return e.id
		}
	}
	return ""
}
