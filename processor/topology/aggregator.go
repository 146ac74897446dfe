package topology

import (
	"sort"
	"sync"
)

type edgeKey struct {
	from, to string
}

// Aggregator deduplicates resolved references into edges. Each ordered
// (from, to) pair owns exactly one edge; later signals append evidence.
// Safe for concurrent use.
type Aggregator struct {
	mu    sync.Mutex
	edges map[edgeKey]*Edge
	count int
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{edges: make(map[edgeKey]*Edge)}
}

// Add records one piece of evidence for from -> to. Self references are
// ignored. It reports whether a new edge was created.
func (a *Aggregator) Add(from, to string, ev Evidence) bool {
	if from == to || from == "" || to == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	key := edgeKey{from: from, to: to}
	if edge, ok := a.edges[key]; ok {
		edge.Evidence = append(edge.Evidence, ev)
		return false
	}
	a.edges[key] = &Edge{From: from, To: to, Evidence: []Evidence{ev}}
	return true
}

// EvidenceCount returns the total evidence recorded across all edges.
func (a *Aggregator) EvidenceCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Edges returns a sorted copy of all edges. Evidence within each edge is
// sorted too, so the result does not depend on insertion order.
func (a *Aggregator) Edges() []Edge {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Edge, 0, len(a.edges))
	for _, e := range a.edges {
		ev := append([]Evidence(nil), e.Evidence...)
		sortEvidence(ev)
		out = append(out, Edge{From: e.From, To: e.To, Evidence: ev})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

func sortEvidence(ev []Evidence) {
	sort.SliceStable(ev, func(i, j int) bool {
		a, b := ev[i], ev[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Token != b.Token {
			return a.Token < b.Token
		}
		return a.Resolved < b.Resolved
	})
}
