package topology

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/c360studio/semtopo/processor/ast"
	"github.com/c360studio/semtopo/processor/ast/python"
)

type analyzeStats struct {
	analyzed   int
	failed     int
	unresolved int
}

func (s *analyzeStats) add(o analyzeStats) {
	s.analyzed += o.analyzed
	s.failed += o.failed
	s.unresolved += o.unresolved
}

// analyzeJob is one subsystem-bucketed file with a known extractor.
type analyzeJob struct {
	path      string
	subsystem string
	kind      ast.ExtractorKind
}

// analyze runs stage 4. The resolver is built from the finalized subsystem
// set before any worker starts. Workers share only the aggregator.
func (e *Engine) analyze(ctx context.Context, root string, records []fileRecord, resolver *Resolver) (analyzeStats, []Edge, int, error) {
	var jobs []analyzeJob
	for _, r := range records {
		if r.SubsystemRoot == "" {
			continue
		}
		kind := ast.KindForPath(r.path)
		if kind == ast.ExtractorNone {
			continue
		}
		jobs = append(jobs, analyzeJob{path: r.path, subsystem: SubsystemID(r.SubsystemRoot), kind: kind})
	}

	agg := NewAggregator()
	workers := e.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var (
		total analyzeStats
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	queue := make(chan analyzeJob)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := newAnalyzeWorker(e, root, resolver, agg)
			defer w.close()
			for job := range queue {
				if ctx.Err() != nil {
					continue
				}
				w.process(ctx, job)
			}
			mu.Lock()
			total.add(w.stats)
			mu.Unlock()
		}()
	}

feed:
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			break feed
		case queue <- job:
		}
	}
	close(queue)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return analyzeStats{}, nil, 0, err
	}
	return total, agg.Edges(), agg.EvidenceCount(), nil
}

// analyzeWorker owns the per-goroutine extractor state.
type analyzeWorker struct {
	engine   *Engine
	root     string
	resolver *Resolver
	agg      *Aggregator
	py       *python.Parser
	stats    analyzeStats
}

func newAnalyzeWorker(e *Engine, root string, resolver *Resolver, agg *Aggregator) *analyzeWorker {
	return &analyzeWorker{engine: e, root: root, resolver: resolver, agg: agg}
}

func (w *analyzeWorker) close() {
	if w.py != nil {
		w.py.Close()
	}
}

func (w *analyzeWorker) process(ctx context.Context, job analyzeJob) {
	tokens, err := w.extractFile(ctx, job)
	if err != nil {
		w.stats.failed++
		w.engine.metrics.observeFailure()
		w.engine.logger.Debug("Extraction failed", "path", job.path, "kind", job.kind.String(), "error", err)
		return
	}
	w.stats.analyzed++

	for _, tok := range tokens {
		to, ok := w.resolver.Resolve(tok, job.subsystem)
		if !ok {
			w.stats.unresolved++
			continue
		}
		w.agg.Add(job.subsystem, to, Evidence{
			Kind:     tok.Kind,
			File:     job.path,
			Token:    tok.Value,
			Resolved: to,
		})
	}
}

// extractFile reads one file and runs its extractor. Every failure is
// returned as ErrExtraction or ErrEncoding; a panic inside an extractor is
// recovered into ErrExtraction.
func (w *analyzeWorker) extractFile(ctx context.Context, job analyzeJob) (tokens []ast.Token, err error) {
	defer func() {
		if r := recover(); r != nil {
			tokens, err = nil, fmt.Errorf("%w: panic: %v", ErrExtraction, r)
		}
	}()

	content, err := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(job.path)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if !utf8.Valid(content) {
		return nil, ErrEncoding
	}
	if len(content) == 0 {
		return nil, nil
	}

	hash := ast.ContentHash(content)
	if cached, ok := w.engine.cache.Get(job.kind, hash); ok {
		return cached.Tokens, cached.Err
	}

	x := ast.Extraction{}
	x.Tokens, x.Err = w.dispatch(ctx, job.kind, content)
	if x.Err != nil {
		x.Tokens = nil
		x.Err = fmt.Errorf("%w: %v", ErrExtraction, x.Err)
	}
	// A cancelled parse says nothing about the content.
	if ctx.Err() == nil {
		w.engine.cache.Add(job.kind, hash, x)
	}
	return x.Tokens, x.Err
}

// dispatch selects the extractor for kind. The switch covers every
// ExtractorKind.
func (w *analyzeWorker) dispatch(ctx context.Context, kind ast.ExtractorKind, content []byte) ([]ast.Token, error) {
	switch kind {
	case ast.ExtractorStructured:
		if w.py == nil {
			w.py = python.NewParser()
		}
		return w.py.ExtractImports(ctx, content)
	case ast.ExtractorScript:
		return ast.ExtractScriptImports(content), nil
	case ast.ExtractorReference:
		return ast.ExtractReferences(content), nil
	case ast.ExtractorNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown extractor kind %d", kind)
	}
}
