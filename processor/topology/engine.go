package topology

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/semtopo/config"
	"github.com/c360studio/semtopo/processor/ast"
)

// DefaultActorID is stamped on events when Options.ActorID is empty.
const DefaultActorID = "semtopo/topology-engine"

// Options configures an Engine. Rules are copied at construction, so engines
// built from different rule sets never share state.
type Options struct {
	Rules config.RuleSet

	// Workers fans the analyze stage out; values below 1 mean sequential.
	Workers int

	// Cache memoizes extraction results across runs (optional).
	Cache *ast.TokenCache

	Logger  *slog.Logger
	Metrics *Metrics

	// Clock stamps event timestamps (default time.Now).
	Clock func() time.Time

	// ActorID is the actor_id of emitted events.
	ActorID string
}

// Engine runs the five-stage topology pass over a repository checkout.
type Engine struct {
	rules      config.RuleSet
	classifier *Classifier
	excludes   *exclusions
	workers    int
	cache      *ast.TokenCache
	logger     *slog.Logger
	metrics    *Metrics
	clock      func() time.Time
	actorID    string

	// visitOrder reorders the walked file list before classify and analyze.
	visitOrder func([]string)
}

// NewEngine validates the rule set and compiles it into an engine.
func NewEngine(opts Options) (*Engine, error) {
	rules := cloneRules(opts.Rules)
	if err := rules.Validate(); err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	classifier, err := NewClassifier(rules)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	excludes, err := newExclusions(rules.ExcludeDirs, rules.ExcludeGlobs)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	e := &Engine{
		rules:      rules,
		classifier: classifier,
		excludes:   excludes,
		workers:    opts.Workers,
		cache:      opts.Cache,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
		actorID:    opts.ActorID,
	}
	if e.workers < 1 {
		e.workers = 1
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.actorID == "" {
		e.actorID = DefaultActorID
	}
	return e, nil
}

// RulesVersion returns the version tag of the engine's rule set.
func (e *Engine) RulesVersion() string {
	return e.rules.Version
}

// fileRecord is one walked file and its classification.
type fileRecord struct {
	path string
	Classification
}

// Run analyzes the repository at root. targetID and commit identify the
// run; the rules version comes from the engine's rule set.
//
// A missing or unreadable root fails with a *ConfigurationError before any
// stage runs. Per-file failures are counted in Summary.FilesFailed and never
// fail the run. If ctx is cancelled the run returns ctx.Err() and no result.
func (e *Engine) Run(ctx context.Context, root, targetID, commit string) (*Result, error) {
	start := time.Now()
	run := RunContext{TargetID: targetID, Commit: commit, RulesVersion: e.rules.Version}

	result, err := e.run(ctx, root, run)
	if err != nil {
		e.metrics.observeRun("error", 0, time.Since(start))
		return nil, err
	}
	e.metrics.observeRun("ok", len(result.Edges), time.Since(start))

	e.logger.Info("Topology indexed",
		"target", run.TargetID,
		"commit", run.Commit,
		"files", result.Summary.FilesTotal,
		"areas", result.Summary.Areas,
		"subsystems", result.Summary.Subsystems,
		"edges", result.Summary.Edges,
		"failed", result.Summary.FilesFailed,
		"duration", time.Since(start))
	return result, nil
}

func (e *Engine) run(ctx context.Context, root string, run RunContext) (*Result, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}

	// Stage 1: walk
	files, err := e.walk(ctx, root)
	if err != nil {
		return nil, err
	}
	e.metrics.observeWalk(len(files))
	if e.visitOrder != nil {
		e.visitOrder(files)
	}
	e.logger.Debug("Walk complete", "root", root, "files", len(files))

	// Stage 2: classify
	records := make([]fileRecord, len(files))
	for i, path := range files {
		records[i] = fileRecord{path: path, Classification: e.classifier.Classify(path)}
	}

	// Stage 3: derive. The subsystem set is final from here on.
	areas := deriveAreas(records)
	subsystems := deriveSubsystems(records)
	e.logger.Debug("Derive complete", "areas", len(areas), "subsystems", len(subsystems))

	// Stage 4: analyze
	stats, edges, evidence, err := e.analyze(ctx, root, records, NewResolver(subsystems))
	if err != nil {
		return nil, err
	}

	// Stage 5: render
	summary := Summary{
		FilesTotal:       len(records),
		FilesAnalyzed:    stats.analyzed,
		FilesFailed:      stats.failed,
		Areas:            len(areas),
		Subsystems:       len(subsystems),
		Edges:            len(edges),
		Evidence:         evidence,
		TokensUnresolved: stats.unresolved,
	}
	for _, r := range records {
		if r.AreaID != "" {
			summary.FilesWithArea++
		}
		if r.SubsystemRoot != "" {
			summary.FilesWithSubsystem++
		}
		if r.AreaID != "" || r.SubsystemRoot != "" {
			summary.FilesClassified++
		}
	}

	result := &Result{
		Run:        run,
		Areas:      areas,
		Subsystems: subsystems,
		Edges:      edges,
		Summary:    summary,
	}
	result.Events = buildEvents(result, e.clock, e.actorID)
	return result, nil
}

// deriveAreas groups records by area. Output is sorted by area id.
func deriveAreas(records []fileRecord) []Area {
	type bucket struct {
		prefixes map[string]bool
		count    int
	}
	buckets := make(map[string]*bucket)
	for _, r := range records {
		if r.AreaID == "" {
			continue
		}
		b, ok := buckets[r.AreaID]
		if !ok {
			b = &bucket{prefixes: make(map[string]bool)}
			buckets[r.AreaID] = b
		}
		b.count++
		if dir := topLevelDir(r.path); dir != "" {
			b.prefixes[dir] = true
		}
	}

	areas := make([]Area, 0, len(buckets))
	for id, b := range buckets {
		areas = append(areas, Area{ID: id, Prefixes: sortedSet(b.prefixes), FileCount: b.count})
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i].ID < areas[j].ID })
	return areas
}

// deriveSubsystems groups records by subsystem root, computing the owning
// area (most files, ties to the smaller id) and the language distribution.
func deriveSubsystems(records []fileRecord) []Subsystem {
	type bucket struct {
		count int
		exts  map[string]int
		areas map[string]int
	}
	buckets := make(map[string]*bucket)
	for _, r := range records {
		if r.SubsystemRoot == "" {
			continue
		}
		b, ok := buckets[r.SubsystemRoot]
		if !ok {
			b = &bucket{exts: make(map[string]int), areas: make(map[string]int)}
			buckets[r.SubsystemRoot] = b
		}
		b.count++
		if ext := extensionOf(r.path); ext != "" {
			b.exts[ext]++
		}
		if r.AreaID != "" {
			b.areas[r.AreaID]++
		}
	}

	subsystems := make([]Subsystem, 0, len(buckets))
	for root, b := range buckets {
		subsystems = append(subsystems, Subsystem{
			ID:        SubsystemID(root),
			AreaID:    dominantArea(b.areas),
			Root:      root,
			Languages: languageFractions(b.exts),
			FileCount: b.count,
		})
	}
	sort.Slice(subsystems, func(i, j int) bool { return subsystems[i].ID < subsystems[j].ID })
	return subsystems
}

func dominantArea(counts map[string]int) string {
	best, bestN := "", 0
	for id, n := range counts {
		if n > bestN || (n == bestN && id < best) {
			best, bestN = id, n
		}
	}
	return best
}

// languageFractions turns extension counts into shares of the typed files.
// Files without an extension are not typed and do not appear.
func languageFractions(exts map[string]int) map[string]float64 {
	out := make(map[string]float64, len(exts))
	total := 0
	for _, n := range exts {
		total += n
	}
	if total == 0 {
		return out
	}
	for ext, n := range exts {
		out[ext] = float64(n) / float64(total)
	}
	return out
}

// extensionOf returns the lowercased extension of the file name without the
// dot. Dotfiles such as .env have no extension.
func extensionOf(path string) string {
	name := path
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cloneRules(r config.RuleSet) config.RuleSet {
	out := config.RuleSet{
		Version:        r.Version,
		SubsystemRoots: append([]string(nil), r.SubsystemRoots...),
		ExcludeDirs:    append([]string(nil), r.ExcludeDirs...),
		ExcludeGlobs:   append([]string(nil), r.ExcludeGlobs...),
	}
	for _, a := range r.Areas {
		a.Patterns = append([]string(nil), a.Patterns...)
		out.Areas = append(out.Areas, a)
	}
	return out
}

func wrapConfig(root string, err error) error {
	return &ConfigurationError{Path: root, Err: fmt.Errorf("repository root: %w", err)}
}
