// Package topoindexer keeps the topology of one repository checkout current.
// It runs the topology engine once at start, then again whenever the watched
// tree changes, and hands every run's events and artifacts to the configured
// sinks and stores.
package topoindexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semtopo/graph"
	"github.com/c360studio/semtopo/processor/topology"
	"github.com/c360studio/semtopo/storage"
)

// worktreeCommit stands in for the commit when none can be resolved.
const worktreeCommit = "worktree"

// CommitResolver returns the commit currently checked out at repoPath.
type CommitResolver func(ctx context.Context, repoPath string) (string, error)

// Dependencies are the collaborators of a Component.
type Dependencies struct {
	Engine *topology.Engine
	// Sink receives each run's events (optional)
	Sink graph.Sink
	// Stores receive each run's artifacts (optional)
	Stores []storage.Store
	// Commit resolves the commit when Config.Commit is empty (optional)
	Commit CommitResolver
	Logger *slog.Logger
}

// Health is a point-in-time status of the component.
type Health struct {
	Healthy      bool
	Status       string
	Runs         int64
	ErrorCount   int64
	Uptime       time.Duration
	LastActivity time.Time
	LastRun      topology.RunContext
}

// Component implements the topo-indexer processor
type Component struct {
	name          string
	config        Config
	engine        *topology.Engine
	sink          graph.Sink
	stores        []storage.Store
	resolveCommit CommitResolver
	logger        *slog.Logger

	watcher *Watcher

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex

	// indexMu serializes runs; lastBase and generation derive the run commit
	indexMu    sync.Mutex
	lastBase   string
	generation int

	// Metrics
	runs           atomic.Int64
	errors         atomic.Int64
	lastActivityMu sync.RWMutex
	lastActivity   time.Time
	lastRun        topology.RunContext

	// Cancel functions for background goroutines
	cancelFuncs []context.CancelFunc
	wg          sync.WaitGroup
}

// NewComponent creates a new topo-indexer component
func NewComponent(config Config, deps Dependencies) (*Component, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("topology engine required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Component{
		name:          "topo-indexer",
		config:        config,
		engine:        deps.Engine,
		sink:          deps.Sink,
		stores:        deps.Stores,
		resolveCommit: deps.Commit,
		logger:        logger,
	}, nil
}

// IndexOnce runs the engine over the repository and publishes the result.
func (c *Component) IndexOnce(ctx context.Context) (*topology.Result, error) {
	return c.index(ctx, false)
}

// index runs one pass. changed marks runs triggered by working tree
// changes; those get a commit suffix so their event ids differ from the
// run over the clean checkout.
func (c *Component) index(ctx context.Context, changed bool) (*topology.Result, error) {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	commit := c.commitFor(ctx, changed)
	result, err := c.engine.Run(ctx, c.config.RepoPath, c.config.Target, commit)
	if err != nil {
		c.errors.Add(1)
		return nil, fmt.Errorf("index %s: %w", c.config.RepoPath, err)
	}
	c.runs.Add(1)
	c.updateLastActivity(result.Run)

	if c.sink != nil {
		if err := c.sink.Publish(ctx, result.Events); err != nil {
			c.errors.Add(1)
			return result, fmt.Errorf("publish events: %w", err)
		}
	}
	if len(c.stores) > 0 {
		if err := storage.WriteArtifacts(ctx, result, c.stores...); err != nil {
			c.errors.Add(1)
			return result, fmt.Errorf("write artifacts: %w", err)
		}
	}
	return result, nil
}

func (c *Component) commitFor(ctx context.Context, changed bool) string {
	base := c.config.Commit
	if base == "" && c.resolveCommit != nil {
		head, err := c.resolveCommit(ctx, c.config.RepoPath)
		if err != nil {
			c.logger.Debug("Commit not resolved", "repo", c.config.RepoPath, "error", err)
		}
		base = head
	}
	if base == "" {
		base = worktreeCommit
	}

	if base != c.lastBase {
		c.lastBase = base
		c.generation = 0
	}
	if changed {
		c.generation++
	}
	if c.generation == 0 {
		return base
	}
	return fmt.Sprintf("%s+w%d", base, c.generation)
}

// Start performs the initial index, then starts the watcher and the
// periodic re-index when they are configured.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	c.mu.Unlock()

	c.logger.Info("Starting initial topology index",
		"repo", c.config.RepoPath,
		"target", c.config.Target)

	result, err := c.IndexOnce(ctx)
	if err != nil {
		return fmt.Errorf("initial index failed: %w", err)
	}

	c.logger.Info("Initial index complete",
		"commit", result.Run.Commit,
		"subsystems", result.Summary.Subsystems,
		"edges", result.Summary.Edges)

	if c.config.WatchEnabled {
		if err := c.startWatcher(ctx); err != nil {
			c.logger.Warn("Failed to start file watcher",
				"path", c.config.RepoPath,
				"error", err)
		}
	}

	if c.config.IndexInterval > 0 {
		c.startPeriodicIndex(ctx)
	}

	c.mu.Lock()
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	return nil
}

// startWatcher starts the file system watcher and re-indexes on each batch.
func (c *Component) startWatcher(ctx context.Context) error {
	watcher, err := NewWatcher(WatcherConfig{
		RepoRoot:      c.config.RepoPath,
		DebounceDelay: c.config.Debounce,
		ExcludeDirs:   c.config.ExcludeDirs,
		Logger:        c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	if err := watcher.Start(watchCtx); err != nil {
		cancel()
		_ = watcher.Stop()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	c.watcher = watcher
	c.cancelFuncs = append(c.cancelFuncs, cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-watchCtx.Done():
				return
			case batch, ok := <-watcher.Events():
				if !ok {
					return
				}
				c.handleBatch(watchCtx, batch)
			}
		}
	}()

	return nil
}

// handleBatch re-runs the whole engine; derivation always starts fresh.
func (c *Component) handleBatch(ctx context.Context, batch ChangeBatch) {
	c.logger.Info("Re-indexing after changes", "files", len(batch.Paths))

	result, err := c.index(ctx, true)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error("Re-index failed", "error", err)
		}
		return
	}
	c.logger.Debug("Re-index complete",
		"commit", result.Run.Commit,
		"edges", result.Summary.Edges)
}

// startPeriodicIndex starts periodic full re-index
func (c *Component) startPeriodicIndex(ctx context.Context) {
	indexCtx, cancel := context.WithCancel(ctx)
	c.cancelFuncs = append(c.cancelFuncs, cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.config.IndexInterval)
		defer ticker.Stop()

		for {
			select {
			case <-indexCtx.Done():
				return
			case <-ticker.C:
				if _, err := c.index(indexCtx, false); err != nil && indexCtx.Err() == nil {
					c.logger.Error("Periodic re-index failed", "error", err)
				}
			}
		}
	}()

	c.logger.Info("Periodic index started", "interval", c.config.IndexInterval)
}

// Stop gracefully stops the component within the given timeout
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}

	for _, cancel := range c.cancelFuncs {
		cancel()
	}
	c.cancelFuncs = nil

	if c.watcher != nil {
		if err := c.watcher.Stop(); err != nil {
			c.logger.Warn("Error stopping watcher", "error", err)
		}
		c.watcher = nil
	}
	c.running = false
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for %s to stop", c.name)
	}

	c.logger.Info("Topology indexer stopped",
		"runs", c.runs.Load(),
		"errors", c.errors.Load())
	return nil
}

// Health returns the current health status
func (c *Component) Health() Health {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	c.lastActivityMu.RLock()
	lastActivity, lastRun := c.lastActivity, c.lastRun
	c.lastActivityMu.RUnlock()

	h := Health{
		Healthy:      running,
		Status:       "stopped",
		Runs:         c.runs.Load(),
		ErrorCount:   c.errors.Load(),
		LastActivity: lastActivity,
		LastRun:      lastRun,
	}
	if running {
		h.Status = "running"
		h.Uptime = time.Since(startTime)
	}
	return h
}

func (c *Component) updateLastActivity(run topology.RunContext) {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastRun = run
	c.lastActivityMu.Unlock()
}
