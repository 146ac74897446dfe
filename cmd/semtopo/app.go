package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/semtopo/config"
	"github.com/c360studio/semtopo/graph"
	"github.com/c360studio/semtopo/processor/ast"
	topoindexer "github.com/c360studio/semtopo/processor/topo-indexer"
	"github.com/c360studio/semtopo/processor/topology"
	"github.com/c360studio/semtopo/storage"
)

// App wires the engine to its sinks and stores for one configuration.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	engine   *topology.Engine
	registry *prometheus.Registry

	// NATS
	natsConn *nats.Conn
	js       jetstream.JetStream

	sinks   graph.MultiSink
	stores  []storage.Store
	closers []io.Closer
}

// NewApp builds the engine. Connections are opened by Start.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics, err := topology.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	var cache *ast.TokenCache
	if cfg.Analysis.CacheSize > 0 {
		cache, err = ast.NewTokenCache(cfg.Analysis.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create token cache: %w", err)
		}
	}

	engine, err := topology.NewEngine(topology.Options{
		Rules:   cfg.Rules,
		Workers: cfg.Analysis.Workers,
		Cache:   cache,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		registry: registry,
	}, nil
}

// Start opens the configured sinks and stores.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Output.EventsFile != "" {
		sink, err := graph.OpenJSONLines(a.cfg.Output.EventsFile)
		if err != nil {
			return err
		}
		a.sinks = append(a.sinks, sink)
		a.closers = append(a.closers, sink)
	}

	if a.cfg.Output.Dir != "" {
		dir := a.cfg.Output.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(a.cfg.Repo.Path, dir)
		}
		store, err := storage.NewDirStore(dir)
		if err != nil {
			return err
		}
		a.stores = append(a.stores, store)
	}

	if a.cfg.S3.Enabled() {
		store, err := storage.NewS3Store(storage.S3Config{
			Endpoint:  a.cfg.S3.Endpoint,
			Region:    a.cfg.S3.Region,
			AccessKey: a.cfg.S3.AccessKey,
			SecretKey: a.cfg.S3.SecretKey,
			Bucket:    a.cfg.S3.Bucket,
			Prefix:    a.cfg.S3.Prefix,
			UseSSL:    a.cfg.S3.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("init s3 store: %w", err)
		}
		a.stores = append(a.stores, store)
	}

	if a.cfg.NATS.URL != "" {
		if err := a.startNATS(ctx); err != nil {
			return fmt.Errorf("start NATS: %w", err)
		}
	}

	a.logger.Debug("Sinks initialized",
		"event_sinks", len(a.sinks),
		"artifact_stores", len(a.stores))
	return nil
}

func (a *App) startNATS(ctx context.Context) error {
	a.logger.Info("Connecting to NATS", "url", a.cfg.NATS.URL)
	conn, err := nats.Connect(a.cfg.NATS.URL,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	a.natsConn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js

	if err := graph.EnsureStream(ctx, js, a.cfg.NATS.Stream, a.cfg.NATS.SubjectPrefix); err != nil {
		return err
	}
	a.sinks = append(a.sinks, graph.NewNATSPublisher(js, a.cfg.NATS.SubjectPrefix))

	if a.cfg.NATS.KVBucket != "" {
		kv, err := storage.NewKVStore(ctx, js, a.cfg.NATS.KVBucket)
		if err != nil {
			return err
		}
		a.stores = append(a.stores, kv)
	}
	return nil
}

// Indexer returns a topo-indexer component over the app's engine and sinks.
func (a *App) Indexer(commit string, watch bool) (*topoindexer.Component, error) {
	cfg := topoindexer.Config{
		RepoPath:      a.cfg.Repo.Path,
		Target:        a.cfg.Repo.Target,
		Commit:        commit,
		WatchEnabled:  watch,
		Debounce:      a.cfg.Watch.Debounce,
		IndexInterval: a.cfg.Watch.IndexInterval,
		ExcludeDirs:   a.cfg.Rules.ExcludeDirs,
	}

	deps := topoindexer.Dependencies{
		Engine: a.engine,
		Stores: a.stores,
		Commit: config.GitHead,
		Logger: a.logger,
	}
	if len(a.sinks) > 0 {
		deps.Sink = a.sinks
	}
	return topoindexer.NewComponent(cfg, deps)
}

// Shutdown closes sinks and the NATS connection.
func (a *App) Shutdown() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("Error closing sink", "error", err)
		}
	}
	a.closers = nil

	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.logger.Debug("NATS drain failed", "error", err)
		}
		a.natsConn.Close()
		a.natsConn = nil
	}
}

// resolveRepo makes the repo path absolute and checks it is a directory.
func resolveRepo(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve repo path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat repo path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}
