// Package main provides the semtopo binary entry point.
// Semtopo derives a deterministic topology (areas, subsystems and
// dependency edges) from a repository checkout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semtopo/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semtopo"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

// runFlags override configuration for index and watch.
type runFlags struct {
	repo    string
	target  string
	commit  string
	out     string
	events  string
	workers int
}

func rootCmd() *cobra.Command {
	var global globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Deterministic repository topology engine",
		Long: `Semtopo classifies the files of a repository checkout into areas and
subsystems, resolves cross-subsystem references, and emits the resulting
dependency graph as ordered events and canonical JSON artifacts.

Identical input (tree, target, commit, rules version) always yields
byte-identical artifacts and the same event ids.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&global.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&global.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(indexCmd(&global))
	cmd.AddCommand(watchCmd(&global))
	cmd.AddCommand(rulesCmd(&global))

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVar(&f.repo, "repo", "", "Repository path to index (default: git root or cwd)")
	cmd.Flags().StringVar(&f.target, "target", "", "Target id (default: repository directory name)")
	cmd.Flags().StringVar(&f.commit, "commit", "", "Commit id (default: git HEAD)")
	cmd.Flags().StringVar(&f.out, "out", "", "Artifact output directory")
	cmd.Flags().StringVar(&f.events, "events", "", "Events file as JSON lines (- for stdout)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Analyze workers")
}

func indexCmd(global *globalFlags) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the repository once and write events and artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), global.logLevel)
			cfg, err := loadConfig(global.configPath, flags, logger)
			if err != nil {
				return err
			}
			return runIndex(cmd.Context(), cfg, flags.commit, logger)
		},
	}
	addRunFlags(cmd, &flags)
	return cmd
}

func runIndex(ctx context.Context, cfg *config.Config, commit string, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if err := app.Start(ctx); err != nil {
		return err
	}

	indexer, err := app.Indexer(commit, false)
	if err != nil {
		return err
	}
	result, err := indexer.IndexOnce(ctx)
	if err != nil {
		return err
	}

	logger.Info("Index complete",
		"target", result.Run.TargetID,
		"commit", result.Run.Commit,
		"areas", result.Summary.Areas,
		"subsystems", result.Summary.Subsystems,
		"edges", result.Summary.Edges,
		"failed", result.Summary.FilesFailed)
	return nil
}

func watchCmd(global *globalFlags) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Index the repository and re-index whenever it changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), global.logLevel)
			cfg, err := loadConfig(global.configPath, flags, logger)
			if err != nil {
				return err
			}
			return runWatch(cfg, flags.commit, logger)
		},
	}
	addRunFlags(cmd, &flags)
	return cmd
}

func runWatch(cfg *config.Config, commit string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if err := app.Start(ctx); err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(app), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("Serving metrics", "addr", cfg.Metrics.Addr)
	}

	indexer, err := app.Indexer(commit, true)
	if err != nil {
		return err
	}
	if err := indexer.Start(ctx); err != nil {
		return err
	}

	logger.Info("Semtopo watching",
		"version", Version,
		"repo_path", cfg.Repo.Path,
		"target", cfg.Repo.Target)

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	return indexer.Stop(10 * time.Second)
}

func metricsMux(app *App) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))
	return mux
}

func rulesCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the effective rule set as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules := config.DefaultRuleSet()
			if global.configPath != "" {
				cfg, err := config.LoadFromFile(global.configPath)
				if err != nil {
					return err
				}
				rules = cfg.Rules
			}
			if err := rules.Validate(); err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(rules); err != nil {
				return fmt.Errorf("encode rules: %w", err)
			}
			return enc.Close()
		},
	}
}

// loadConfig runs the layered loader, then applies command line overrides.
func loadConfig(configPath string, flags runFlags, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.NewLoader(logger).Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyFlags(cfg, flags); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, flags runFlags) error {
	if flags.repo != "" {
		cfg.Repo.Path = flags.repo
	}
	repo, err := resolveRepo(cfg.Repo.Path)
	if err != nil {
		return err
	}
	cfg.Repo.Path = repo

	if flags.target != "" {
		cfg.Repo.Target = flags.target
	}
	if cfg.Repo.Target == "" {
		cfg.Repo.Target = filepath.Base(repo)
	}
	if flags.out != "" {
		cfg.Output.Dir = flags.out
	}
	if flags.events != "" {
		cfg.Output.EventsFile = flags.events
	}
	if flags.workers != 0 {
		cfg.Analysis.Workers = flags.workers
	}
	return nil
}

func newLogger(w io.Writer, logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
