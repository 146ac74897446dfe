package topoindexer

import (
	"fmt"
	"time"
)

// Config holds configuration for the topo-indexer component
type Config struct {
	// RepoPath is the repository checkout to index
	RepoPath string `yaml:"repo_path"`
	// Target is the target id stamped on every run
	Target string `yaml:"target"`
	// Commit pins the commit of every run; empty resolves it per run
	Commit string `yaml:"commit"`
	// WatchEnabled re-indexes after file changes
	WatchEnabled bool `yaml:"watch_enabled"`
	// Debounce is the quiet period before a change batch triggers a run
	Debounce time.Duration `yaml:"debounce"`
	// IndexInterval forces a full re-index on a timer (0 = disabled)
	IndexInterval time.Duration `yaml:"index_interval"`
	// ExcludeDirs are directory names the watcher does not descend into
	ExcludeDirs []string `yaml:"exclude_dirs"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.RepoPath == "" {
		return fmt.Errorf("repo_path is required")
	}

	if c.Target == "" {
		return fmt.Errorf("target is required")
	}

	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}

	if c.IndexInterval < 0 {
		return fmt.Errorf("index_interval must not be negative")
	}

	return nil
}

// DefaultConfig returns default configuration for the topo-indexer
func DefaultConfig() Config {
	return Config{
		RepoPath:     ".",
		WatchEnabled: true,
		Debounce:     500 * time.Millisecond,
	}
}
