// Package config provides configuration loading and management for semtopo.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete semtopo configuration
type Config struct {
	Repo     RepoConfig     `yaml:"repo"`
	Rules    RuleSet        `yaml:"rules"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Output   OutputConfig   `yaml:"output"`
	NATS     NATSConfig     `yaml:"nats"`
	S3       S3Config       `yaml:"s3"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Watch    WatchConfig    `yaml:"watch"`
}

// RepoConfig configures the repository under analysis
type RepoConfig struct {
	// Path is the repository root path (auto-detected from git if empty)
	Path string `yaml:"path"`
	// Target is the target id stamped on output (defaults to the repo directory name)
	Target string `yaml:"target"`
}

// AnalysisConfig tunes the analyze stage
type AnalysisConfig struct {
	// Workers is the number of analyze workers (1 = sequential)
	Workers int `yaml:"workers"`
	// CacheSize is the number of extraction results kept between watch re-runs
	CacheSize int `yaml:"cache_size"`
}

// OutputConfig configures local output
type OutputConfig struct {
	// Dir receives the topo_*.json artifacts (empty = do not write)
	Dir string `yaml:"dir"`
	// EventsFile receives the event stream as JSON lines ("-" = stdout, empty = none)
	EventsFile string `yaml:"events_file"`
}

// NATSConfig configures event publishing
type NATSConfig struct {
	// URL is the NATS server URL (empty = do not publish)
	URL string `yaml:"url"`
	// SubjectPrefix prefixes event subjects: <prefix>.<target>.<event type>
	SubjectPrefix string `yaml:"subject_prefix"`
	// Stream is the JetStream stream capturing <prefix>.>
	Stream string `yaml:"stream"`
	// KVBucket stores the latest artifacts per target (empty = disabled)
	KVBucket string `yaml:"kv_bucket"`
}

// S3Config configures artifact upload to S3-compatible storage
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether S3 upload is configured.
func (s S3Config) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	// Debounce is how long to wait for more changes before re-indexing
	Debounce time.Duration `yaml:"debounce"`
	// IndexInterval forces a full re-index on a timer (0 = disabled)
	IndexInterval time.Duration `yaml:"index_interval"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Repo: RepoConfig{
			Path: "", // Auto-detect
		},
		Rules: DefaultRuleSet(),
		Analysis: AnalysisConfig{
			Workers:   1,
			CacheSize: 4096,
		},
		Output: OutputConfig{
			Dir: ".semtopo",
		},
		NATS: NATSConfig{
			SubjectPrefix: "topo.events",
			Stream:        "TOPOLOGY",
			KVBucket:      "TOPOLOGY_ARTIFACTS",
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "topology",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis.workers must be at least 1")
	}
	if c.Analysis.CacheSize < 0 {
		return fmt.Errorf("analysis.cache_size must not be negative")
	}
	if c.NATS.URL != "" && c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("nats.subject_prefix is required when nats.url is set")
	}
	if c.NATS.URL != "" && c.NATS.Stream == "" {
		return fmt.Errorf("nats.stream is required when nats.url is set")
	}
	if c.S3.Endpoint != "" && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when s3.endpoint is set")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if c.Watch.IndexInterval < 0 {
		return fmt.Errorf("watch.index_interval must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Repo
	if other.Repo.Path != "" {
		c.Repo.Path = other.Repo.Path
	}
	if other.Repo.Target != "" {
		c.Repo.Target = other.Repo.Target
	}

	// Rules: ordered tables are replaced wholesale, never interleaved
	if other.Rules.Version != "" {
		c.Rules.Version = other.Rules.Version
	}
	if len(other.Rules.Areas) > 0 {
		c.Rules.Areas = other.Rules.Areas
	}
	if len(other.Rules.SubsystemRoots) > 0 {
		c.Rules.SubsystemRoots = other.Rules.SubsystemRoots
	}
	if len(other.Rules.ExcludeDirs) > 0 {
		c.Rules.ExcludeDirs = other.Rules.ExcludeDirs
	}
	if len(other.Rules.ExcludeGlobs) > 0 {
		c.Rules.ExcludeGlobs = other.Rules.ExcludeGlobs
	}

	// Analysis
	if other.Analysis.Workers != 0 {
		c.Analysis.Workers = other.Analysis.Workers
	}
	if other.Analysis.CacheSize != 0 {
		c.Analysis.CacheSize = other.Analysis.CacheSize
	}

	// Output
	if other.Output.Dir != "" {
		c.Output.Dir = other.Output.Dir
	}
	if other.Output.EventsFile != "" {
		c.Output.EventsFile = other.Output.EventsFile
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.SubjectPrefix != "" {
		c.NATS.SubjectPrefix = other.NATS.SubjectPrefix
	}
	if other.NATS.Stream != "" {
		c.NATS.Stream = other.NATS.Stream
	}
	if other.NATS.KVBucket != "" {
		c.NATS.KVBucket = other.NATS.KVBucket
	}

	// S3
	if other.S3.Endpoint != "" {
		c.S3 = other.S3
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}

	// Watch
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.IndexInterval != 0 {
		c.Watch.IndexInterval = other.Watch.IndexInterval
	}
}

// ApplyEnv overrides settings from SEMTOPO_* environment variables.
// lookup is normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("SEMTOPO_REPO", &c.Repo.Path)
	str("SEMTOPO_TARGET", &c.Repo.Target)
	str("SEMTOPO_OUTPUT_DIR", &c.Output.Dir)
	str("SEMTOPO_EVENTS_FILE", &c.Output.EventsFile)
	str("SEMTOPO_NATS_URL", &c.NATS.URL)
	str("SEMTOPO_S3_ENDPOINT", &c.S3.Endpoint)
	str("SEMTOPO_S3_REGION", &c.S3.Region)
	str("SEMTOPO_S3_ACCESS_KEY", &c.S3.AccessKey)
	str("SEMTOPO_S3_SECRET_KEY", &c.S3.SecretKey)
	str("SEMTOPO_S3_BUCKET", &c.S3.Bucket)
	str("SEMTOPO_METRICS_ADDR", &c.Metrics.Addr)

	if v, ok := lookup("SEMTOPO_S3_USE_SSL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SEMTOPO_S3_USE_SSL: %w", err)
		}
		c.S3.UseSSL = b
	}
	if v, ok := lookup("SEMTOPO_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SEMTOPO_WORKERS: %w", err)
		}
		c.Analysis.Workers = n
	}
	return nil
}
