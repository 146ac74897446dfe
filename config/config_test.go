package config

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Rules.Version != DefaultRulesVersion {
		t.Errorf("expected rules version %s, got %s", DefaultRulesVersion, cfg.Rules.Version)
	}
	if cfg.Analysis.Workers != 1 {
		t.Errorf("expected 1 worker by default, got %d", cfg.Analysis.Workers)
	}
	if cfg.NATS.URL != "" {
		t.Error("expected NATS publishing disabled by default")
	}
	if cfg.S3.Enabled() {
		t.Error("expected S3 upload disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDefaultRuleSetOrder(t *testing.T) {
	rules := DefaultRuleSet()

	// ci must precede docs so .github/**/*.md stays in area/ci.
	var names []string
	for _, a := range rules.Areas {
		names = append(names, a.Name)
	}
	want := []string{"ci", "docs", "tests", "infra", "services", "tools"}
	if len(names) != len(want) {
		t.Fatalf("areas = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("areas[%d] = %s, want %s", i, names[i], want[i])
		}
	}
	if rules.Areas[0].ID() != "area/ci" {
		t.Errorf("ID() = %s, want area/ci", rules.Areas[0].ID())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing rules version",
			modify:  func(c *Config) { c.Rules.Version = "" },
			wantErr: true,
		},
		{
			name:    "area without patterns",
			modify:  func(c *Config) { c.Rules.Areas[0].Patterns = nil },
			wantErr: true,
		},
		{
			name: "duplicate area",
			modify: func(c *Config) {
				c.Rules.Areas = append(c.Rules.Areas, c.Rules.Areas[0])
			},
			wantErr: true,
		},
		{
			name:    "subsystem root with trailing slash",
			modify:  func(c *Config) { c.Rules.SubsystemRoots = []string{"services/"} },
			wantErr: true,
		},
		{
			name:    "exclude dir with path",
			modify:  func(c *Config) { c.Rules.ExcludeDirs = []string{"a/b"} },
			wantErr: true,
		},
		{
			name:    "zero workers",
			modify:  func(c *Config) { c.Analysis.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "s3 endpoint without bucket",
			modify:  func(c *Config) { c.S3.Endpoint = "localhost:9000" },
			wantErr: true,
		},
		{
			name: "nats url without stream",
			modify: func(c *Config) {
				c.NATS.URL = "nats://localhost:4222"
				c.NATS.Stream = ""
			},
			wantErr: true,
		},
		{
			name:    "nats url with defaults",
			modify:  func(c *Config) { c.NATS.URL = "nats://localhost:4222" },
			wantErr: false,
		},
		{
			name:    "negative index interval",
			modify:  func(c *Config) { c.Watch.IndexInterval = -time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
repo:
  path: "/test/path"
  target: "acme-platform"
rules:
  version: "custom/v2"
  areas:
    - name: docs
      patterns: ["docs/**"]
      no_subsystems: true
  subsystem_roots: ["svc"]
analysis:
  workers: 4
nats:
  url: "nats://test:4222"
watch:
  debounce: 2s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Repo.Target != "acme-platform" {
		t.Errorf("expected target acme-platform, got %s", cfg.Repo.Target)
	}
	if cfg.Rules.Version != "custom/v2" {
		t.Errorf("expected rules version custom/v2, got %s", cfg.Rules.Version)
	}
	if len(cfg.Rules.Areas) != 1 || !cfg.Rules.Areas[0].NoSubsystems {
		t.Errorf("expected a single no_subsystems area, got %+v", cfg.Rules.Areas)
	}
	if len(cfg.Rules.SubsystemRoots) != 1 || cfg.Rules.SubsystemRoots[0] != "svc" {
		t.Errorf("expected subsystem roots [svc], got %v", cfg.Rules.SubsystemRoots)
	}
	if cfg.Analysis.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Analysis.Workers)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("expected debounce 2s, got %v", cfg.Watch.Debounce)
	}
	// Untouched sections keep their defaults.
	if len(cfg.Rules.ExcludeDirs) == 0 {
		t.Error("expected default exclude dirs to survive")
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Repo: RepoConfig{
			Path: "/override/path",
		},
		Rules: RuleSet{
			SubsystemRoots: []string{"components"},
		},
		NATS:  NATSConfig{KVBucket: "TOPO_KV"},
		Watch: WatchConfig{IndexInterval: time.Minute},
	}

	base.Merge(override)

	if base.NATS.KVBucket != "TOPO_KV" || base.NATS.Stream != "TOPOLOGY" {
		t.Errorf("unexpected NATS config after merge: %+v", base.NATS)
	}
	if base.Watch.IndexInterval != time.Minute || base.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("unexpected watch config after merge: %+v", base.Watch)
	}

	if base.Repo.Path != "/override/path" {
		t.Errorf("expected repo path /override/path, got %s", base.Repo.Path)
	}
	if len(base.Rules.SubsystemRoots) != 1 || base.Rules.SubsystemRoots[0] != "components" {
		t.Errorf("expected subsystem roots replaced, got %v", base.Rules.SubsystemRoots)
	}
	// Areas should remain from base since override didn't set them
	if len(base.Rules.Areas) != len(DefaultRuleSet().Areas) {
		t.Errorf("expected default areas to remain, got %d", len(base.Rules.Areas))
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SEMTOPO_TARGET":     "from-env",
		"SEMTOPO_WORKERS":    "8",
		"SEMTOPO_S3_USE_SSL": "true",
		"SEMTOPO_NATS_URL":   "  nats://env:4222  ",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Repo.Target != "from-env" {
		t.Errorf("expected target from-env, got %s", cfg.Repo.Target)
	}
	if cfg.Analysis.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Analysis.Workers)
	}
	if !cfg.S3.UseSSL {
		t.Error("expected use_ssl from env")
	}
	if cfg.NATS.URL != "nats://env:4222" {
		t.Errorf("expected trimmed NATS URL, got %q", cfg.NATS.URL)
	}

	env["SEMTOPO_WORKERS"] = "many"
	if err := DefaultConfig().ApplyEnv(lookup); err == nil {
		t.Error("expected error for non-numeric SEMTOPO_WORKERS")
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Repo.Target = "saved-target"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Repo.Target != "saved-target" {
		t.Errorf("expected target saved-target, got %s", loaded.Repo.Target)
	}
	if len(loaded.Rules.Areas) != len(cfg.Rules.Areas) {
		t.Errorf("expected %d areas after round trip, got %d", len(cfg.Rules.Areas), len(loaded.Rules.Areas))
	}
}

func TestLoaderExplicitPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "semtopo.yaml")
	content := `
repo:
  path: "/repo"
analysis:
  workers: 2
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	l := NewLoader(nil)
	l.lookupEnv = func(k string) (string, bool) {
		if k == "SEMTOPO_WORKERS" {
			return "3", true
		}
		return "", false
	}

	cfg, err := l.Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Repo.Path != "/repo" {
		t.Errorf("expected repo path /repo, got %s", cfg.Repo.Path)
	}
	// Environment wins over the file.
	if cfg.Analysis.Workers != 3 {
		t.Errorf("expected 3 workers from env, got %d", cfg.Analysis.Workers)
	}

	if _, err := l.Load(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoaderFindsProjectConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	content := "repo:\n  path: \"/project\"\n  target: \"proj\"\n"
	if err := os.WriteFile(filepath.Join(root, ProjectConfigFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(nil)
	l.lookupEnv = func(string) (string, bool) { return "", false }
	l.workDir = nested

	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Repo.Target != "proj" {
		t.Errorf("expected target proj, got %s", cfg.Repo.Target)
	}
}

func TestGitHead_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(t.TempDir()))

	if _, err := GitHead(context.Background(), t.TempDir()); err == nil {
		t.Error("expected error outside a git repository")
	}
}

func TestGitHead_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := GitHead(ctx, "."); err == nil {
		t.Error("expected error for cancelled context")
	}
}
