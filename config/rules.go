package config

import (
	"fmt"
	"strings"
)

// DefaultRulesVersion tags output produced by DefaultRuleSet.
const DefaultRulesVersion = "topo-rules/v1"

// AreaRule maps path patterns to one area. Rules are evaluated in the order
// they appear in RuleSet.Areas and the first matching rule wins.
type AreaRule struct {
	// Name is the area name; the area id is "area/<name>".
	Name string `yaml:"name"`
	// Patterns are dir/**, **/*.ext, **/name, a/**/b or exact literals.
	Patterns []string `yaml:"patterns"`
	// NoSubsystems stops files in this area from being assigned a subsystem.
	NoSubsystems bool `yaml:"no_subsystems,omitempty"`
}

// ID returns the area identifier.
func (r AreaRule) ID() string {
	return "area/" + r.Name
}

// RuleSet is the ordered rule configuration for one topology run.
type RuleSet struct {
	Version        string     `yaml:"version"`
	Areas          []AreaRule `yaml:"areas"`
	SubsystemRoots []string   `yaml:"subsystem_roots"`
	ExcludeDirs    []string   `yaml:"exclude_dirs"`
	ExcludeGlobs   []string   `yaml:"exclude_globs,omitempty"`
}

// DefaultExcludeDirs are directory names skipped during the tree walk:
// version-control metadata, dependency installs and build/cache output.
func DefaultExcludeDirs() []string {
	return []string{
		".git", ".hg", ".svn",
		"node_modules", "vendor", ".venv", "venv", "site-packages",
		"dist", "build", "target", "__pycache__", ".pytest_cache", ".mypy_cache", ".tox", ".cache",
	}
}

// DefaultRuleSet returns the built-in area and subsystem tables.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Version: DefaultRulesVersion,
		Areas: []AreaRule{
			{
				Name:         "ci",
				Patterns:     []string{".github/**", ".gitlab/**", ".circleci/**", ".gitlab-ci.yml", "Jenkinsfile"},
				NoSubsystems: true,
			},
			{
				Name:         "docs",
				Patterns:     []string{"docs/**", "doc/**", "**/*.md", "**/*.rst"},
				NoSubsystems: true,
			},
			{
				Name: "tests",
				Patterns: []string{
					"tests/**", "test/**", "services/**/tests/",
					"**/*_test.go", "**/*.test.ts", "**/*.test.js", "**/*.spec.ts",
				},
			},
			{
				Name: "infra",
				Patterns: []string{
					"infra/**", "deploy/**", "k8s/**", "helm/**", "terraform/**",
					"**/*.tf", "**/Dockerfile", "docker-compose.yml",
				},
			},
			{
				Name:     "services",
				Patterns: []string{"services/**", "apps/**"},
			},
			{
				Name:     "tools",
				Patterns: []string{"tools/**", "scripts/**", "bin/**"},
			},
		},
		SubsystemRoots: []string{"services", "apps", "packages", "libs", "tools"},
		ExcludeDirs:    DefaultExcludeDirs(),
	}
}

// Validate checks the rule set for errors.
func (r *RuleSet) Validate() error {
	if r.Version == "" {
		return fmt.Errorf("rules.version is required")
	}
	seen := make(map[string]bool, len(r.Areas))
	for i, area := range r.Areas {
		if area.Name == "" {
			return fmt.Errorf("rules.areas[%d]: name is required", i)
		}
		if strings.Contains(area.Name, "/") {
			return fmt.Errorf("rules.areas[%d]: name %q must not contain '/'", i, area.Name)
		}
		if seen[area.Name] {
			return fmt.Errorf("rules.areas[%d]: duplicate area %q", i, area.Name)
		}
		seen[area.Name] = true
		if len(area.Patterns) == 0 {
			return fmt.Errorf("rules.areas[%d]: at least one pattern is required", i)
		}
	}
	for i, root := range r.SubsystemRoots {
		if root == "" || strings.HasPrefix(root, "/") || strings.HasSuffix(root, "/") {
			return fmt.Errorf("rules.subsystem_roots[%d]: invalid root %q", i, root)
		}
	}
	for i, dir := range r.ExcludeDirs {
		if dir == "" || strings.Contains(dir, "/") {
			return fmt.Errorf("rules.exclude_dirs[%d]: must be a bare directory name, got %q", i, dir)
		}
	}
	return nil
}
