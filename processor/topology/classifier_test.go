package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semtopo/config"
)

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		raw     string
		path    string
		want    bool
		wantErr bool
	}{
		{raw: "docs/**", path: "docs/guide/intro.md", want: true},
		{raw: "docs/**", path: "docsite/index.md", want: false},
		{raw: "**/*.md", path: "README.md", want: true},
		{raw: "**/*.md", path: "services/api/CHANGELOG.md", want: true},
		{raw: "**/*.md", path: "services/api/main.py", want: false},
		{raw: "**/Dockerfile", path: "Dockerfile", want: true},
		{raw: "**/Dockerfile", path: "services/api/Dockerfile", want: true},
		{raw: "**/Dockerfile", path: "services/api/NotADockerfile", want: false},
		{raw: "services/**/tests/", path: "services/api/tests/test_main.py", want: true},
		{raw: "services/**/tests/", path: "services/api/main.py", want: false},
		{raw: "services/**/*.py", path: "services/api/main.py", want: true},
		{raw: "Jenkinsfile", path: "Jenkinsfile", want: true},
		{raw: "Jenkinsfile", path: "ci/Jenkinsfile", want: false},
		{raw: "", wantErr: true},
		{raw: "src/*.go", wantErr: true},
		{raw: "a/**/b/**", wantErr: true},
		{raw: "**/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw+"|"+tt.path, func(t *testing.T) {
			p, err := compilePattern(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.match(tt.path))
		})
	}
}

func TestClassifier_DefaultRules(t *testing.T) {
	c, err := NewClassifier(config.DefaultRuleSet())
	require.NoError(t, err)

	tests := []struct {
		path      string
		area      string
		subsystem string
	}{
		{"services/api/main.py", "area/services", "services/api"},
		{"services/api/tests/test_main.py", "area/tests", "services/api"},
		{"services/api/README.md", "area/docs", "services/api"},
		{"services/docs/guide.md", "area/docs", "services/docs"},
		{".github/workflows/ci.yml", "area/ci", ""},
		{"docs/guide/intro.md", "area/docs", ""},
		{"services/main.py", "area/services", ""},
		{"docs/README.md", "area/docs", ""},
		{"infra/main.tf", "area/infra", "infra"},
		{"services/api/Dockerfile", "area/infra", "services/api"},
		{"packages/ui/src/index.ts", "", "packages/ui"},
		{"tools/gen/main.go", "area/tools", "tools/gen"},
		{"src/app.js", "", "src"},
		{"Makefile", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := c.Classify(tt.path)
			assert.Equal(t, tt.area, got.AreaID)
			assert.Equal(t, tt.subsystem, got.SubsystemRoot)
		})
	}
}

func TestClassifier_FirstRuleWins(t *testing.T) {
	rules := config.RuleSet{
		Version: "test/v1",
		Areas: []config.AreaRule{
			{Name: "first", Patterns: []string{"**/*.py"}},
			{Name: "second", Patterns: []string{"services/**"}},
		},
	}
	c, err := NewClassifier(rules)
	require.NoError(t, err)
	assert.Equal(t, "area/first", c.Classify("services/api/main.py").AreaID)
	assert.Equal(t, "area/second", c.Classify("services/api/main.go").AreaID)

	rules.Areas[0], rules.Areas[1] = rules.Areas[1], rules.Areas[0]
	c, err = NewClassifier(rules)
	require.NoError(t, err)
	assert.Equal(t, "area/second", c.Classify("services/api/main.py").AreaID)
}

func TestClassifier_RootOrder(t *testing.T) {
	rules := config.RuleSet{Version: "test/v1", SubsystemRoots: []string{"services", "services/legacy"}}
	c, err := NewClassifier(rules)
	require.NoError(t, err)
	assert.Equal(t, "services/legacy", c.Classify("services/legacy/billing/app.py").SubsystemRoot)

	rules.SubsystemRoots = []string{"services/legacy", "services"}
	c, err = NewClassifier(rules)
	require.NoError(t, err)
	assert.Equal(t, "services/legacy/billing", c.Classify("services/legacy/billing/app.py").SubsystemRoot)
}

func TestNewClassifier_InvalidPattern(t *testing.T) {
	rules := config.RuleSet{
		Version: "test/v1",
		Areas:   []config.AreaRule{{Name: "bad", Patterns: []string{"src/*.go"}}},
	}
	_, err := NewClassifier(rules)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "area bad")
}
