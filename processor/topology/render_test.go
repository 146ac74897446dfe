package topology

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semtopo/processor/ast"
)

func sampleResult() *Result {
	run := RunContext{TargetID: "demo", Commit: "abc123", RulesVersion: "topo-rules/v1"}
	return &Result{
		Run:   run,
		Areas: []Area{{ID: "area/services", Prefixes: []string{"services"}, FileCount: 2}},
		Subsystems: []Subsystem{
			{ID: "subsystem/services/api", AreaID: "area/services", Root: "services/api", Languages: map[string]float64{"py": 1}, FileCount: 1},
			{ID: "subsystem/services/worker", AreaID: "area/services", Root: "services/worker", Languages: map[string]float64{"ts": 0.5, "py": 0.5}, FileCount: 1},
		},
		Edges: []Edge{{
			From: "subsystem/services/api",
			To:   "subsystem/services/worker",
			Evidence: []Evidence{{
				Kind:     ast.KindSourceImport,
				File:     "services/api/main.py",
				Token:    "services.worker",
				Resolved: "subsystem/services/worker",
			}},
		}},
		Summary: Summary{FilesTotal: 2, Edges: 1, Evidence: 1},
	}
}

func TestArtifacts_Canonical(t *testing.T) {
	artifacts, err := sampleResult().Artifacts()
	require.NoError(t, err)
	require.Len(t, artifacts, len(ArtifactNames))

	for _, name := range ArtifactNames {
		data := artifacts[name]
		require.NotEmpty(t, data, name)
		assert.True(t, strings.HasSuffix(string(data), "}\n"), name)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc), name)
		assert.Equal(t, "topo-rules/v1", doc["rules_version"])
		run := doc["run"].(map[string]any)
		assert.Equal(t, "demo", run["target_id"])
		assert.Equal(t, "abc123", run["commit"])
	}

	deps := string(artifacts[ArtifactDeps])
	// Keys are sorted at every level.
	assert.Less(t, strings.Index(deps, `"edges"`), strings.Index(deps, `"rules_version"`))
	assert.Less(t, strings.Index(deps, `"evidence"`), strings.Index(deps, `"from"`))
	assert.Less(t, strings.Index(deps, `"file"`), strings.Index(deps, `"kind"`))
	assert.Contains(t, deps, "\n  \"edges\": [\n")

	subs := string(artifacts[ArtifactSubsystems])
	assert.Less(t, strings.Index(subs, `"py": 0.5`), strings.Index(subs, `"ts": 0.5`))
	assert.NotContains(t, subs, "0.50")
}

func TestArtifacts_EmptyResult(t *testing.T) {
	r := &Result{Run: RunContext{TargetID: "demo", Commit: "c", RulesVersion: "v"}}
	artifacts, err := r.Artifacts()
	require.NoError(t, err)
	assert.Contains(t, string(artifacts[ArtifactAreas]), `"areas": []`)
	assert.NotContains(t, string(artifacts[ArtifactAreas]), "null")
	assert.Contains(t, string(artifacts[ArtifactSummary]), `"files_total": 0`)
}

func TestEventID_Deterministic(t *testing.T) {
	run := RunContext{TargetID: "demo", Commit: "abc123", RulesVersion: "v1"}
	a := EventID(run, 0, EventStarted)
	assert.Equal(t, a, EventID(run, 0, EventStarted))
	assert.NotEqual(t, a, EventID(run, 1, EventStarted))
	assert.NotEqual(t, a, EventID(run, 0, EventCompleted))

	other := run
	other.Commit = "def456"
	assert.NotEqual(t, a, EventID(other, 0, EventStarted))
	assert.Len(t, a, 36)
}

func TestBuildEvents_Order(t *testing.T) {
	r := sampleResult()
	clockCalls := 0
	events := buildEvents(r, func() time.Time { clockCalls++; return fixedTime }, DefaultActorID)

	assert.Equal(t, []string{
		EventStarted,
		EventAreaDiscovered,
		EventSubsystemDiscovered, EventSubsystemDiscovered,
		EventDependencyDiscovered,
		EventIndexed,
		EventCompleted,
	}, eventTypes(events))
	assert.Equal(t, len(events), clockCalls)

	sub := events[3].Payload["subsystem"].(Subsystem)
	assert.Equal(t, "subsystem/services/worker", sub.ID)

	data, err := json.Marshal(events[4])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"topo.dependency.discovered"`)
	assert.Contains(t, string(data), `"actor_id":"semtopo/topology-engine"`)
	assert.Contains(t, string(data), `"evidence":[`)
}
