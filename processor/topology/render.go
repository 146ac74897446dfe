package topology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types, in emission order.
const (
	EventStarted              = "topo.started"
	EventAreaDiscovered       = "topo.area.discovered"
	EventSubsystemDiscovered  = "topo.subsystem.discovered"
	EventDependencyDiscovered = "topo.dependency.discovered"
	EventIndexed              = "topo.indexed"
	EventCompleted            = "topo.completed"
)

// Artifact file names.
const (
	ArtifactAreas      = "topo_areas.json"
	ArtifactSubsystems = "topo_subsystems.json"
	ArtifactDeps       = "topo_deps.json"
	ArtifactSummary    = "topo_summary.json"
)

// ArtifactNames lists the artifacts a Result renders, in a fixed order.
var ArtifactNames = []string{ArtifactAreas, ArtifactSubsystems, ArtifactDeps, ArtifactSummary}

// eventNamespace seeds the name-based event ids.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:semtopo:topology-event"))

// Event is one record of the ordered run log.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	ActorID   string         `json:"actor_id"`
	Payload   map[string]any `json:"payload"`
}

// EventID derives the id of the seq-th event of a run. The same run context
// always yields the same ids.
func EventID(run RunContext, seq int, eventType string) string {
	name := strings.Join([]string{
		run.TargetID, run.Commit, run.RulesVersion, strconv.Itoa(seq), eventType,
	}, "|")
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

func buildEvents(r *Result, clock func() time.Time, actor string) []Event {
	events := make([]Event, 0, 4+len(r.Areas)+len(r.Subsystems)+len(r.Edges))
	emit := func(eventType string, payload map[string]any) {
		payload["run"] = r.Run
		events = append(events, Event{
			EventID:   EventID(r.Run, len(events), eventType),
			EventType: eventType,
			Timestamp: clock().UTC(),
			ActorID:   actor,
			Payload:   payload,
		})
	}

	emit(EventStarted, map[string]any{})
	for _, a := range r.Areas {
		emit(EventAreaDiscovered, map[string]any{"area": a})
	}
	for _, s := range r.Subsystems {
		emit(EventSubsystemDiscovered, map[string]any{"subsystem": s})
	}
	for _, e := range r.Edges {
		emit(EventDependencyDiscovered, map[string]any{"edge": e})
	}
	emit(EventIndexed, map[string]any{"summary": r.Summary})
	emit(EventCompleted, map[string]any{
		"files_total": r.Summary.FilesTotal,
		"edges":       r.Summary.Edges,
	})
	return events
}

// Artifacts renders the four JSON artifacts keyed by file name. Each is a
// standalone document stamped with the run context and rules version, with
// object keys sorted, two-space indentation and a trailing newline.
func (r *Result) Artifacts() (map[string][]byte, error) {
	areas := r.Areas
	if areas == nil {
		areas = []Area{}
	}
	subsystems := r.Subsystems
	if subsystems == nil {
		subsystems = []Subsystem{}
	}
	edges := r.Edges
	if edges == nil {
		edges = []Edge{}
	}

	docs := map[string]map[string]any{
		ArtifactAreas:      {"areas": areas},
		ArtifactSubsystems: {"subsystems": subsystems},
		ArtifactDeps:       {"edges": edges},
		ArtifactSummary:    {"summary": r.Summary},
	}

	out := make(map[string][]byte, len(docs))
	for name, doc := range docs {
		doc["run"] = r.Run
		doc["rules_version"] = r.Run.RulesVersion
		data, err := canonicalJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// canonicalJSON re-encodes v through a generic tree so every object's keys
// come out sorted, struct fields included.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
