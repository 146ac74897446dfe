// Package topology derives structural facts about a repository checkout:
// coarse areas, directory-scoped subsystems and the dependency edges between
// subsystems inferred from import statements and service references.
//
// A run is a single pass through five stages (walk, classify, derive,
// analyze, render). All output is sorted before it is serialized, so the same
// tree, rule set and exclusions always produce byte-identical artifacts.
package topology

import (
	"github.com/c360studio/semtopo/processor/ast"
)

const (
	areaIDPrefix      = "area/"
	subsystemIDPrefix = "subsystem/"
)

// SubsystemID returns the subsystem identifier for a root path.
func SubsystemID(root string) string {
	return subsystemIDPrefix + root
}

// RunContext identifies one execution and is stamped on every record.
type RunContext struct {
	TargetID     string `json:"target_id"`
	Commit       string `json:"commit"`
	RulesVersion string `json:"rules_version"`
}

// Area is a coarse, pattern-derived repository category.
type Area struct {
	ID string `json:"id"`
	// Prefixes are the top-level directory names of the files in the area.
	Prefixes  []string `json:"prefixes"`
	FileCount int      `json:"file_count"`
}

// Subsystem is a directory-scoped unit one level below a configured root,
// or a top-level directory when no root matches.
type Subsystem struct {
	ID     string `json:"id"`
	AreaID string `json:"area_id,omitempty"`
	Root   string `json:"root"`
	// Languages maps lowercased extension (no dot) to its share of typed files.
	Languages map[string]float64 `json:"languages"`
	FileCount int                `json:"file_count"`
}

// Evidence is one static-analysis observation supporting an edge.
type Evidence struct {
	Kind     ast.EvidenceKind `json:"kind"`
	File     string           `json:"file"`
	Token    string           `json:"token"`
	Resolved string           `json:"resolved"`
}

// Edge is a deduplicated directed dependency between two subsystems.
type Edge struct {
	From     string     `json:"from"`
	To       string     `json:"to"`
	Evidence []Evidence `json:"evidence"`
}

// Summary holds the run counts reported in topo.indexed.
type Summary struct {
	FilesTotal         int `json:"files_total"`
	FilesClassified    int `json:"files_classified"`
	FilesWithArea      int `json:"files_with_area"`
	FilesWithSubsystem int `json:"files_with_subsystem"`
	FilesAnalyzed      int `json:"files_analyzed"`
	FilesFailed        int `json:"files_failed"`
	Areas              int `json:"areas"`
	Subsystems         int `json:"subsystems"`
	Edges              int `json:"edges"`
	Evidence           int `json:"evidence"`
	TokensUnresolved   int `json:"tokens_unresolved"`
}

// Result is the complete in-memory output of one run. Areas, Subsystems and
// Edges are sorted by id (edges by from, then to).
type Result struct {
	Run        RunContext
	Areas      []Area
	Subsystems []Subsystem
	Edges      []Edge
	Summary    Summary
	Events     []Event
}
