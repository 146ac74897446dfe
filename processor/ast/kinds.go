// Package ast provides the per-file-type reference extractors used by the
// topology engine. Each extractor scans file content and yields raw reference
// tokens; none of them ever fail a run.
package ast

import (
	"errors"
	"path/filepath"
	"strings"
)

// ExtractorKind selects the extractor used for a file. The set is closed:
// every dispatch over it must handle each value.
type ExtractorKind int

const (
	// ExtractorNone means the file is not scanned for references.
	ExtractorNone ExtractorKind = iota
	// ExtractorStructured parses Python sources into a syntax tree.
	ExtractorStructured
	// ExtractorScript matches bracket-syntax `import ... from "x"` statements.
	ExtractorScript
	// ExtractorReference scans config and markup text for hosts and service DNS names.
	ExtractorReference
)

// String returns the extractor name.
func (k ExtractorKind) String() string {
	switch k {
	case ExtractorStructured:
		return "structured"
	case ExtractorScript:
		return "script"
	case ExtractorReference:
		return "reference"
	default:
		return "none"
	}
}

// EvidenceKind classifies one observed reference.
type EvidenceKind string

const (
	KindSourceImport     EvidenceKind = "source-import"
	KindSourceFromImport EvidenceKind = "source-from-import"
	KindScriptImport     EvidenceKind = "script-import"
	KindReferenceURL     EvidenceKind = "reference-url"
)

// IsModule reports whether tokens of this kind are module paths (as opposed
// to host or service references).
func (k EvidenceKind) IsModule() bool {
	switch k {
	case KindSourceImport, KindSourceFromImport, KindScriptImport:
		return true
	}
	return false
}

// Separator returns the path separator used by module tokens of this kind.
func (k EvidenceKind) Separator() string {
	if k == KindScriptImport {
		return "/"
	}
	return "."
}

// Token is one raw reference pulled out of a file.
type Token struct {
	Kind  EvidenceKind
	Value string
}

// ErrParse is returned when a file cannot be parsed into a syntax tree.
var ErrParse = errors.New("parse failed")

var extensionKinds = map[string]ExtractorKind{
	".py":  ExtractorStructured,
	".pyi": ExtractorStructured,

	".js":  ExtractorScript,
	".jsx": ExtractorScript,
	".mjs": ExtractorScript,
	".cjs": ExtractorScript,
	".ts":  ExtractorScript,
	".tsx": ExtractorScript,
	".mts": ExtractorScript,
	".cts": ExtractorScript,

	".yaml":       ExtractorReference,
	".yml":        ExtractorReference,
	".json":       ExtractorReference,
	".toml":       ExtractorReference,
	".ini":        ExtractorReference,
	".cfg":        ExtractorReference,
	".conf":       ExtractorReference,
	".env":        ExtractorReference,
	".properties": ExtractorReference,
	".xml":        ExtractorReference,
	".html":       ExtractorReference,
	".htm":        ExtractorReference,
	".tf":         ExtractorReference,
	".hcl":        ExtractorReference,
	".md":         ExtractorReference,
	".markdown":   ExtractorReference,
}

// nameKinds covers well-known files without an extension.
var nameKinds = map[string]ExtractorKind{
	"Dockerfile": ExtractorReference,
	"Procfile":   ExtractorReference,
}

// KindForPath returns the extractor for a repository-relative path.
func KindForPath(relPath string) ExtractorKind {
	if kind, ok := nameKinds[filepath.Base(relPath)]; ok {
		return kind
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	if kind, ok := extensionKinds[ext]; ok {
		return kind
	}
	return ExtractorNone
}
