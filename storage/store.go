// Package storage persists rendered topology artifacts. Artifacts are keyed
// by run: <target>/<commit>/<name>.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/semtopo/processor/topology"
)

// Store persists the artifacts of a run.
type Store interface {
	Put(ctx context.Context, run topology.RunContext, name string, content []byte) error
	Get(ctx context.Context, run topology.RunContext, name string) ([]byte, error)
	List(ctx context.Context, run topology.RunContext) ([]string, error)
}

// WriteArtifacts renders result and writes every artifact to each store.
// Stores are written in order and the first failure stops the write.
func WriteArtifacts(ctx context.Context, result *topology.Result, stores ...Store) error {
	artifacts, err := result.Artifacts()
	if err != nil {
		return err
	}
	for _, s := range stores {
		for _, name := range topology.ArtifactNames {
			if err := s.Put(ctx, result.Run, name, artifacts[name]); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
		}
	}
	return nil
}

// RunPrefix returns the key prefix of a run, without a trailing slash.
func RunPrefix(run topology.RunContext) string {
	return SanitizeSegment(run.TargetID) + "/" + SanitizeSegment(run.Commit)
}

// ArtifactKey returns the key of one artifact of a run.
func ArtifactKey(run topology.RunContext, name string) string {
	return RunPrefix(run) + "/" + strings.TrimLeft(strings.TrimSpace(name), "/")
}

// SanitizeSegment maps s onto [A-Za-z0-9_-] plus interior dots, so it is
// safe as a path segment, object key part and KV key part.
func SanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("artifact name is required")
	}
	if strings.Contains(name, "/") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}
