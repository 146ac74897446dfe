package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/c360studio/semtopo/processor/topology"
)

const tempPrefix = ".tmp-"

// DirStore writes artifacts below a local directory.
// Each file is written to a temp file and renamed into place, so readers
// never see a partial artifact.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir. The directory is created on
// first write.
func NewDirStore(dir string) (*DirStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	return &DirStore{root: dir}, nil
}

// RunDir returns the directory holding the artifacts of run.
func (s *DirStore) RunDir(run topology.RunContext) string {
	return filepath.Join(s.root, filepath.FromSlash(RunPrefix(run)))
}

func (s *DirStore) Put(_ context.Context, run topology.RunContext, name string, content []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	dir := s.RunDir(run)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func (s *DirStore) Get(_ context.Context, run topology.RunContext, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.RunDir(run), name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *DirStore) List(_ context.Context, run topology.RunContext) ([]string, error) {
	entries, err := os.ReadDir(s.RunDir(run))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
