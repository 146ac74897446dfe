package topology

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// exclusions decides which directories the walk skips: any directory whose
// name is in the exclude set, plus any path matching an exclude glob.
type exclusions struct {
	names map[string]bool
	globs []string
}

func newExclusions(names, globs []string) (*exclusions, error) {
	ex := &exclusions{names: make(map[string]bool, len(names))}
	for _, n := range names {
		ex.names[n] = true
	}
	for _, g := range globs {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid exclude glob %q", g)
		}
		ex.globs = append(ex.globs, g)
	}
	return ex, nil
}

func (ex *exclusions) skipDir(name, rel string) bool {
	return ex.names[name] || ex.matchGlob(rel)
}

func (ex *exclusions) matchGlob(rel string) bool {
	for _, g := range ex.globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func checkRoot(root string) error {
	if root == "" {
		return wrapConfig(root, errors.New("path is empty"))
	}
	info, err := os.Stat(root)
	if err != nil {
		return wrapConfig(root, err)
	}
	if !info.IsDir() {
		return wrapConfig(root, errors.New("not a directory"))
	}
	f, err := os.Open(root)
	if err != nil {
		return wrapConfig(root, err)
	}
	defer f.Close()
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return wrapConfig(root, err)
	}
	return nil
}

// walk lists every regular file under root as a slash-separated relative
// path, sorted. Unreadable subdirectories are skipped.
func (e *Engine) walk(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return wrapConfig(root, err)
			}
			e.logger.Debug("Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == root {
				return nil
			}
			if e.excludes.skipDir(d.Name(), rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if e.excludes.matchGlob(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
