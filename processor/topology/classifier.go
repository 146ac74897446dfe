package topology

import (
	"fmt"
	"strings"

	"github.com/c360studio/semtopo/config"
)

type patternShape int

const (
	shapeExact  patternShape = iota // Makefile
	shapePrefix                     // dir/**
	shapeSuffix                     // **/*.ext
	shapeName                       // **/Dockerfile
	shapeInfix                      // a/**/b
)

// pattern is a compiled area pattern. Matching is literal prefix, suffix and
// substring comparison; there is no glob engine behind it.
type pattern struct {
	shape patternShape
	head  string
	tail  string
}

func compilePattern(raw string) (pattern, error) {
	if raw == "" {
		return pattern{}, fmt.Errorf("empty pattern")
	}
	n := strings.Count(raw, "**")
	switch {
	case n == 0:
		if strings.Contains(raw, "*") {
			return pattern{}, fmt.Errorf("unsupported pattern %q", raw)
		}
		return pattern{shape: shapeExact, head: raw}, nil

	case n > 1:
		return pattern{}, fmt.Errorf("unsupported pattern %q: more than one **", raw)

	case strings.HasSuffix(raw, "/**"):
		head := strings.TrimSuffix(raw, "**")
		if head == "/" || strings.Contains(head, "*") {
			return pattern{}, fmt.Errorf("unsupported pattern %q", raw)
		}
		return pattern{shape: shapePrefix, head: head}, nil

	case strings.HasPrefix(raw, "**/"):
		tail := strings.TrimPrefix(raw, "**/")
		if strings.HasPrefix(tail, "*") {
			tail = tail[1:]
			if tail == "" || strings.Contains(tail, "*") {
				return pattern{}, fmt.Errorf("unsupported pattern %q", raw)
			}
			return pattern{shape: shapeSuffix, tail: tail}, nil
		}
		if tail == "" || strings.Contains(tail, "*") {
			return pattern{}, fmt.Errorf("unsupported pattern %q", raw)
		}
		return pattern{shape: shapeName, tail: tail}, nil

	default:
		i := strings.Index(raw, "/**/")
		if i <= 0 {
			return pattern{}, fmt.Errorf("unsupported pattern %q", raw)
		}
		head, tail := raw[:i+1], raw[i+4:]
		if tail == "" || strings.Contains(head, "*") || strings.Contains(strings.TrimPrefix(tail, "*"), "*") {
			return pattern{}, fmt.Errorf("unsupported pattern %q", raw)
		}
		return pattern{shape: shapeInfix, head: head, tail: tail}, nil
	}
}

func (p pattern) match(path string) bool {
	switch p.shape {
	case shapeExact:
		return path == p.head
	case shapePrefix:
		return strings.HasPrefix(path, p.head)
	case shapeSuffix:
		return strings.HasSuffix(path, p.tail)
	case shapeName:
		return path == p.tail || strings.HasSuffix(path, "/"+p.tail)
	case shapeInfix:
		if !strings.HasPrefix(path, p.head) {
			return false
		}
		rest := path[len(p.head):]
		if strings.HasPrefix(p.tail, "*") {
			return strings.HasSuffix(rest, p.tail[1:])
		}
		return strings.HasPrefix(rest, p.tail) || strings.Contains(rest, "/"+p.tail)
	}
	return false
}

type areaMatcher struct {
	id           string
	patterns     []pattern
	noSubsystems bool
}

// Classification is the outcome of classifying one path. Empty fields mean
// no area or no subsystem.
type Classification struct {
	AreaID        string
	SubsystemRoot string
}

// Classifier maps repository-relative paths to an area and a subsystem root
// using ordered rule tables. It holds no mutable state.
type Classifier struct {
	areas []areaMatcher
	roots []string
}

// NewClassifier compiles the area patterns of rules.
func NewClassifier(rules config.RuleSet) (*Classifier, error) {
	c := &Classifier{roots: append([]string(nil), rules.SubsystemRoots...)}
	for _, rule := range rules.Areas {
		m := areaMatcher{id: rule.ID(), noSubsystems: rule.NoSubsystems}
		for _, raw := range rule.Patterns {
			p, err := compilePattern(raw)
			if err != nil {
				return nil, fmt.Errorf("area %s: %w", rule.Name, err)
			}
			m.patterns = append(m.patterns, p)
		}
		c.areas = append(c.areas, m)
	}
	return c, nil
}

// Classify returns the area and subsystem root of a slash-separated path.
// Area rules are tried in order and the first match wins. The area never
// removes a file from a configured root; NoSubsystems only suppresses the
// top-level fallback.
func (c *Classifier) Classify(path string) Classification {
	var cls Classification
	fallback := true
	for _, area := range c.areas {
		if area.matches(path) {
			cls.AreaID = area.id
			fallback = !area.noSubsystems
			break
		}
	}
	cls.SubsystemRoot = c.subsystemRoot(path, fallback)
	return cls
}

func (m areaMatcher) matches(path string) bool {
	for _, p := range m.patterns {
		if p.match(path) {
			return true
		}
	}
	return false
}

// subsystemRoot returns root + next segment for the first configured root
// the path sits under. A path directly inside a root gets no subsystem.
// Without a root match the top-level directory is used when fallback is
// set, unless the path is a single segment.
func (c *Classifier) subsystemRoot(path string, fallback bool) string {
	for _, root := range c.roots {
		if !strings.HasPrefix(path, root+"/") {
			continue
		}
		rest := path[len(root)+1:]
		i := strings.IndexByte(rest, '/')
		if i <= 0 {
			return ""
		}
		return root + "/" + rest[:i]
	}
	if !fallback {
		return ""
	}
	i := strings.IndexByte(path, '/')
	if i <= 0 {
		return ""
	}
	return path[:i]
}

// topLevelDir returns the first segment of a path that has a directory, or "".
func topLevelDir(path string) string {
	i := strings.IndexByte(path, '/')
	if i <= 0 {
		return ""
	}
	return path[:i]
}
