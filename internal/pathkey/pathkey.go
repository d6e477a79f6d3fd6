// Package pathkey models locations in a folder hierarchy and converts the
// hierarchy strings produced by inventory sources into root-relative paths.
package pathkey

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultDelimiter separates folder segments in vault paths.
const DefaultDelimiter = `\`

// PathKey is an ordered list of non-empty folder segments.
type PathKey []string

// Split breaks s on delim, trimming whitespace and dropping empty segments.
func Split(s, delim string) PathKey {
	if delim == "" {
		delim = DefaultDelimiter
	}
	var out PathKey
	for _, seg := range strings.Split(s, delim) {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Join renders the path with delim between segments.
func (p PathKey) Join(delim string) string {
	if delim == "" {
		delim = DefaultDelimiter
	}
	return strings.Join(p, delim)
}

// String renders the path with the default delimiter.
func (p PathKey) String() string {
	return p.Join(DefaultDelimiter)
}

// Validate checks the invariants: no empty segment and no segment holding
// the delimiter, so that Join followed by Split is lossless.
func (p PathKey) Validate(delim string) error {
	if delim == "" {
		delim = DefaultDelimiter
	}
	for i, seg := range p {
		if strings.TrimSpace(seg) == "" {
			return fmt.Errorf("segment %d is empty", i)
		}
		if seg != strings.TrimSpace(seg) {
			return fmt.Errorf("segment %q has surrounding whitespace", seg)
		}
		if strings.Contains(seg, delim) {
			return fmt.Errorf("segment %q contains delimiter %q", seg, delim)
		}
	}
	return nil
}

// Child returns a new path with seg appended. p is not modified.
func (p PathKey) Child(seg ...string) PathKey {
	out := make(PathKey, 0, len(p)+len(seg))
	out = append(out, p...)
	return append(out, seg...)
}

// Concat returns p followed by q.
func (p PathKey) Concat(q PathKey) PathKey {
	return p.Child(q...)
}

// Parent returns the path without its last segment and that segment.
func (p PathKey) Parent() (PathKey, string) {
	if len(p) == 0 {
		return nil, ""
	}
	return p[:len(p)-1].Child(), p[len(p)-1]
}

// Prefixes returns every non-empty prefix of p from shortest to longest.
func (p PathKey) Prefixes() []PathKey {
	out := make([]PathKey, 0, len(p))
	for i := 1; i <= len(p); i++ {
		out = append(out, p[:i].Child())
	}
	return out
}

// IsRoot reports whether p has no segments.
func (p PathKey) IsRoot() bool { return len(p) == 0 }

// Comparer compares segments either exactly or under Unicode case folding.
type Comparer struct {
	caseSensitive bool
	fold          cases.Caser
}

// NewComparer returns a Comparer with the given case sensitivity.
func NewComparer(caseSensitive bool) *Comparer {
	return &Comparer{caseSensitive: caseSensitive, fold: cases.Fold()}
}

// CaseSensitive reports the configured sensitivity.
func (c *Comparer) CaseSensitive() bool { return c.caseSensitive }

// Segment returns the comparison form of one segment.
func (c *Comparer) Segment(s string) string {
	if c.caseSensitive {
		return s
	}
	return c.fold.String(s)
}

// Key returns a map key identifying p under this comparer.
func (c *Comparer) Key(p PathKey) string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = c.Segment(seg)
	}
	return strings.Join(parts, "\x00")
}

// ObjectKey identifies a named object under parent.
func (c *Comparer) ObjectKey(parent PathKey, name string) string {
	return c.Key(parent) + "\x01" + c.Segment(name)
}

// Equal reports whether two segments match.
func (c *Comparer) Equal(a, b string) bool {
	return c.Segment(a) == c.Segment(b)
}

// HasPrefix reports whether p starts with prefix.
func (c *Comparer) HasPrefix(p, prefix PathKey) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if !c.Equal(p[i], prefix[i]) {
			return false
		}
	}
	return true
}

// TrimPrefix returns p without prefix, and whether prefix was present.
func (c *Comparer) TrimPrefix(p, prefix PathKey) (PathKey, bool) {
	if !c.HasPrefix(p, prefix) {
		return p, false
	}
	return p[len(prefix):].Child(), true
}
