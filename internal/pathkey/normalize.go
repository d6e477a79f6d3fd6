package pathkey

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	verrors "github.com/bianoble/vaultsync/internal/errors"
)

// Normalizer maps a source hierarchy to a path relative to a root marker.
type Normalizer struct {
	// Root is the marker searched for in the hierarchy. An empty root
	// matches before the first segment.
	Root PathKey

	// Delimiter is the vault path delimiter; segments may not contain it.
	Delimiter string

	Comparer *Comparer
}

// NewNormalizer builds a Normalizer. root is split on delim.
func NewNormalizer(root, delim string, caseSensitive bool) *Normalizer {
	if delim == "" {
		delim = DefaultDelimiter
	}
	return &Normalizer{
		Root:      Split(root, delim),
		Delimiter: delim,
		Comparer:  NewComparer(caseSensitive),
	}
}

// Normalize returns the segments strictly between the root marker and the
// trailing leaf, and the leaf itself. raw is only used in error messages.
func (n *Normalizer) Normalize(segments []string, raw string) (PathKey, string, error) {
	cleaned := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}

	start, ok := n.findRoot(cleaned)
	if !ok {
		return nil, "", n.fail(raw, "root marker not found")
	}

	rest := cleaned[start:]
	if len(rest) == 0 {
		return nil, "", n.fail(raw, "no leaf below root")
	}

	path := PathKey(rest[:len(rest)-1]).Child()
	leaf := rest[len(rest)-1]

	if err := path.Child(leaf).Validate(n.Delimiter); err != nil {
		return nil, "", n.fail(raw, err.Error())
	}
	return path, leaf, nil
}

// findRoot returns the index just past the first occurrence of the root.
func (n *Normalizer) findRoot(segs []string) (int, bool) {
	if len(n.Root) == 0 {
		return 0, true
	}
	for i := 0; i+len(n.Root) <= len(segs); i++ {
		if n.Comparer.HasPrefix(segs[i:], n.Root) {
			return i + len(n.Root), true
		}
	}
	return 0, false
}

func (n *Normalizer) fail(raw, reason string) error {
	return &verrors.NormalizationError{Raw: raw, Root: n.Root.Join("/"), Reason: reason}
}

// ParseCanonical splits an Active Directory canonical name such as
// "corp.local/Servers/Web/SRV01". "\/" is a literal slash inside a name.
func ParseCanonical(s string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && s[i+1] == '/':
			cur.WriteByte('/')
			i++
		case s[i] == '/':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(s[i])
		}
	}
	return append(out, cur.String())
}

// ParseDN converts a distinguished name into canonical segments: the DC
// components joined as the domain first, then the remaining RDN values from
// the top of the tree down.
func ParseDN(dn string) ([]string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return nil, fmt.Errorf("parsing DN %q: %w", dn, err)
	}

	var (
		domain []string
		names  []string
	)
	for _, rdn := range parsed.RDNs {
		if len(rdn.Attributes) == 0 {
			continue
		}
		attr := rdn.Attributes[0]
		if strings.EqualFold(attr.Type, "DC") {
			domain = append(domain, attr.Value)
			continue
		}
		names = append(names, attr.Value)
	}

	out := make([]string, 0, len(names)+1)
	if len(domain) > 0 {
		out = append(out, strings.Join(domain, "."))
	}
	for i := len(names) - 1; i >= 0; i-- {
		out = append(out, names[i])
	}
	return out, nil
}

// ParseDelimited splits a category string such as "Servers\Web".
func ParseDelimited(s, delim string) []string {
	return Split(s, delim)
}
