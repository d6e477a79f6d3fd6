package pathkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/bianoble/vaultsync/internal/errors"
)

func TestSplitJoinRoundTrip(t *testing.T) {
	p := Split(`AD\ Servers \\Web\`, `\`)
	assert.Equal(t, PathKey{"AD", "Servers", "Web"}, p)
	require.NoError(t, p.Validate(`\`))
	assert.Equal(t, p, Split(p.Join(`\`), `\`))
}

func TestValidateRejectsDelimiterInSegment(t *testing.T) {
	err := PathKey{"a/b"}.Validate("/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains delimiter")

	assert.Error(t, PathKey{"a", ""}.Validate(`\`))
}

func TestPrefixes(t *testing.T) {
	p := PathKey{"A", "B", "C"}
	assert.Equal(t, []PathKey{{"A"}, {"A", "B"}, {"A", "B", "C"}}, p.Prefixes())
	assert.Empty(t, PathKey{}.Prefixes())

	// Prefixes are independent copies.
	pre := p.Prefixes()
	pre[0][0] = "X"
	assert.Equal(t, "A", p[0])
}

func TestParentAndChild(t *testing.T) {
	p := PathKey{"A", "B"}
	parent, leaf := p.Parent()
	assert.Equal(t, PathKey{"A"}, parent)
	assert.Equal(t, "B", leaf)

	c := parent.Child("Z")
	assert.Equal(t, PathKey{"A", "Z"}, c)
	assert.Equal(t, PathKey{"A", "B"}, p)
}

func TestComparerFolding(t *testing.T) {
	ci := NewComparer(false)
	assert.True(t, ci.Equal("Médecins", "MÉDECINS"))
	assert.Equal(t, ci.Key(PathKey{"Servers", "WEB"}), ci.Key(PathKey{"servers", "web"}))
	assert.True(t, ci.HasPrefix(PathKey{"AD", "Servers", "Web"}, PathKey{"ad", "servers"}))

	cs := NewComparer(true)
	assert.False(t, cs.Equal("Servers", "servers"))
	assert.NotEqual(t, cs.ObjectKey(PathKey{"A"}, "x"), cs.ObjectKey(PathKey{"A"}, "X"))

	rest, ok := ci.TrimPrefix(PathKey{"AD", "Servers", "Web"}, PathKey{"ad"})
	assert.True(t, ok)
	assert.Equal(t, PathKey{"Servers", "Web"}, rest)
}

func TestNormalizeCanonicalDirectlyUnderRoot(t *testing.T) {
	n := NewNormalizer("Servers", `\`, false)
	path, leaf, err := n.Normalize(ParseCanonical("loc/corp/Servers/SRV01"), "loc/corp/Servers/SRV01")
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.True(t, path.IsRoot())
	assert.Equal(t, "SRV01", leaf)
}

func TestNormalizeSegmentsBetweenRootAndLeaf(t *testing.T) {
	n := NewNormalizer("Servers", `\`, false)
	raw := "corp.local/Servers/Web/Frontend/SRV02"
	path, leaf, err := n.Normalize(ParseCanonical(raw), raw)
	require.NoError(t, err)
	assert.Equal(t, PathKey{"Web", "Frontend"}, path)
	assert.Equal(t, "SRV02", leaf)
}

func TestNormalizeMultiSegmentRootCaseInsensitive(t *testing.T) {
	n := NewNormalizer(`corp.local\servers`, `\`, false)
	raw := "CORP.LOCAL/Servers/Db/SQL01"
	path, leaf, err := n.Normalize(ParseCanonical(raw), raw)
	require.NoError(t, err)
	assert.Equal(t, PathKey{"Db"}, path)
	assert.Equal(t, "SQL01", leaf)

	strict := NewNormalizer(`corp.local\servers`, `\`, true)
	_, _, err = strict.Normalize(ParseCanonical(raw), raw)
	assert.ErrorIs(t, err, verrors.ErrNormalization)
}

func TestNormalizeRootMissing(t *testing.T) {
	n := NewNormalizer("Servers", `\`, false)
	_, _, err := n.Normalize(ParseCanonical("corp.local/Workstations/PC01"), "corp.local/Workstations/PC01")
	var ne *verrors.NormalizationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "root marker not found", ne.Reason)
}

func TestNormalizeRootWithoutLeaf(t *testing.T) {
	n := NewNormalizer("Servers", `\`, false)
	_, _, err := n.Normalize(ParseCanonical("corp.local/Servers"), "corp.local/Servers")
	assert.ErrorIs(t, err, verrors.ErrNormalization)
}

func TestNormalizeRejectsDelimiterInName(t *testing.T) {
	n := NewNormalizer("", `\`, false)
	_, _, err := n.Normalize([]string{"Web", `bad\name`}, `Web/bad\name`)
	assert.ErrorIs(t, err, verrors.ErrNormalization)
}

func TestNormalizeEmptyRoot(t *testing.T) {
	n := NewNormalizer("", `\`, false)
	path, leaf, err := n.Normalize(ParseDelimited(`Clients\Acme\Router`, `\`), "")
	require.NoError(t, err)
	assert.Equal(t, PathKey{"Clients", "Acme"}, path)
	assert.Equal(t, "Router", leaf)
}

func TestNormalizeProperty(t *testing.T) {
	// For any hierarchy containing the root, the result is exactly the
	// segments strictly between root and leaf.
	n := NewNormalizer("R", `\`, true)
	prefixes := [][]string{nil, {"x"}, {"x", "y"}}
	middles := [][]string{nil, {"a"}, {"a", "b", "c"}}
	for _, pre := range prefixes {
		for _, mid := range middles {
			segs := append(append(append([]string{}, pre...), "R"), mid...)
			segs = append(segs, "LEAF")
			path, leaf, err := n.Normalize(segs, "")
			require.NoError(t, err)
			assert.Equal(t, "LEAF", leaf)
			assert.Equal(t, len(mid), len(path))
			for i := range mid {
				assert.Equal(t, mid[i], path[i])
			}
		}
	}
}

func TestParseCanonicalEscapedSlash(t *testing.T) {
	assert.Equal(t, []string{"corp.local", "Servers", "a/b", "SRV"}, ParseCanonical(`corp.local/Servers/a\/b/SRV`))
}

func TestParseDN(t *testing.T) {
	segs, err := ParseDN("CN=SRV01,OU=Web,OU=Servers,DC=corp,DC=local")
	require.NoError(t, err)
	assert.Equal(t, []string{"corp.local", "Servers", "Web", "SRV01"}, segs)

	n := NewNormalizer("Servers", `\`, false)
	path, leaf, err := n.Normalize(segs, "")
	require.NoError(t, err)
	assert.Equal(t, PathKey{"Web"}, path)
	assert.Equal(t, "SRV01", leaf)

	_, err = ParseDN("not a dn")
	assert.Error(t, err)
}
