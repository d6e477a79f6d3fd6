package materialize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/reconcile"
	"github.com/bianoble/vaultsync/internal/store"
)

// folderStore records create calls and fails on names in failOn.
type folderStore struct {
	existing []entry.Object
	created  []pathkey.PathKey
	lists    int
	failOn   map[string]error
}

func (s *folderStore) Name() string { return "fake" }
func (s *folderStore) List(_ context.Context, scope store.Scope) ([]entry.Object, error) {
	s.lists++
	return s.existing, nil
}
func (s *folderStore) Create(_ context.Context, spec store.CreateSpec) (entry.Object, error) {
	if err := s.failOn[spec.Name]; err != nil {
		return entry.Object{}, err
	}
	s.created = append(s.created, spec.Parent.Child(spec.Name))
	return entry.Object{ID: spec.Name, Name: spec.Name, Parent: spec.Parent, Type: spec.Type}, nil
}
func (s *folderStore) Update(context.Context, string, entry.Fields) error { return nil }
func (s *folderStore) Delete(context.Context, string) error               { return nil }
func (s *folderStore) Close() error                                       { return nil }

func folder(name string, parent ...string) entry.Object {
	return entry.Object{ID: name, Name: name, Parent: pathkey.PathKey(parent), Type: entry.TypeFolder}
}

func TestEnsureCreatesRootToLeafOnce(t *testing.T) {
	ctx := context.Background()
	s := &folderStore{existing: []entry.Object{folder("AD")}}
	rc := NewRunContext(s, pathkey.NewComparer(false), false, `\`)
	require.NoError(t, rc.Seed(ctx, pathkey.PathKey{"AD"}))

	path := pathkey.PathKey{"AD", "Servers", "Web"}
	require.NoError(t, rc.Ensure(ctx, path))
	assert.Equal(t, []pathkey.PathKey{{"AD", "Servers"}, {"AD", "Servers", "Web"}}, s.created)

	require.NoError(t, rc.Ensure(ctx, path))
	assert.Len(t, s.created, 2, "second Ensure must not create")

	// A sibling reuses the cached parent.
	require.NoError(t, rc.Ensure(ctx, pathkey.PathKey{"ad", "SERVERS", "Db"}))
	assert.Equal(t, pathkey.PathKey{"ad", "SERVERS", "Db"}, s.created[2])
	assert.Len(t, s.created, 3)
	assert.Equal(t, 1, s.lists)
}

func TestEnsureIdempotenceProperty(t *testing.T) {
	paths := []pathkey.PathKey{
		{},
		{"A"},
		{"A", "B", "C"},
		{"X", "Y"},
		{"A", "B", "D", "E"},
	}
	for _, p := range paths {
		s := &folderStore{}
		rc := NewRunContext(s, pathkey.NewComparer(false), false, `\`)
		require.NoError(t, rc.Ensure(context.Background(), p))
		first := len(s.created)
		assert.Equal(t, len(p), first)
		require.NoError(t, rc.Ensure(context.Background(), p))
		assert.Equal(t, first, len(s.created), "path %v", p)
	}
}

func TestSeedKeepsOnlyRootLine(t *testing.T) {
	ctx := context.Background()
	s := &folderStore{existing: []entry.Object{
		folder("AD"),
		folder("Servers", "AD"),
		folder("Other"),
		folder("Servers", "Other"),
	}}
	rc := NewRunContext(s, pathkey.NewComparer(false), false, `\`)
	require.NoError(t, rc.Seed(ctx, pathkey.PathKey{"AD", "Servers"}))

	assert.True(t, rc.Seeded())
	assert.True(t, rc.Exists(pathkey.PathKey{"AD"}))
	assert.True(t, rc.Exists(pathkey.PathKey{"ad", "servers"}))
	assert.False(t, rc.Exists(pathkey.PathKey{"Other"}))
	assert.True(t, rc.Exists(nil))
}

func TestEnsureDryRunPlansAndCaches(t *testing.T) {
	ctx := context.Background()
	s := &folderStore{}
	rc := NewRunContext(s, pathkey.NewComparer(false), true, `\`)

	require.NoError(t, rc.Ensure(ctx, pathkey.PathKey{"AD", "Servers"}))
	require.NoError(t, rc.Ensure(ctx, pathkey.PathKey{"AD", "Servers", "Web"}))

	assert.Empty(t, s.created)
	require.Len(t, rc.Applier.Performed, 3)
	for _, a := range rc.Applier.Performed {
		assert.Equal(t, reconcile.ReasonFolder, a.Reason)
	}
	assert.Equal(t, `Create(name="Web", parent="AD\\Servers", type=folder)`, rc.Applier.Performed[2].Describe(`\`))
	assert.True(t, rc.Exists(pathkey.PathKey{"AD", "Servers", "Web"}))
}

func TestEnsureFailureIsItemScoped(t *testing.T) {
	ctx := context.Background()
	conflict := &verrors.CreateConflictError{Name: "Bad", Parent: "AD"}
	s := &folderStore{failOn: map[string]error{"Bad": conflict}}
	rc := NewRunContext(s, pathkey.NewComparer(false), false, `\`)

	err := rc.Ensure(ctx, pathkey.PathKey{"AD", "Bad", "Deeper"})
	require.Error(t, err)
	assert.ErrorIs(t, err, verrors.ErrCreateConflict)
	assert.Equal(t, []pathkey.PathKey{{"AD"}}, s.created, "child never created before parent")
	assert.False(t, rc.Exists(pathkey.PathKey{"AD", "Bad"}))

	require.NoError(t, rc.Ensure(ctx, pathkey.PathKey{"AD", "Good"}))
	assert.Len(t, s.created, 2)
}

func TestSeedPropagatesListError(t *testing.T) {
	rc := NewRunContext(&errStore{}, pathkey.NewComparer(false), false, `\`)
	assert.Error(t, rc.Seed(context.Background(), nil))
}

type errStore struct{ folderStore }

func (s *errStore) List(context.Context, store.Scope) ([]entry.Object, error) {
	return nil, errors.New("offline")
}
