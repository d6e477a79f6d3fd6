package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
)

func roleStore() *memStore {
	m := newMemStore()
	m.roles = []entry.Role{
		{ID: "r-1", Name: "Administrators"},
		{ID: "r-2", Name: "Helpdesk"},
		{ID: "r-3", Name: "helpdesk"},
	}
	return m
}

func TestRoleRename(t *testing.T) {
	m := roleStore()
	e := &RoleEngine{Store: m}

	r, err := e.Rename(context.Background(), "administrators", "Admins", false)
	require.NoError(t, err)
	assert.Equal(t, entry.Role{ID: "r-1", Name: "Admins"}, r)
	assert.Equal(t, []string{"rename r-1 Admins"}, m.calls)
	assert.Equal(t, "Admins", m.roles[0].Name)
}

func TestRoleRenameByIDAndNoop(t *testing.T) {
	m := roleStore()
	e := &RoleEngine{Store: m}

	_, err := e.Rename(context.Background(), "r-2", "Helpdesk", false)
	require.NoError(t, err)
	assert.Empty(t, m.calls)
}

func TestRoleRenameDryRun(t *testing.T) {
	m := roleStore()
	e := &RoleEngine{Store: m}

	r, err := e.Rename(context.Background(), "r-1", "Admins", true)
	require.NoError(t, err)
	assert.Equal(t, "Admins", r.Name)
	assert.Empty(t, m.calls)
	assert.Equal(t, "Administrators", m.roles[0].Name)
}

func TestRoleRenameAmbiguity(t *testing.T) {
	ctx := context.Background()

	m := roleStore()
	_, err := (&RoleEngine{Store: m}).Rename(ctx, "HELPDESK", "Support", false)
	assert.ErrorIs(t, err, verrors.ErrAmbiguous)
	assert.Empty(t, m.calls)

	m = roleStore()
	r, err := (&RoleEngine{Store: m, Ambiguity: AmbiguityFirst}).Rename(ctx, "HELPDESK", "Support", false)
	require.NoError(t, err)
	assert.Equal(t, "r-2", r.ID)
	assert.Equal(t, []string{"rename r-2 Support"}, m.calls)
}

func TestRoleRenameErrors(t *testing.T) {
	ctx := context.Background()
	e := &RoleEngine{Store: roleStore()}

	_, err := e.Rename(ctx, "Auditors", "Audit", false)
	assert.ErrorIs(t, err, verrors.ErrNotFound)

	_, err = e.Rename(ctx, "r-1", "  ", false)
	assert.ErrorContains(t, err, "must not be empty")

	_, err = (&RoleEngine{Store: leafOnly{roleStore()}}).List(ctx)
	assert.ErrorIs(t, err, verrors.ErrUnsupported)
}
