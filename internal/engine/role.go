package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/logging"
	"github.com/bianoble/vaultsync/internal/store"
)

// RoleEngine lists and renames security roles.
type RoleEngine struct {
	Store     store.Store
	Ambiguity string
}

func (e *RoleEngine) manager() (store.RoleManager, error) {
	rm, ok := e.Store.(store.RoleManager)
	if !ok {
		return nil, &verrors.UnsupportedError{Backend: e.Store.Name(), Capability: "roles"}
	}
	return rm, nil
}

// List returns every role.
func (e *RoleEngine) List(ctx context.Context) ([]entry.Role, error) {
	rm, err := e.manager()
	if err != nil {
		return nil, err
	}
	return rm.Roles(ctx)
}

// Rename gives role ref (an ID or a name) the name to. In a dry run the
// role is looked up and the rename only logged. Renaming a role to its
// current name is a no-op.
func (e *RoleEngine) Rename(ctx context.Context, ref, to string, dryRun bool) (entry.Role, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return entry.Role{}, fmt.Errorf("new role name must not be empty")
	}
	rm, err := e.manager()
	if err != nil {
		return entry.Role{}, err
	}
	roles, err := rm.Roles(ctx)
	if err != nil {
		return entry.Role{}, err
	}

	log := logging.FromContext(ctx)
	r, err := pick(log, "role", ref, e.Ambiguity, roles,
		func(r entry.Role) string { return r.ID },
		func(r entry.Role) string { return r.Name })
	if err != nil {
		return entry.Role{}, err
	}
	if r.Name == to {
		return r, nil
	}

	call := fmt.Sprintf("RenameRole(id=%q, from=%q, to=%q)", r.ID, r.Name, to)
	if dryRun {
		log.Info().Str("call", call).Bool("dry_run", true).Msg("planned")
		r.Name = to
		return r, nil
	}
	if err := rm.RenameRole(ctx, r.ID, to); err != nil {
		return entry.Role{}, err
	}
	log.Info().Str("call", call).Msg("applied")
	r.Name = to
	return r, nil
}
