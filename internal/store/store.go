// Package store defines the backing store contract: the vault holding the
// folders and entries vaultsync reconciles. Implementations live in the
// filestore, sqlstore and httpstore subpackages.
package store

import (
	"context"

	"github.com/bianoble/vaultsync/internal/entry"
	"github.com/bianoble/vaultsync/internal/pathkey"
)

// Scope selects the objects a List call returns: everything at or below Root
// in the currently selected vault.
type Scope struct {
	Root pathkey.PathKey

	// Kind restricts the listing to folders or leaves. Nil means both.
	Kind *entry.Kind
}

// FoldersOnly returns a scope listing folders under root.
func FoldersOnly(root pathkey.PathKey) Scope {
	k := entry.KindFolder
	return Scope{Root: root, Kind: &k}
}

// LeavesOnly returns a scope listing entries under root.
func LeavesOnly(root pathkey.PathKey) Scope {
	k := entry.KindLeaf
	return Scope{Root: root, Kind: &k}
}

// CreateSpec describes an object to create.
type CreateSpec struct {
	Name   string
	Parent pathkey.PathKey
	Type   entry.Type
	Fields entry.Fields
}

// Store is the minimum every backend implements. List is idempotent. Create
// fails with a CreateConflictError when (Name, Parent, Kind) already exists.
type Store interface {
	Name() string
	List(ctx context.Context, scope Scope) ([]entry.Object, error)
	Create(ctx context.Context, spec CreateSpec) (entry.Object, error)
	Update(ctx context.Context, id string, fields entry.Fields) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// VaultManager is implemented by backends that hold several vaults.
type VaultManager interface {
	Vaults(ctx context.Context) ([]entry.Vault, error)
	CurrentVault(ctx context.Context) (entry.Vault, error)
	// SelectVault requests a switch. The switch may take effect later;
	// callers confirm it through CurrentVault.
	SelectVault(ctx context.Context, id string) error
	SetOfflineMode(ctx context.Context, id string, allow bool) error
}

// RoleManager is implemented by backends that expose security roles.
type RoleManager interface {
	Roles(ctx context.Context) ([]entry.Role, error)
	RenameRole(ctx context.Context, id, name string) error
}

// PermissionLister is implemented by backends that expose object permissions
// for the current vault.
type PermissionLister interface {
	Permissions(ctx context.Context) ([]entry.Permission, error)
}

// InScope reports whether o falls under scope, using cmp for comparisons.
func InScope(cmp *pathkey.Comparer, o entry.Object, scope Scope) bool {
	if scope.Kind != nil && o.Kind() != *scope.Kind {
		return false
	}
	return cmp.HasPrefix(o.Path(), scope.Root) && len(o.Path()) > len(scope.Root)
}
