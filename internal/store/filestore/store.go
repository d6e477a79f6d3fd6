// Package filestore keeps a vault in a single YAML file. It implements the
// full store contract including vaults, roles and permissions, and is the
// backend used for local trials and tests.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/store"
)

const backendName = "file"

// DefaultVaultName names the vault created in a new file.
const DefaultVaultName = "Default"

// Store is a file-backed vault.
type Store struct {
	mu    sync.Mutex
	path  string
	doc   *Document
	cmp   *pathkey.Comparer
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithComparer sets how names are compared for conflicts. Default is case
// insensitive.
func WithComparer(cmp *pathkey.Comparer) Option {
	return func(s *Store) { s.cmp = cmp }
}

// WithClock sets the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs sets the ID generator.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// Open loads the vault file at path, or starts a new document holding one
// empty vault when the file does not exist. Nothing is written until the
// first mutation.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:  path,
		cmp:   pathkey.NewComparer(false),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}

	doc, err := Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		doc = &Document{
			Version: 1,
			Vaults:  []VaultRecord{{ID: s.newID(), Name: DefaultVaultName}},
		}
	case err != nil:
		return nil, err
	}
	s.doc = doc
	return s, nil
}

var (
	_ store.Store            = (*Store)(nil)
	_ store.VaultManager     = (*Store)(nil)
	_ store.RoleManager      = (*Store)(nil)
	_ store.PermissionLister = (*Store)(nil)
)

// Name implements store.Store.
func (s *Store) Name() string { return backendName }

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Document returns a copy of the in-memory document.
func (s *Store) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.doc
}

func (s *Store) current() *VaultRecord {
	if len(s.doc.Vaults) == 0 {
		return nil
	}
	for i := range s.doc.Vaults {
		if s.doc.Vaults[i].ID == s.doc.CurrentVault {
			return &s.doc.Vaults[i]
		}
	}
	return &s.doc.Vaults[0]
}

func (s *Store) save(op string) error {
	if err := Save(s.path, s.doc); err != nil {
		return &verrors.BackendError{Backend: backendName, Operation: op, Err: err}
	}
	return nil
}

func toObject(r EntryRecord) entry.Object {
	return entry.Object{
		ID:        r.ID,
		Name:      r.Name,
		Parent:    pathkey.PathKey(r.Parent).Child(),
		Type:      entry.Type(r.Type),
		Fields:    r.Fields,
		CreatedAt: r.CreatedAt,
	}
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, scope store.Scope) ([]entry.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.current()
	if v == nil {
		return nil, nil
	}
	var out []entry.Object
	for _, r := range v.Entries {
		o := toObject(r)
		if store.InScope(s.cmp, o, scope) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, spec store.CreateSpec) (entry.Object, error) {
	if err := ctx.Err(); err != nil {
		return entry.Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.current()
	if v == nil {
		return entry.Object{}, &verrors.BackendError{Backend: backendName, Operation: "create", Err: errors.New("no vault")}
	}

	want := s.cmp.ObjectKey(spec.Parent, spec.Name)
	parentFound := spec.Parent.IsRoot()
	parentKey := s.cmp.Key(spec.Parent)
	for _, r := range v.Entries {
		o := toObject(r)
		if s.cmp.ObjectKey(o.Parent, o.Name) == want && o.Kind() == spec.Type.Kind() {
			return entry.Object{}, &verrors.CreateConflictError{Name: spec.Name, Parent: spec.Parent.String()}
		}
		if o.Kind() == entry.KindFolder && s.cmp.Key(o.Path()) == parentKey {
			parentFound = true
		}
	}
	if !parentFound {
		return entry.Object{}, &verrors.BackendError{
			Backend:   backendName,
			Operation: "create",
			Err:       fmt.Errorf("parent folder %q does not exist", spec.Parent.String()),
		}
	}

	rec := EntryRecord{
		ID:        s.newID(),
		Name:      spec.Name,
		Parent:    spec.Parent.Child(),
		Type:      string(spec.Type),
		Fields:    spec.Fields,
		CreatedAt: s.now().UTC(),
	}
	v.Entries = append(v.Entries, rec)
	if err := s.save("create"); err != nil {
		v.Entries = v.Entries[:len(v.Entries)-1]
		return entry.Object{}, err
	}
	return toObject(rec), nil
}

func (s *Store) findEntry(v *VaultRecord, id string) int {
	for i := range v.Entries {
		if v.Entries[i].ID == id {
			return i
		}
	}
	return -1
}

// Update implements store.Store. Empty fields keep their stored value.
func (s *Store) Update(ctx context.Context, id string, fields entry.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.current()
	i := -1
	if v != nil {
		i = s.findEntry(v, id)
	}
	if i < 0 {
		return &verrors.NotFoundError{Kind: "entry", Name: id}
	}

	prev := v.Entries[i].Fields
	v.Entries[i].Fields = prev.Merge(fields)
	if err := s.save("update"); err != nil {
		v.Entries[i].Fields = prev
		return err
	}
	return nil
}

// Delete implements store.Store. A folder must be empty.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.current()
	i := -1
	if v != nil {
		i = s.findEntry(v, id)
	}
	if i < 0 {
		return &verrors.NotFoundError{Kind: "entry", Name: id}
	}

	target := toObject(v.Entries[i])
	if target.Kind() == entry.KindFolder {
		key := s.cmp.Key(target.Path())
		for _, r := range v.Entries {
			if s.cmp.Key(r.Parent) == key {
				return &verrors.BackendError{
					Backend:   backendName,
					Operation: "delete",
					Err:       fmt.Errorf("folder %q is not empty", target.Path().String()),
				}
			}
		}
	}

	prevEntries := v.Entries
	prevPerms := v.Permissions

	entries := make([]EntryRecord, 0, len(v.Entries)-1)
	entries = append(entries, v.Entries[:i]...)
	v.Entries = append(entries, v.Entries[i+1:]...)

	var perms []PermissionRecord
	for _, p := range v.Permissions {
		if p.ObjectID != id {
			perms = append(perms, p)
		}
	}
	v.Permissions = perms

	if err := s.save("delete"); err != nil {
		v.Entries, v.Permissions = prevEntries, prevPerms
		return err
	}
	return nil
}

// Vaults implements store.VaultManager.
func (s *Store) Vaults(ctx context.Context) ([]entry.Vault, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entry.Vault, 0, len(s.doc.Vaults))
	for _, v := range s.doc.Vaults {
		out = append(out, entry.Vault{ID: v.ID, Name: v.Name, AllowOffline: v.AllowOffline})
	}
	return out, nil
}

// CurrentVault implements store.VaultManager.
func (s *Store) CurrentVault(ctx context.Context) (entry.Vault, error) {
	if err := ctx.Err(); err != nil {
		return entry.Vault{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.current()
	if v == nil {
		return entry.Vault{}, &verrors.NotFoundError{Kind: "vault", Name: "current"}
	}
	return entry.Vault{ID: v.ID, Name: v.Name, AllowOffline: v.AllowOffline}, nil
}

func (s *Store) vaultIndex(id string) int {
	for i := range s.doc.Vaults {
		if s.doc.Vaults[i].ID == id {
			return i
		}
	}
	return -1
}

// SelectVault implements store.VaultManager. The switch is immediate and
// persisted.
func (s *Store) SelectVault(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vaultIndex(id) < 0 {
		return &verrors.NotFoundError{Kind: "vault", Name: id}
	}
	prev := s.doc.CurrentVault
	s.doc.CurrentVault = id
	if err := s.save("select vault"); err != nil {
		s.doc.CurrentVault = prev
		return err
	}
	return nil
}

// SetOfflineMode implements store.VaultManager.
func (s *Store) SetOfflineMode(ctx context.Context, id string, allow bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.vaultIndex(id)
	if i < 0 {
		return &verrors.NotFoundError{Kind: "vault", Name: id}
	}
	prev := s.doc.Vaults[i].AllowOffline
	s.doc.Vaults[i].AllowOffline = allow
	if err := s.save("set offline mode"); err != nil {
		s.doc.Vaults[i].AllowOffline = prev
		return err
	}
	return nil
}

// Roles implements store.RoleManager.
func (s *Store) Roles(ctx context.Context) ([]entry.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entry.Role, 0, len(s.doc.Roles))
	for _, r := range s.doc.Roles {
		out = append(out, entry.Role{ID: r.ID, Name: r.Name, Description: r.Description})
	}
	return out, nil
}

// RenameRole implements store.RoleManager.
func (s *Store) RenameRole(ctx context.Context, id, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.doc.Roles {
		if r.ID == id {
			idx = i
			continue
		}
		if s.cmp.Equal(r.Name, name) {
			return &verrors.CreateConflictError{Name: name, Parent: "roles"}
		}
	}
	if idx < 0 {
		return &verrors.NotFoundError{Kind: "role", Name: id}
	}

	prev := s.doc.Roles[idx].Name
	s.doc.Roles[idx].Name = name
	if err := s.save("rename role"); err != nil {
		s.doc.Roles[idx].Name = prev
		return err
	}
	return nil
}

// Permissions implements store.PermissionLister for the current vault.
func (s *Store) Permissions(ctx context.Context) ([]entry.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.current()
	if v == nil {
		return nil, nil
	}
	paths := make(map[string]pathkey.PathKey, len(v.Entries))
	for _, r := range v.Entries {
		paths[r.ID] = toObject(r).Path()
	}

	out := make([]entry.Permission, 0, len(v.Permissions))
	for _, p := range v.Permissions {
		out = append(out, entry.Permission{
			ObjectID:  p.ObjectID,
			Path:      paths[p.ObjectID],
			Right:     entry.Right(p.Right),
			Roles:     append([]string(nil), p.Roles...),
			Inherited: p.Inherited,
		})
	}
	return out, nil
}
