package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bianoble/vaultsync/internal/config"
	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/source"
	"github.com/bianoble/vaultsync/internal/store"
	"github.com/bianoble/vaultsync/internal/transform"
)

// memStore is an in-memory backend that records every mutating call.
type memStore struct {
	cmp    *pathkey.Comparer
	objs   []entry.Object
	calls  []string
	nextID int
	clock  time.Time

	createErr map[string]error
	listErr   error

	vaults  []entry.Vault
	current string
	pending string
	lag     int // CurrentVault reports the old vault this many times after a select

	roles []entry.Role
	perms []entry.Permission
}

func newMemStore() *memStore {
	return &memStore{
		cmp:     pathkey.NewComparer(false),
		clock:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		vaults:  []entry.Vault{{ID: "v-default", Name: "Default"}},
		current: "v-default",
	}
}

func (m *memStore) Name() string { return "mem" }
func (m *memStore) Close() error { return nil }

func (m *memStore) add(name string, parent pathkey.PathKey, typ entry.Type, f entry.Fields, created time.Time) entry.Object {
	m.nextID++
	o := entry.Object{ID: fmt.Sprintf("obj-%03d", m.nextID), Name: name, Parent: parent, Type: typ, Fields: f, CreatedAt: created}
	m.objs = append(m.objs, o)
	return o
}

func (m *memStore) List(_ context.Context, scope store.Scope) ([]entry.Object, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []entry.Object
	for _, o := range m.objs {
		if store.InScope(m.cmp, o, scope) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) find(parent pathkey.PathKey, name string, kind entry.Kind) bool {
	for _, o := range m.objs {
		if o.Kind() == kind && m.cmp.ObjectKey(o.Parent, o.Name) == m.cmp.ObjectKey(parent, name) {
			return true
		}
	}
	return false
}

func (m *memStore) Create(_ context.Context, spec store.CreateSpec) (entry.Object, error) {
	m.calls = append(m.calls, "create "+spec.Parent.Child(spec.Name).String())
	if err := m.createErr[spec.Name]; err != nil {
		return entry.Object{}, err
	}
	if m.find(spec.Parent, spec.Name, spec.Type.Kind()) {
		return entry.Object{}, &verrors.CreateConflictError{Name: spec.Name, Parent: spec.Parent.String()}
	}
	if !spec.Parent.IsRoot() {
		p, n := spec.Parent.Parent()
		if !m.find(p, n, entry.KindFolder) {
			return entry.Object{}, fmt.Errorf("parent %s does not exist", spec.Parent)
		}
	}
	m.clock = m.clock.Add(time.Minute)
	return m.add(spec.Name, spec.Parent, spec.Type, spec.Fields, m.clock), nil
}

func (m *memStore) Update(_ context.Context, id string, f entry.Fields) error {
	m.calls = append(m.calls, "update "+id)
	for i := range m.objs {
		if m.objs[i].ID == id {
			m.objs[i].Fields = m.objs[i].Fields.Merge(f)
			return nil
		}
	}
	return &verrors.NotFoundError{Kind: "entry", Name: id}
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.calls = append(m.calls, "delete "+id)
	for i := range m.objs {
		if m.objs[i].ID == id {
			m.objs = append(m.objs[:i], m.objs[i+1:]...)
			return nil
		}
	}
	return &verrors.NotFoundError{Kind: "entry", Name: id}
}

func (m *memStore) Vaults(context.Context) ([]entry.Vault, error) { return m.vaults, nil }

func (m *memStore) CurrentVault(context.Context) (entry.Vault, error) {
	if m.pending != "" {
		if m.lag > 0 {
			m.lag--
		} else {
			m.current, m.pending = m.pending, ""
		}
	}
	for _, v := range m.vaults {
		if v.ID == m.current {
			return v, nil
		}
	}
	return entry.Vault{}, &verrors.NotFoundError{Kind: "vault", Name: m.current}
}

func (m *memStore) SelectVault(_ context.Context, id string) error {
	m.calls = append(m.calls, "select "+id)
	m.pending = id
	return nil
}

func (m *memStore) SetOfflineMode(_ context.Context, id string, allow bool) error {
	m.calls = append(m.calls, fmt.Sprintf("offline %s %v", id, allow))
	for i := range m.vaults {
		if m.vaults[i].ID == id {
			m.vaults[i].AllowOffline = allow
			return nil
		}
	}
	return &verrors.NotFoundError{Kind: "vault", Name: id}
}

func (m *memStore) Roles(context.Context) ([]entry.Role, error) { return m.roles, nil }

func (m *memStore) RenameRole(_ context.Context, id, name string) error {
	m.calls = append(m.calls, "rename "+id+" "+name)
	for i := range m.roles {
		if m.roles[i].ID == id {
			m.roles[i].Name = name
			return nil
		}
	}
	return &verrors.NotFoundError{Kind: "role", Name: id}
}

func (m *memStore) Permissions(context.Context) ([]entry.Permission, error) { return m.perms, nil }

// mutations returns the create/update/delete calls only.
func (m *memStore) mutations() []string {
	var out []string
	for _, c := range m.calls {
		op, _, _ := strings.Cut(c, " ")
		if op == "create" || op == "update" || op == "delete" {
			out = append(out, c)
		}
	}
	return out
}

// staticInventory returns fixed records.
type staticInventory struct {
	records []source.Record
	err     error
	calls   int
}

func (s *staticInventory) Enumerate(context.Context, config.Source) ([]source.Record, error) {
	s.calls++
	return s.records, s.err
}

func registryWith(inv source.Inventory) *source.Registry {
	reg := source.NewRegistry()
	reg.Register("ad", inv)
	return reg
}

func adRecord(canonical, host string) source.Record {
	segs := pathkey.ParseCanonical(canonical)
	return source.Record{Name: segs[len(segs)-1], Hierarchy: segs, Raw: canonical, Host: host}
}

// downProber fails for the listed hosts.
type downProber map[string]bool

func (d downProber) Probe(_ context.Context, host string) error {
	if d[host] {
		return &verrors.ConnectivityError{Host: host, Ports: []int{3389}, Err: fmt.Errorf("connection refused")}
	}
	return nil
}

func testConfig(jobs ...config.Job) config.Config {
	cfg := config.Config{
		Version: 1,
		Backend: config.Backend{Type: "file", Path: "vault.yaml", VaultWait: 50 * time.Millisecond, VaultInterval: time.Millisecond},
		Jobs:    jobs,
	}
	config.ApplyDefaults(&cfg)
	cfg.Backend.VaultWait = 50 * time.Millisecond
	cfg.Backend.VaultInterval = time.Millisecond
	return cfg
}

func adJob() config.Job {
	return config.Job{
		Name:        "ad-servers",
		Source:      config.Source{Type: "ad", URL: "ldaps://dc01"},
		Root:        "Servers",
		Destination: "AD",
	}
}

func mustCompile(t *testing.T, fields map[string]string) *transform.FieldTemplates {
	t.Helper()
	ft, err := transform.Compile(fields)
	require.NoError(t, err)
	return ft
}

func transformData() transform.Data {
	return transform.Data{Job: "test"}
}
