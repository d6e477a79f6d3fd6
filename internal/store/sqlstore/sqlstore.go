// Package sqlstore keeps a vault in a PostgreSQL or MySQL database.
//
// MySQL DSNs must carry parseTime=true so created_at scans into time.Time.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL

	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/store"
)

const backendName = "sql"

var driverMap = map[string]string{
	"postgresql": "postgres",
	"postgres":   "postgres",
	"mysql":      "mysql",
	"mariadb":    "mysql",
}

// Store is a SQL-backed vault. Vault selection is held per Store.
type Store struct {
	db      *sql.DB
	driver  string
	cmp     *pathkey.Comparer
	now     func() time.Time
	newID   func() string
	vaultID string
}

// Option configures a Store.
type Option func(*Store)

// WithComparer sets how names are compared for conflicts.
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

var (
	_ store.Store        = (*Store)(nil)
	_ store.VaultManager = (*Store)(nil)
	_ store.RoleManager  = (*Store)(nil)
)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	name, ok := driverMap[strings.ToLower(driver)]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, &verrors.BackendError{Backend: backendName, Operation: "open", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &verrors.BackendError{Backend: backendName, Operation: "connect", Err: err}
	}
	return New(db, name, opts...), nil
}

// New wraps an open database handle. driver selects the placeholder
// dialect ("postgres" or "mysql").
func New(db *sql.DB, driver string, opts ...Option) *Store {
	s := &Store{
		db:     db,
		driver: driverMap[strings.ToLower(driver)],
		cmp:    pathkey.NewComparer(false),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name implements store.Store.
func (s *Store) Name() string { return backendName }

// Close implements store.Store.
func (s *Store) Close() error { return s.db.Close() }

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) fail(op string, err error) error {
	return verrors.NewBackendError(backendName, op, err)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS vaults (
	id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	allow_offline BOOLEAN NOT NULL DEFAULT FALSE
)`,
	`CREATE TABLE IF NOT EXISTS entries (
	id VARCHAR(64) PRIMARY KEY,
	vault_id VARCHAR(64) NOT NULL,
	name VARCHAR(255) NOT NULL,
	parent TEXT NOT NULL,
	type VARCHAR(32) NOT NULL,
	host VARCHAR(255) NOT NULL DEFAULT '',
	port INTEGER NOT NULL DEFAULT 0,
	username VARCHAR(255) NOT NULL DEFAULT '',
	password TEXT NOT NULL,
	domain VARCHAR(255) NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	description TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS roles (
	id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	description TEXT NOT NULL
)`,
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return s.fail("create schema", err)
		}
	}
	return nil
}

func encodeParent(p pathkey.PathKey) (string, error) {
	if p == nil {
		p = pathkey.PathKey{}
	}
	b, err := json.Marshal([]string(p))
	return string(b), err
}

func decodeParent(s string) (pathkey.PathKey, error) {
	var segs []string
	if err := json.Unmarshal([]byte(s), &segs); err != nil {
		return nil, fmt.Errorf("decoding parent %q: %w", s, err)
	}
	return pathkey.PathKey(segs).Child(), nil
}

const entryColumns = "id, name, parent, type, host, port, username, password, domain, url, description, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (entry.Object, error) {
	var (
		o      entry.Object
		parent string
		typ    string
	)
	err := r.Scan(&o.ID, &o.Name, &parent, &typ,
		&o.Fields.Host, &o.Fields.Port, &o.Fields.Username, &o.Fields.Password,
		&o.Fields.Domain, &o.Fields.URL, &o.Fields.Description, &o.CreatedAt)
	if err != nil {
		return entry.Object{}, err
	}
	o.Type = entry.Type(typ)
	o.Parent, err = decodeParent(parent)
	return o, err
}

func (s *Store) currentID(ctx context.Context) (string, error) {
	if s.vaultID != "" {
		return s.vaultID, nil
	}
	v, err := s.CurrentVault(ctx)
	if err != nil {
		return "", err
	}
	return v.ID, nil
}

// List implements store.Store. The kind filter runs in SQL; the path prefix
// is matched in Go so case folding follows the configured comparer.
func (s *Store) List(ctx context.Context, scope store.Scope) ([]entry.Object, error) {
	vid, err := s.currentID(ctx)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + entryColumns + " FROM entries WHERE vault_id = ?"
	args := []any{vid}
	if scope.Kind != nil {
		if *scope.Kind == entry.KindFolder {
			query += " AND type = ?"
		} else {
			query += " AND type <> ?"
		}
		args = append(args, string(entry.TypeFolder))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.fail("list", err)
	}
	defer rows.Close()

	var out []entry.Object
	for rows.Next() {
		o, err := scanEntry(rows)
		if err != nil {
			return nil, s.fail("list", err)
		}
		if store.InScope(s.cmp, o, scope) {
			out = append(out, o)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list", err)
	}
	return out, nil
}

// Create implements store.Store. The conflict check and insert run in one
// transaction.
func (s *Store) Create(ctx context.Context, spec store.CreateSpec) (entry.Object, error) {
	vid, err := s.currentID(ctx)
	if err != nil {
		return entry.Object{}, err
	}
	parent, err := encodeParent(spec.Parent)
	if err != nil {
		return entry.Object{}, s.fail("create", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return entry.Object{}, s.fail("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, s.rebind("SELECT name, parent, type FROM entries WHERE vault_id = ?"), vid)
	if err != nil {
		return entry.Object{}, s.fail("create", err)
	}
	want := s.cmp.ObjectKey(spec.Parent, spec.Name)
	parentKey := s.cmp.Key(spec.Parent)
	parentFound := spec.Parent.IsRoot()
	conflict := false
	for rows.Next() {
		var name, p, typ string
		if err := rows.Scan(&name, &p, &typ); err != nil {
			rows.Close()
			return entry.Object{}, s.fail("create", err)
		}
		pk, err := decodeParent(p)
		if err != nil {
			rows.Close()
			return entry.Object{}, s.fail("create", err)
		}
		kind := entry.Type(typ).Kind()
		if s.cmp.ObjectKey(pk, name) == want && kind == spec.Type.Kind() {
			conflict = true
			break
		}
		if kind == entry.KindFolder && s.cmp.Key(pk.Child(name)) == parentKey {
			parentFound = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return entry.Object{}, s.fail("create", err)
	}
	if conflict {
		return entry.Object{}, &verrors.CreateConflictError{Name: spec.Name, Parent: spec.Parent.String()}
	}
	if !parentFound {
		return entry.Object{}, s.fail("create", fmt.Errorf("parent folder %q does not exist", spec.Parent.String()))
	}

	o := entry.Object{
		ID:        s.newID(),
		Name:      spec.Name,
		Parent:    spec.Parent.Child(),
		Type:      spec.Type,
		Fields:    spec.Fields,
		CreatedAt: s.now().UTC(),
	}
	f := o.Fields
	_, err = tx.ExecContext(ctx, s.rebind(
		"INSERT INTO entries (id, vault_id, name, parent, type, host, port, username, password, domain, url, description, created_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		o.ID, vid, o.Name, parent, string(o.Type),
		f.Host, f.Port, f.Username, f.Password, f.Domain, f.URL, f.Description, o.CreatedAt)
	if err != nil {
		return entry.Object{}, s.fail("create", err)
	}
	if err := tx.Commit(); err != nil {
		return entry.Object{}, s.fail("commit", err)
	}
	return o, nil
}

// Update implements store.Store. Only non-empty fields are written.
func (s *Store) Update(ctx context.Context, id string, fields entry.Fields) error {
	vid, err := s.currentID(ctx)
	if err != nil {
		return err
	}

	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if fields.Host != "" {
		add("host", fields.Host)
	}
	if fields.Port != 0 {
		add("port", fields.Port)
	}
	if fields.Username != "" {
		add("username", fields.Username)
	}
	if fields.Password != "" {
		add("password", fields.Password)
	}
	if fields.Domain != "" {
		add("domain", fields.Domain)
	}
	if fields.URL != "" {
		add("url", fields.URL)
	}
	if fields.Description != "" {
		add("description", fields.Description)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id, vid)

	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE entries SET "+strings.Join(sets, ", ")+" WHERE id = ? AND vault_id = ?"), args...)
	return s.affected("update", "entry", id, res, err)
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	vid, err := s.currentID(ctx)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM entries WHERE id = ? AND vault_id = ?"), id, vid)
	return s.affected("delete", "entry", id, res, err)
}

func (s *Store) affected(op, kind, id string, res sql.Result, err error) error {
	if err != nil {
		return s.fail(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail(op, err)
	}
	if n == 0 {
		return &verrors.NotFoundError{Kind: kind, Name: id}
	}
	return nil
}

// Vaults implements store.VaultManager.
func (s *Store) Vaults(ctx context.Context) ([]entry.Vault, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, allow_offline FROM vaults ORDER BY name, id")
	if err != nil {
		return nil, s.fail("list vaults", err)
	}
	defer rows.Close()

	var out []entry.Vault
	for rows.Next() {
		var v entry.Vault
		if err := rows.Scan(&v.ID, &v.Name, &v.AllowOffline); err != nil {
			return nil, s.fail("list vaults", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list vaults", err)
	}
	return out, nil
}

// CurrentVault implements store.VaultManager. Without a selection the first
// vault by name is current.
func (s *Store) CurrentVault(ctx context.Context) (entry.Vault, error) {
	vaults, err := s.Vaults(ctx)
	if err != nil {
		return entry.Vault{}, err
	}
	if len(vaults) == 0 {
		return entry.Vault{}, &verrors.NotFoundError{Kind: "vault", Name: "current"}
	}
	if s.vaultID == "" {
		return vaults[0], nil
	}
	for _, v := range vaults {
		if v.ID == s.vaultID {
			return v, nil
		}
	}
	return entry.Vault{}, &verrors.NotFoundError{Kind: "vault", Name: s.vaultID}
}

// SelectVault implements store.VaultManager.
func (s *Store) SelectVault(ctx context.Context, id string) error {
	var found string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id FROM vaults WHERE id = ?"), id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return &verrors.NotFoundError{Kind: "vault", Name: id}
	}
	if err != nil {
		return s.fail("select vault", err)
	}
	s.vaultID = found
	return nil
}

// SetOfflineMode implements store.VaultManager.
func (s *Store) SetOfflineMode(ctx context.Context, id string, allow bool) error {
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE vaults SET allow_offline = ? WHERE id = ?"), allow, id)
	return s.affected("set offline mode", "vault", id, res, err)
}

// Roles implements store.RoleManager.
func (s *Store) Roles(ctx context.Context) ([]entry.Role, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, description FROM roles ORDER BY name, id")
	if err != nil {
		return nil, s.fail("list roles", err)
	}
	defer rows.Close()

	var out []entry.Role
	for rows.Next() {
		var r entry.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return nil, s.fail("list roles", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list roles", err)
	}
	return out, nil
}

// RenameRole implements store.RoleManager.
func (s *Store) RenameRole(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE roles SET name = ? WHERE id = ?"), name, id)
	return s.affected("rename role", "role", id, res, err)
}
