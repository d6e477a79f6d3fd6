package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/store"
)

var created = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T, driver string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	s := New(db, driver,
		WithIDs(func() string { return "new-id" }),
		WithClock(func() time.Time { return created }),
	)
	return s, mock
}

func selectVault(t *testing.T, s *Store, mock sqlmock.Sqlmock, query, id string) {
	t.Helper()
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
	require.NoError(t, s.SelectVault(context.Background(), id))
}

func entryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "parent", "type", "host", "port", "username", "password", "domain", "url", "description", "created_at"})
}

func TestRebind(t *testing.T) {
	pg := New(nil, "postgresql")
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2", pg.rebind("UPDATE t SET a = ? WHERE b = ?"))

	my := New(nil, "mariadb")
	assert.Equal(t, "UPDATE t SET a = ? WHERE b = ?", my.rebind("UPDATE t SET a = ? WHERE b = ?"))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "sqlite", "file.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestListFiltersScopeInGo(t *testing.T) {
	s, mock := newMock(t, "postgres")
	selectVault(t, s, mock, "SELECT id FROM vaults WHERE id = $1", "v1")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + entryColumns + " FROM entries WHERE vault_id = $1 AND type <> $2 ORDER BY created_at, id")).
		WithArgs("v1", "folder").
		WillReturnRows(entryRows().
			AddRow("e1", "SRV01", `["ad","Servers"]`, "rdp", "srv01", int64(3389), "", "", "", "", "", created).
			AddRow("e2", "SRV02", `["Other"]`, "rdp", "srv02", int64(0), "", "", "", "", "", created))

	objs, err := s.List(context.Background(), store.LeavesOnly(pathkey.PathKey{"AD"}))
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "e1", objs[0].ID)
	assert.Equal(t, pathkey.PathKey{"ad", "Servers"}, objs[0].Parent)
	assert.Equal(t, 3389, objs[0].Fields.Port)
	assert.Equal(t, entry.TypeRDP, objs[0].Type)
}

func TestListWithoutSelectionUsesFirstVault(t *testing.T) {
	s, mock := newMock(t, "mysql")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, allow_offline FROM vaults ORDER BY name, id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "allow_offline"}).
			AddRow("v-a", "Alpha", false).
			AddRow("v-b", "Beta", true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + entryColumns + " FROM entries WHERE vault_id = ? ORDER BY created_at, id")).
		WithArgs("v-a").
		WillReturnRows(entryRows())

	objs, err := s.List(context.Background(), store.Scope{})
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestCreateInsertsInTransaction(t *testing.T) {
	s, mock := newMock(t, "postgres")
	selectVault(t, s, mock, "SELECT id FROM vaults WHERE id = $1", "v1")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, parent, type FROM entries WHERE vault_id = $1")).
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "parent", "type"}).
			AddRow("AD", `[]`, "folder").
			AddRow("SRV01", `["AD"]`, "folder"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO entries")).
		WithArgs("new-id", "v1", "SRV01", `["AD"]`, "rdp", "srv01", 3389, "", "", "", "", "", created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	o, err := s.Create(context.Background(), store.CreateSpec{
		Name:   "SRV01",
		Parent: pathkey.PathKey{"AD"},
		Type:   entry.TypeRDP,
		Fields: entry.Fields{Host: "srv01", Port: 3389},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", o.ID)
	assert.Equal(t, created, o.CreatedAt)
}

func TestCreateConflictRollsBack(t *testing.T) {
	s, mock := newMock(t, "mysql")
	selectVault(t, s, mock, "SELECT id FROM vaults WHERE id = ?", "v1")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, parent, type FROM entries WHERE vault_id = ?")).
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "parent", "type"}).
			AddRow("srv01", `["ad"]`, "ssh"))
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), store.CreateSpec{
		Name:   "SRV01",
		Parent: pathkey.PathKey{"AD"},
		Type:   entry.TypeRDP,
	})
	assert.ErrorIs(t, err, verrors.ErrCreateConflict)
}

func TestCreateRequiresParentFolder(t *testing.T) {
	s, mock := newMock(t, "postgres")
	selectVault(t, s, mock, "SELECT id FROM vaults WHERE id = $1", "v1")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, parent, type FROM entries WHERE vault_id = $1")).
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "parent", "type"}).
			AddRow("AD", `[]`, "rdp").
			AddRow("Web", `["AD"]`, "folder"))
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), store.CreateSpec{
		Name:   "SRV01",
		Parent: pathkey.PathKey{"AD"},
		Type:   entry.TypeRDP,
	})
	var be *verrors.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "create", be.Operation)
	assert.Contains(t, err.Error(), "parent folder")
}

func TestCreateBeginFailureIsBackendError(t *testing.T) {
	s, mock := newMock(t, "mysql")
	selectVault(t, s, mock, "SELECT id FROM vaults WHERE id = ?", "v1")

	mock.ExpectBegin().WillReturnError(errors.New("connection lost"))

	_, err := s.Create(context.Background(), store.CreateSpec{Name: "x", Type: entry.TypeCredential})
	var be *verrors.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "begin transaction", be.Operation)
}

func TestUpdateWritesOnlySetFields(t *testing.T) {
	s, mock := newMock(t, "mysql")
	selectVault(t, s, mock, "SELECT id FROM vaults WHERE id = ?", "v1")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE entries SET host = ?, password = ? WHERE id = ? AND vault_id = ?")).
		WithArgs("srv01.corp", "pw", "e1", "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Update(context.Background(), "e1", entry.Fields{Host: "srv01.corp", Password: "pw"}))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE entries SET port = ? WHERE id = ? AND vault_id = ?")).
		WithArgs(22, "ghost", "v1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.Update(context.Background(), "ghost", entry.Fields{Port: 22})
	assert.ErrorIs(t, err, verrors.ErrNotFound)

	// Nothing to write issues no statement.
	assert.NoError(t, s.Update(context.Background(), "e1", entry.Fields{}))
}

func TestDelete(t *testing.T) {
	s, mock := newMock(t, "postgres")
	selectVault(t, s, mock, "SELECT id FROM vaults WHERE id = $1", "v1")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM entries WHERE id = $1 AND vault_id = $2")).
		WithArgs("e1", "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Delete(context.Background(), "e1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM entries WHERE id = $1 AND vault_id = $2")).
		WithArgs("e1", "v1").
		WillReturnError(errors.New("deadlock"))
	assert.ErrorIs(t, s.Delete(context.Background(), "e1"), verrors.ErrBackend)
}

func TestSelectVaultNotFound(t *testing.T) {
	s, mock := newMock(t, "postgres")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM vaults WHERE id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	assert.ErrorIs(t, s.SelectVault(context.Background(), "nope"), verrors.ErrNotFound)
}

func TestSetOfflineModeAndRoles(t *testing.T) {
	s, mock := newMock(t, "postgres")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE vaults SET allow_offline = $1 WHERE id = $2")).
		WithArgs(true, "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetOfflineMode(context.Background(), "v1", true))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description FROM roles ORDER BY name, id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description"}).
			AddRow("r1", "Helpdesk", "first line"))
	roles, err := s.Roles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []entry.Role{{ID: "r1", Name: "Helpdesk", Description: "first line"}}, roles)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE roles SET name = $1 WHERE id = $2")).
		WithArgs("Service Desk", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.RenameRole(context.Background(), "r1", "Service Desk"))
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMock(t, "postgres")
	for _, table := range []string{"vaults", "entries", "roles"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, s.EnsureSchema(context.Background()))
}
