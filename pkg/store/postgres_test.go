package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sqliteSchema mirrors the migrations minus the postgres-only
// NOW() defaults; every test inserts timestamps explicitly.
const sqliteSchema = `
	CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tax_id TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_system_role BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE permissions (
		id TEXT PRIMARY KEY,
		resource TEXT NOT NULL,
		action TEXT NOT NULL,
		level INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE role_permissions (
		id TEXT PRIMARY KEY,
		role_id TEXT NOT NULL,
		permission_id TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE(role_id, permission_id)
	);

	CREATE TABLE user_company_roles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		role_ids TEXT NOT NULL DEFAULT '[]',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		assigned_at TIMESTAMP NOT NULL
	);

	CREATE TABLE modules (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		is_core BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE connections (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		status TEXT NOT NULL,
		verify_token TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		phone_number_id TEXT,
		display_phone_number TEXT,
		connection_ref_id TEXT,
		page_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
`

func setupStoreTest(t *testing.T) *SQLStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(sqliteSchema)
	require.NoError(t, err)

	return NewSQLStore(db)
}

func seedUser(t *testing.T, s *SQLStore, id string, active bool) {
	t.Helper()
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO users (id, email, first_name, last_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, id+"@example.com", "First", "Last", active, now, now)
	require.NoError(t, err)
}

func seedRole(t *testing.T, s *SQLStore, id string, active bool) {
	t.Helper()
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO roles (id, name, description, is_system_role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, id, "", false, active, now, now)
	require.NoError(t, err)
}

func seedPermission(t *testing.T, s *SQLStore, id, resource, action string, level int, active bool) {
	t.Helper()
	_, err := s.db.Exec(`
		INSERT INTO permissions (id, resource, action, level, description, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, resource, action, level, "", active, time.Now().UTC())
	require.NoError(t, err)
}

func seedRolePermission(t *testing.T, s *SQLStore, id, roleID, permissionID string, active bool) {
	t.Helper()
	_, err := s.db.Exec(`
		INSERT INTO role_permissions (id, role_id, permission_id, is_active)
		VALUES ($1, $2, $3, $4)
	`, id, roleID, permissionID, active)
	require.NoError(t, err)
}

func seedBinding(t *testing.T, s *SQLStore, id, userID, companyID, roleIDs string, active bool, assignedAt time.Time) {
	t.Helper()
	_, err := s.db.Exec(`
		INSERT INTO user_company_roles (id, user_id, company_id, role_ids, is_active, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, userID, companyID, roleIDs, active, assignedAt)
	require.NoError(t, err)
}

func TestGetUserByID(t *testing.T) {
	s := setupStoreTest(t)
	seedUser(t, s, "user-1", true)

	user, err := s.GetUserByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "user-1@example.com", user.Email)
	assert.True(t, user.IsActive)
}

func TestGetUserByID_NotFound(t *testing.T) {
	s := setupStoreTest(t)

	_, err := s.GetUserByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetActiveUserCompanyRole(t *testing.T) {
	s := setupStoreTest(t)
	seedBinding(t, s, "ucr-1", "user-1", "company-1", `["role-a","role-b"]`, true, time.Now().UTC())

	binding, err := s.GetActiveUserCompanyRole(context.Background(), "user-1", "company-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"role-a", "role-b"}, binding.RoleIDs)
	assert.True(t, binding.IsActive)
}

func TestGetActiveUserCompanyRole_IgnoresInactive(t *testing.T) {
	s := setupStoreTest(t)
	seedBinding(t, s, "ucr-1", "user-1", "company-1", `["role-a"]`, false, time.Now().UTC())

	_, err := s.GetActiveUserCompanyRole(context.Background(), "user-1", "company-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetActiveUserCompanyRole_MostRecentWinsOnDuplicates(t *testing.T) {
	s := setupStoreTest(t)
	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	seedBinding(t, s, "ucr-old", "user-1", "company-1", `["role-old"]`, true, older)
	seedBinding(t, s, "ucr-new", "user-1", "company-1", `["role-new"]`, true, newer)

	binding, err := s.GetActiveUserCompanyRole(context.Background(), "user-1", "company-1")
	require.NoError(t, err)
	assert.Equal(t, "ucr-new", binding.ID)
	assert.Equal(t, []string{"role-new"}, binding.RoleIDs)
}

func TestGetRolesByIDs(t *testing.T) {
	s := setupStoreTest(t)
	seedRole(t, s, "role-a", true)
	seedRole(t, s, "role-b", true)
	seedRole(t, s, "role-dead", false)

	roles, err := s.GetRolesByIDs(context.Background(), []string{"role-a", "role-b", "role-dead", "role-missing"})
	require.NoError(t, err)
	require.Len(t, roles, 2)

	ids := []string{roles[0].ID, roles[1].ID}
	assert.ElementsMatch(t, []string{"role-a", "role-b"}, ids)
}

func TestGetRolesByIDs_Empty(t *testing.T) {
	s := setupStoreTest(t)

	roles, err := s.GetRolesByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, roles)
}

func TestGetActiveRolePermissions(t *testing.T) {
	s := setupStoreTest(t)
	seedRole(t, s, "role-a", true)
	seedPermission(t, s, "perm-read", "users", "read", 50, true)
	seedPermission(t, s, "perm-write", "users", "write", 70, true)
	seedPermission(t, s, "perm-dead", "billing", "read", 10, false)
	seedRolePermission(t, s, "rp-1", "role-a", "perm-read", true)
	seedRolePermission(t, s, "rp-2", "role-a", "perm-write", false)
	seedRolePermission(t, s, "rp-3", "role-a", "perm-dead", true)

	entries, err := s.GetActiveRolePermissions(context.Background(), []string{"role-a"})
	require.NoError(t, err)

	// Inactive joins and inactive permissions are both filtered out.
	require.Len(t, entries, 1)
	assert.Equal(t, "perm-read", entries[0].PermissionID)
	assert.Equal(t, "users", entries[0].Permission.Resource)
	assert.Equal(t, "read", entries[0].Permission.Action)
	assert.Equal(t, 50, entries[0].Permission.Level)
}

func TestListActiveModules(t *testing.T) {
	s := setupStoreTest(t)
	_, err := s.db.Exec(`
		INSERT INTO modules (id, code, name, is_core, is_active) VALUES
			('mod-1', 'inbox', 'Inbox', TRUE, TRUE),
			('mod-2', 'campaigns', 'Campaigns', FALSE, TRUE),
			('mod-3', 'legacy', 'Legacy', FALSE, FALSE)
	`)
	require.NoError(t, err)

	modules, err := s.ListActiveModules(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 2)

	// Ordered by code.
	assert.Equal(t, "campaigns", modules[0].Code)
	assert.Equal(t, "inbox", modules[1].Code)
}

func TestUpsertUserCompanyRole_DeactivatesPrevious(t *testing.T) {
	s := setupStoreTest(t)
	ctx := context.Background()
	seedBinding(t, s, "ucr-old", "user-1", "company-1", `["role-old"]`, true, time.Now().UTC().Add(-time.Hour))

	err := s.UpsertUserCompanyRole(ctx, &UserCompanyRole{
		ID:        "ucr-new",
		UserID:    "user-1",
		CompanyID: "company-1",
		RoleIDs:   []string{"role-new"},
	})
	require.NoError(t, err)

	binding, err := s.GetActiveUserCompanyRole(ctx, "user-1", "company-1")
	require.NoError(t, err)
	assert.Equal(t, "ucr-new", binding.ID)
	assert.Equal(t, []string{"role-new"}, binding.RoleIDs)

	var activeCount int
	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM user_company_roles
		WHERE user_id = $1 AND company_id = $2 AND is_active = $3
	`, "user-1", "company-1", true).Scan(&activeCount)
	require.NoError(t, err)
	assert.Equal(t, 1, activeCount)
}

func TestConnectionRoundTrip(t *testing.T) {
	s := setupStoreTest(t)
	ctx := context.Background()

	conn := &Connection{
		ID:          "conn-1",
		CompanyID:   "company-1",
		Channel:     "whatsapp",
		Status:      ConnectionPending,
		VerifyToken: "vt-1",
		DisplayName: "Main line",
	}
	require.NoError(t, s.CreateConnection(ctx, conn))

	loaded, err := s.GetConnectionByID(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, ConnectionPending, loaded.Status)
	assert.Empty(t, loaded.PhoneNumberID)

	loaded.Status = ConnectionCodeReceived
	loaded.PhoneNumberID = "pn-1"
	require.NoError(t, s.UpdateConnection(ctx, loaded))

	again, err := s.GetConnectionByID(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, ConnectionCodeReceived, again.Status)
	assert.Equal(t, "pn-1", again.PhoneNumberID)
}

func TestGetConnectionByID_NotFound(t *testing.T) {
	s := setupStoreTest(t)

	_, err := s.GetConnectionByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateConnection_NotFound(t *testing.T) {
	s := setupStoreTest(t)

	err := s.UpdateConnection(context.Background(), &Connection{ID: "ghost", Status: ConnectionActive})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListStaleConnections(t *testing.T) {
	s := setupStoreTest(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	insert := func(id string, status ConnectionStatus, updatedAt time.Time) {
		_, err := s.db.Exec(`
			INSERT INTO connections (id, company_id, channel, status, verify_token, display_name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, "company-1", "whatsapp", string(status), "vt", "x", old, updatedAt)
		require.NoError(t, err)
	}

	insert("stale-pending", ConnectionPending, old)
	insert("stale-code", ConnectionCodeReceived, old)
	insert("fresh", ConnectionPending, time.Now().UTC())
	insert("terminal", ConnectionActive, old)

	stale, err := s.ListStaleConnections(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 2)

	ids := []string{stale[0].ID, stale[1].ID}
	assert.ElementsMatch(t, []string{"stale-pending", "stale-code"}, ids)
}

func TestGetUserByID_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM users").WillReturnError(sql.ErrConnDone)

	s := NewSQLStore(db)
	_, err = s.GetUserByID(context.Background(), "user-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
