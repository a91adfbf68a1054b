package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SQLStore implements Store on top of database/sql. It is written against
// PostgreSQL (lib/pq) but sticks to portable SQL so tests can run it
// against an in-memory sqlite database.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// GetUserByID returns a user by subject id.
func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, first_name, last_name, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetActiveUserCompanyRole returns the active binding for (user, company).
// The ORDER BY makes the most recently assigned record win when the
// at-most-one-active invariant has been violated upstream.
func (s *SQLStore) GetActiveUserCompanyRole(ctx context.Context, userID, companyID string) (*UserCompanyRole, error) {
	query := `
		SELECT id, user_id, company_id, role_ids, is_active, assigned_at
		FROM user_company_roles
		WHERE user_id = $1 AND company_id = $2 AND is_active = $3
		ORDER BY assigned_at DESC
		LIMIT 1
	`

	var record UserCompanyRole
	var roleIDsJSON string
	err := s.db.QueryRowContext(ctx, query, userID, companyID, true).Scan(
		&record.ID,
		&record.UserID,
		&record.CompanyID,
		&roleIDsJSON,
		&record.IsActive,
		&record.AssignedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user company role: %w", err)
	}

	if err := json.Unmarshal([]byte(roleIDsJSON), &record.RoleIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal role ids: %w", err)
	}

	return &record, nil
}

// GetRolesByIDs returns the active roles among the given ids.
func (s *SQLStore) GetRolesByIDs(ctx context.Context, ids []string) ([]Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	args = append(args, true)

	query := fmt.Sprintf(`
		SELECT id, name, description, is_system_role, is_active, created_at, updated_at
		FROM roles
		WHERE id IN (%s) AND is_active = $%d
	`, strings.Join(placeholders, ", "), len(ids)+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		err := rows.Scan(
			&role.ID,
			&role.Name,
			&role.Description,
			&role.IsSystemRole,
			&role.IsActive,
			&role.CreatedAt,
			&role.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// GetActiveRolePermissions returns active role-permission entries for the
// given roles, each populated with its permission. Inactive joins and
// inactive permissions are both excluded.
func (s *SQLStore) GetActiveRolePermissions(ctx context.Context, roleIDs []string) ([]RolePermission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(roleIDs))
	args := make([]interface{}, 0, len(roleIDs)+2)
	for i, id := range roleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	args = append(args, true, true)

	query := fmt.Sprintf(`
		SELECT rp.id, rp.role_id, rp.permission_id, rp.is_active,
		       p.id, p.resource, p.action, p.level, p.description, p.is_active, p.created_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id IN (%s) AND rp.is_active = $%d AND p.is_active = $%d
	`, strings.Join(placeholders, ", "), len(roleIDs)+1, len(roleIDs)+2)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()

	var entries []RolePermission
	for rows.Next() {
		var entry RolePermission
		err := rows.Scan(
			&entry.ID,
			&entry.RoleID,
			&entry.PermissionID,
			&entry.IsActive,
			&entry.Permission.ID,
			&entry.Permission.Resource,
			&entry.Permission.Action,
			&entry.Permission.Level,
			&entry.Permission.Description,
			&entry.Permission.IsActive,
			&entry.Permission.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// ListActiveModules returns every active module.
func (s *SQLStore) ListActiveModules(ctx context.Context) ([]Module, error) {
	query := `
		SELECT id, code, name, is_core, is_active
		FROM modules
		WHERE is_active = $1
		ORDER BY code
	`

	rows, err := s.db.QueryContext(ctx, query, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var module Module
		err := rows.Scan(
			&module.ID,
			&module.Code,
			&module.Name,
			&module.IsCore,
			&module.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, module)
	}

	return modules, rows.Err()
}

// UpsertUserCompanyRole deactivates any existing binding for the pair and
// inserts the new one as the single active record.
func (s *SQLStore) UpsertUserCompanyRole(ctx context.Context, record *UserCompanyRole) error {
	roleIDsJSON, err := json.Marshal(record.RoleIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal role ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE user_company_roles
		SET is_active = $1
		WHERE user_id = $2 AND company_id = $3
	`, false, record.UserID, record.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to deactivate previous bindings: %w", err)
	}

	now := time.Now().UTC()
	record.IsActive = true
	record.AssignedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_company_roles (id, user_id, company_id, role_ids, is_active, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ID, record.UserID, record.CompanyID, string(roleIDsJSON), true, now)
	if err != nil {
		return fmt.Errorf("failed to insert user company role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// CreateConnection persists a new channel connection.
func (s *SQLStore) CreateConnection(ctx context.Context, conn *Connection) error {
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (id, company_id, channel, status, verify_token, display_name,
			phone_number_id, display_phone_number, connection_ref_id, page_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, conn.ID, conn.CompanyID, conn.Channel, string(conn.Status), conn.VerifyToken,
		conn.DisplayName, conn.PhoneNumberID, conn.DisplayPhoneNumber,
		conn.ConnectionRefID, conn.PageID, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

// GetConnectionByID returns a connection by id.
func (s *SQLStore) GetConnectionByID(ctx context.Context, id string) (*Connection, error) {
	query := `
		SELECT id, company_id, channel, status, verify_token, display_name,
		       phone_number_id, display_phone_number, connection_ref_id, page_id,
		       created_at, updated_at
		FROM connections
		WHERE id = $1
	`

	conn, err := scanConnection(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// UpdateConnection persists connection state and channel identifiers.
func (s *SQLStore) UpdateConnection(ctx context.Context, conn *Connection) error {
	conn.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE connections
		SET status = $1, display_name = $2, phone_number_id = $3,
		    display_phone_number = $4, connection_ref_id = $5, page_id = $6, updated_at = $7
		WHERE id = $8
	`, string(conn.Status), conn.DisplayName, conn.PhoneNumberID,
		conn.DisplayPhoneNumber, conn.ConnectionRefID, conn.PageID, conn.UpdatedAt, conn.ID)
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStaleConnections returns non-terminal connections untouched since cutoff.
func (s *SQLStore) ListStaleConnections(ctx context.Context, cutoff time.Time) ([]Connection, error) {
	query := `
		SELECT id, company_id, channel, status, verify_token, display_name,
		       phone_number_id, display_phone_number, connection_ref_id, page_id,
		       created_at, updated_at
		FROM connections
		WHERE status IN ($1, $2) AND updated_at < $3
	`

	rows, err := s.db.QueryContext(ctx, query,
		string(ConnectionPending), string(ConnectionCodeReceived), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale connections: %w", err)
	}
	defer rows.Close()

	var conns []Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, *conn)
	}

	return conns, rows.Err()
}

// scanConnection scans a connection from a database row.
func scanConnection(scanner interface {
	Scan(dest ...interface{}) error
}) (*Connection, error) {
	var conn Connection
	var status string
	var phoneNumberID, displayPhoneNumber, connectionRefID, pageID sql.NullString

	err := scanner.Scan(
		&conn.ID,
		&conn.CompanyID,
		&conn.Channel,
		&status,
		&conn.VerifyToken,
		&conn.DisplayName,
		&phoneNumberID,
		&displayPhoneNumber,
		&connectionRefID,
		&pageID,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conn.Status = ConnectionStatus(status)
	conn.PhoneNumberID = phoneNumberID.String
	conn.DisplayPhoneNumber = displayPhoneNumber.String
	conn.ConnectionRefID = connectionRefID.String
	conn.PageID = pageID.String

	return &conn, nil
}
