package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all core schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and companies tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(64) PRIMARY KEY,
					email VARCHAR(255) NOT NULL,
					first_name VARCHAR(255) NOT NULL DEFAULT '',
					last_name VARCHAR(255) NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS companies (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					tax_id VARCHAR(64) NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_users_email ON users(email);
			`,
		},
		{
			Version:     2,
			Description: "Create roles, permissions and role_permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_system_role BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS permissions (
					id VARCHAR(64) PRIMARY KEY,
					resource VARCHAR(255) NOT NULL,
					action VARCHAR(64) NOT NULL,
					level INTEGER NOT NULL DEFAULT 0,
					description TEXT NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					id VARCHAR(64) PRIMARY KEY,
					role_id VARCHAR(64) NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id VARCHAR(64) NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					UNIQUE(role_id, permission_id)
				);

				CREATE INDEX idx_permissions_resource_action ON permissions(resource, action);
				CREATE INDEX idx_role_permissions_role_id ON role_permissions(role_id);
			`,
		},
		{
			Version:     3,
			Description: "Create user_company_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_company_roles (
					id VARCHAR(64) PRIMARY KEY,
					user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					company_id VARCHAR(64) NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
					role_ids TEXT NOT NULL DEFAULT '[]',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_user_company_roles_user_company ON user_company_roles(user_id, company_id);
				CREATE INDEX idx_user_company_roles_assigned_at ON user_company_roles(assigned_at);
			`,
		},
		{
			Version:     4,
			Description: "Create modules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS modules (
					id VARCHAR(64) PRIMARY KEY,
					code VARCHAR(64) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					is_core BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE
				);
			`,
		},
		{
			Version:     5,
			Description: "Create connections table",
			SQL: `
				CREATE TABLE IF NOT EXISTS connections (
					id VARCHAR(64) PRIMARY KEY,
					company_id VARCHAR(64) NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
					channel VARCHAR(32) NOT NULL,
					status VARCHAR(32) NOT NULL,
					verify_token VARCHAR(128) NOT NULL DEFAULT '',
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					phone_number_id VARCHAR(128),
					display_phone_number VARCHAR(64),
					connection_ref_id VARCHAR(128),
					page_id VARCHAR(128),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(phone_number_id),
					UNIQUE(connection_ref_id)
				);

				CREATE INDEX idx_connections_company_id ON connections(company_id);
				CREATE INDEX idx_connections_status ON connections(status);
			`,
		},
	}
}

// RunMigrations applies any pending migrations in order.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS core_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM core_migrations")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO core_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
