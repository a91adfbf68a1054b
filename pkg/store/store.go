package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary for identity, RBAC and connection
// records. The access resolver only ever reads; writes originate from the
// management and connection surfaces.
type Store interface {
	// GetUserByID returns a user by subject id, or ErrNotFound.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetActiveUserCompanyRole returns the active role binding for a
	// (user, company) pair, or ErrNotFound when the user has no binding in
	// that company. When duplicate active records exist the most recently
	// assigned one wins.
	GetActiveUserCompanyRole(ctx context.Context, userID, companyID string) (*UserCompanyRole, error)

	// GetRolesByIDs returns the active roles among the given ids.
	GetRolesByIDs(ctx context.Context, ids []string) ([]Role, error)

	// GetActiveRolePermissions returns active role-permission entries for
	// the given roles, each populated with its (active) permission.
	GetActiveRolePermissions(ctx context.Context, roleIDs []string) ([]RolePermission, error)

	// ListActiveModules returns every active module.
	ListActiveModules(ctx context.Context) ([]Module, error)

	// UpsertUserCompanyRole replaces the role binding for
	// (record.UserID, record.CompanyID). Callers must invalidate any
	// cached contexts and decisions for that pair afterwards.
	UpsertUserCompanyRole(ctx context.Context, record *UserCompanyRole) error

	// CreateConnection persists a new channel connection.
	CreateConnection(ctx context.Context, conn *Connection) error

	// GetConnectionByID returns a connection, or ErrNotFound.
	GetConnectionByID(ctx context.Context, id string) (*Connection, error)

	// UpdateConnection persists connection state and channel identifiers.
	UpdateConnection(ctx context.Context, conn *Connection) error

	// ListStaleConnections returns connections still in a non-terminal
	// state whose last update is older than the cutoff.
	ListStaleConnections(ctx context.Context, cutoff time.Time) ([]Connection, error)
}
