package store

import (
	"time"
)

// User is an identity record. ID is the stable external subject id carried
// in token claims; it never changes across the record's lifetime.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Company is a tenant record. All role and permission assignments are
// scoped to a company.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TaxID     string    `json:"tax_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role is a named permission bundle.
type Role struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	IsSystemRole bool      `json:"is_system_role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Permission grants an action on a resource namespace at a privilege level.
// Level ranges 0-100; higher is more privileged. (resource, action) is
// unique among active permissions in a healthy installation, but the store
// does not enforce that, so readers must tolerate duplicates.
type Permission struct {
	ID          string    `json:"id"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Level       int       `json:"level"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// RolePermission joins a role to a permission. Inactive entries are
// excluded from resolution.
type RolePermission struct {
	ID           string     `json:"id"`
	RoleID       string     `json:"role_id"`
	PermissionID string     `json:"permission_id"`
	IsActive     bool       `json:"is_active"`
	Permission   Permission `json:"permission"`
}

// UserCompanyRole binds a user to a set of roles within one company.
// At most one active record should exist per (user, company) pair; if the
// data violates that, resolution uses the most recently assigned one.
type UserCompanyRole struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CompanyID  string    `json:"company_id"`
	RoleIDs    []string  `json:"role_ids"`
	IsActive   bool      `json:"is_active"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Module is a UI/feature module surfaced to clients. Modules are
// enumerated, not permission-gated; the convention for gating a module is
// a resource check with resource = module code.
type Module struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsCore   bool   `json:"is_core"`
	IsActive bool   `json:"is_active"`
}

// ConnectionStatus is the lifecycle state of a channel connection.
type ConnectionStatus string

const (
	ConnectionPending      ConnectionStatus = "pending"
	ConnectionCodeReceived ConnectionStatus = "code_received"
	ConnectionActive       ConnectionStatus = "active"
	ConnectionErrorOAuth   ConnectionStatus = "error_oauth"
	ConnectionErrorChannel ConnectionStatus = "error_channel"
)

// Connection links a company to an external messaging channel account.
// A company may hold several connections on the same channel; ConnectionID
// is unique system-wide.
type Connection struct {
	ID                 string           `json:"id"`
	CompanyID          string           `json:"company_id"`
	Channel            string           `json:"channel"`
	Status             ConnectionStatus `json:"status"`
	VerifyToken        string           `json:"verify_token"`
	DisplayName        string           `json:"display_name"`
	PhoneNumberID      string           `json:"phone_number_id,omitempty"`
	DisplayPhoneNumber string           `json:"display_phone_number,omitempty"`
	ConnectionRefID    string           `json:"connection_ref_id,omitempty"`
	PageID             string           `json:"page_id,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}
