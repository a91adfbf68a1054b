package access

import (
	"github.com/coreplane/coreplane/pkg/store"
)

// PermissionGrant is one effective (resource, action, level) triple in a
// resolved user context. Level ranges 0-100; higher is more privileged.
type PermissionGrant struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Level    int    `json:"level"`
}

// UserContext is the resolved, cacheable bundle of a user's effective
// permissions and visible modules within one company scope. It is derived
// per (user, company) pair on cache miss and never persisted.
type UserContext struct {
	UserID      string            `json:"userId"`
	CompanyID   string            `json:"companyId"`
	Permissions []PermissionGrant `json:"permissions"`
	Modules     []store.Module    `json:"modules"`
}

// AccessDecision is the cached answer to one (user, company, resource,
// action) query. A deny is a valid, cacheable decision; it is not an error.
type AccessDecision struct {
	HasAccess bool   `json:"hasAccess"`
	UserID    string `json:"userId"`
	Level     int    `json:"level"`
}
