package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/coreplane/coreplane/pkg/access"
	"github.com/coreplane/coreplane/pkg/store"
)

// AccessResolver is the resolver surface the HTTP handlers need.
type AccessResolver interface {
	ResolveUserContext(ctx context.Context, token, companyID string) (*access.UserContext, error)
	CheckAccess(ctx context.Context, token, companyID, resource, action string) (*access.AccessDecision, error)
	InvalidateUser(ctx context.Context, userID, companyID string) error
}

// RoleAssigner is the store surface behind role assignment.
type RoleAssigner interface {
	UpsertUserCompanyRole(ctx context.Context, record *store.UserCompanyRole) error
	ListActiveModules(ctx context.Context) ([]store.Module, error)
}

// AccessHandlers serves the access resolution endpoints.
type AccessHandlers struct {
	resolver AccessResolver
	assigner RoleAssigner
	log      *logrus.Logger
}

// NewAccessHandlers creates the access endpoint handlers.
func NewAccessHandlers(resolver AccessResolver, assigner RoleAssigner, log *logrus.Logger) *AccessHandlers {
	if log == nil {
		log = logrus.New()
	}
	return &AccessHandlers{resolver: resolver, assigner: assigner, log: log}
}

// handleResolveContext resolves the caller's permission set for one
// company. GET /v1/access/context?companyId=...
func (h *AccessHandlers) handleResolveContext(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	companyID := r.URL.Query().Get("companyId")
	if companyID == "" {
		writeError(w, http.StatusBadRequest, "companyId is required")
		return
	}

	userContext, err := h.resolver.ResolveUserContext(r.Context(), token, companyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userContext)
}

type checkAccessBody struct {
	CompanyID string `json:"companyId"`
	Resource  string `json:"resource"`
	Action    string `json:"action"`
}

// handleCheckAccess answers one resource/action query.
// POST /v1/access/check
func (h *AccessHandlers) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body checkAccessBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.CompanyID == "" || body.Resource == "" || body.Action == "" {
		writeError(w, http.StatusBadRequest, "companyId, resource and action are required")
		return
	}

	decision, err := h.resolver.CheckAccess(r.Context(), token, body.CompanyID, body.Resource, body.Action)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// handleListModules lists the active feature modules.
// GET /v1/access/modules
func (h *AccessHandlers) handleListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.assigner.ListActiveModules(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if modules == nil {
		modules = []store.Module{}
	}
	writeJSON(w, http.StatusOK, modules)
}

type assignRolesBody struct {
	RoleIDs []string `json:"roleIds"`
}

// handleAssignRoles replaces a user's role binding in a company and
// invalidates every cached context and decision for the pair, so no
// stale decision outlives the privilege change.
// PUT /v1/companies/{companyId}/users/{userId}/roles
func (h *AccessHandlers) handleAssignRoles(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	companyID := vars["companyId"]
	userID := vars["userId"]

	var body assignRolesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	record := &store.UserCompanyRole{
		ID:        uuid.NewString(),
		UserID:    userID,
		CompanyID: companyID,
		RoleIDs:   body.RoleIDs,
	}
	if err := h.assigner.UpsertUserCompanyRole(r.Context(), record); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.resolver.InvalidateUser(r.Context(), userID, companyID); err != nil {
		// The binding is saved; a failed invalidation only means stale
		// cache entries until TTL. Log it loudly and keep the 200.
		h.log.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"company_id": companyID,
		}).Error("failed to invalidate cached access state after role change")
	}

	writeJSON(w, http.StatusOK, record)
}
