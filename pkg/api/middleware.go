package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// PermissionMiddleware gates HTTP routes on an access decision.
type PermissionMiddleware struct {
	resolver AccessResolver
}

// NewPermissionMiddleware creates a permission middleware over the
// shared resolver.
func NewPermissionMiddleware(resolver AccessResolver) *PermissionMiddleware {
	return &PermissionMiddleware{resolver: resolver}
}

// RequirePermission wraps a handler so it only runs when the caller
// holds (resource, action) in the company named by the companyId path
// variable or query parameter. A deny is 403; an identity failure is
// 401; the two are never conflated.
func (pm *PermissionMiddleware) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			companyID := mux.Vars(r)["companyId"]
			if companyID == "" {
				companyID = r.URL.Query().Get("companyId")
			}
			if companyID == "" {
				writeError(w, http.StatusBadRequest, "companyId is required")
				return
			}

			decision, err := pm.resolver.CheckAccess(r.Context(), token, companyID, resource, action)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if !decision.HasAccess {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
