// Package access resolves a bearer token and a company scope into the
// user's effective permission set, and answers resource/action access
// queries with cache-aside memoization.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coreplane/coreplane/pkg/authn"
	"github.com/coreplane/coreplane/pkg/cache"
	"github.com/coreplane/coreplane/pkg/observability"
	"github.com/coreplane/coreplane/pkg/store"
)

// PermissionStore is the read-only slice of the persistence layer the
// resolver needs. The resolver never writes persisted state.
type PermissionStore interface {
	GetUserByID(ctx context.Context, id string) (*store.User, error)
	GetActiveUserCompanyRole(ctx context.Context, userID, companyID string) (*store.UserCompanyRole, error)
	GetRolesByIDs(ctx context.Context, ids []string) ([]store.Role, error)
	GetActiveRolePermissions(ctx context.Context, roleIDs []string) ([]store.RolePermission, error)
	ListActiveModules(ctx context.Context) ([]store.Module, error)
}

// Resolver composes the cache, the token validator and the permission
// store into the two core operations: ResolveUserContext and CheckAccess.
// Every dependency is an explicit constructor parameter.
type Resolver struct {
	cache       cache.Cache
	validator   authn.TokenValidator
	store       PermissionStore
	contextTTL  time.Duration
	decisionTTL time.Duration
	log         *logrus.Logger
	metrics     *observability.Metrics
}

// NewResolver creates a resolver. contextTTL bounds cached user contexts,
// decisionTTL bounds cached access decisions. metrics may be nil.
func NewResolver(c cache.Cache, v authn.TokenValidator, s PermissionStore,
	contextTTL, decisionTTL time.Duration, log *logrus.Logger, metrics *observability.Metrics) *Resolver {
	if contextTTL <= 0 {
		contextTTL = 5 * time.Minute
	}
	if decisionTTL <= 0 {
		decisionTTL = contextTTL
	}
	if log == nil {
		log = logrus.New()
	}
	return &Resolver{
		cache:       c,
		validator:   v,
		store:       s,
		contextTTL:  contextTTL,
		decisionTTL: decisionTTL,
		log:         log,
		metrics:     metrics,
	}
}

// ResolveUserContext resolves the effective permissions and visible
// modules for the token's subject within companyID.
//
// The cache key is derived from the token's unverified subject claim, so
// a cached context is served without a validator round-trip. On a miss
// the token is verified first; a failed verification is ErrUnauthorized
// and is never cached, so a token fixed by retry succeeds immediately.
func (r *Resolver) ResolveUserContext(ctx context.Context, token, companyID string) (*UserContext, error) {
	start := time.Now()

	// The unverified subject is only a cache partition, never an
	// authentication result. When the token does not decode we skip the
	// pre-verification cache path entirely.
	subject, _ := authn.SubjectFromToken(token)
	if subject != "" {
		if cached := r.cachedContext(ctx, UserContextKey(subject, companyID)); cached != nil {
			r.countCacheHit("user_context")
			return cached, nil
		}
	}
	r.countCacheMiss("user_context")

	validation, err := r.validator.Validate(ctx, token)
	if err != nil {
		r.countResolution("upstream_error")
		return nil, fmt.Errorf("%w: token validation: %v", ErrUpstream, err)
	}
	if !validation.Valid {
		r.log.WithField("reason", validation.Message).Debug("token rejected by validator")
		r.countResolution("unauthorized")
		return nil, ErrUnauthorized
	}

	userID := validation.UserID
	if userID == "" {
		userID = subject
	}
	if userID == "" {
		r.countResolution("unauthorized")
		return nil, ErrUnauthorized
	}

	userContext, err := r.buildUserContext(ctx, userID, companyID)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			r.countResolution("unauthorized")
		} else {
			r.countResolution("upstream_error")
		}
		return nil, err
	}

	r.storeContext(ctx, userContext)
	r.countResolution("ok")
	if r.metrics != nil {
		r.metrics.ResolutionDuration.Observe(time.Since(start).Seconds())
	}
	return userContext, nil
}

// CheckAccess answers whether the token's subject may perform action on
// resource within companyID. The lookup is an exact (resource, action)
// match; no wildcard or hierarchy semantics. Denies are cached alongside
// grants: a deny is a stable function of the current role assignment,
// unlike a failed verification.
func (r *Resolver) CheckAccess(ctx context.Context, token, companyID, resource, action string) (*AccessDecision, error) {
	subject, _ := authn.SubjectFromToken(token)
	if subject != "" {
		if cached := r.cachedDecision(ctx, AccessCheckKey(subject, companyID, resource, action)); cached != nil {
			r.countCacheHit("access_decision")
			return cached, nil
		}
	}
	r.countCacheMiss("access_decision")

	userContext, err := r.ResolveUserContext(ctx, token, companyID)
	if err != nil {
		return nil, err
	}

	decision := &AccessDecision{UserID: userContext.UserID}
	for _, grant := range userContext.Permissions {
		if grant.Resource == resource && grant.Action == action {
			decision.HasAccess = true
			decision.Level = grant.Level
			break
		}
	}

	if r.metrics != nil {
		outcome := "deny"
		if decision.HasAccess {
			outcome = "allow"
		}
		r.metrics.AccessDecisionsTotal.WithLabelValues(outcome).Inc()
	}

	// The write key must mirror the pre-verification read key, so the
	// entry is keyed by the token's subject. Without a decodable subject
	// there is no key a later read could derive; skip the write.
	if subject != "" {
		key := AccessCheckKey(subject, companyID, resource, action)
		if data, err := json.Marshal(decision); err == nil {
			if err := r.cache.Set(ctx, key, data, r.decisionTTL); err != nil {
				r.log.WithError(err).Warn("failed to cache access decision")
			}
		}
	}

	return decision, nil
}

// InvalidateUser drops the cached context and every cached decision for
// one (user, company) pair. Call it at every role or permission mutation
// site so a stale decision cannot outlive a privilege change.
func (r *Resolver) InvalidateUser(ctx context.Context, userID, companyID string) error {
	if err := r.cache.Delete(ctx, UserContextKey(userID, companyID)); err != nil {
		return fmt.Errorf("failed to invalidate user context: %w", err)
	}
	if err := r.cache.DeleteByPattern(ctx, userDecisionPattern(userID, companyID)); err != nil {
		return fmt.Errorf("failed to invalidate access decisions: %w", err)
	}
	return nil
}

// InvalidateCompany drops every cached context and decision for a company.
// Used when a role or permission definition changes company-wide.
func (r *Resolver) InvalidateCompany(ctx context.Context, companyID string) error {
	if err := r.cache.DeleteByPattern(ctx, companyContextPattern(companyID)); err != nil {
		return fmt.Errorf("failed to invalidate company contexts: %w", err)
	}
	if err := r.cache.DeleteByPattern(ctx, companyDecisionPattern(companyID)); err != nil {
		return fmt.Errorf("failed to invalidate company decisions: %w", err)
	}
	return nil
}

// buildUserContext loads and assembles a context from the store. An
// unknown or inactive user collapses to ErrUnauthorized; a user with no
// role binding in the company is a valid zero-permission context.
func (r *Resolver) buildUserContext(ctx context.Context, userID, companyID string) (*UserContext, error) {
	user, err := r.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: load user: %v", ErrUpstream, err)
	}
	if !user.IsActive {
		return nil, ErrUnauthorized
	}

	userContext := &UserContext{
		UserID:      userID,
		CompanyID:   companyID,
		Permissions: []PermissionGrant{},
	}

	binding, err := r.store.GetActiveUserCompanyRole(ctx, userID, companyID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: load role binding: %v", ErrUpstream, err)
	}

	if binding != nil {
		roles, err := r.store.GetRolesByIDs(ctx, binding.RoleIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: load roles: %v", ErrUpstream, err)
		}

		roleIDs := make([]string, 0, len(roles))
		for _, role := range roles {
			roleIDs = append(roleIDs, role.ID)
		}

		entries, err := r.store.GetActiveRolePermissions(ctx, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: load role permissions: %v", ErrUpstream, err)
		}

		userContext.Permissions = mergeGrants(entries)
	}

	modules, err := r.store.ListActiveModules(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load modules: %v", ErrUpstream, err)
	}
	userContext.Modules = modules

	return userContext, nil
}

// mergeGrants reduces role-permission entries to unique (resource,
// action) grants. When several roles grant the same pair, the maximum
// level wins: permissions are additive-by-privilege, never restrictive.
// The same rule defensively covers duplicate active permission records.
func mergeGrants(entries []store.RolePermission) []PermissionGrant {
	type pair struct {
		resource string
		action   string
	}

	levels := make(map[pair]int, len(entries))
	for _, entry := range entries {
		p := pair{resource: entry.Permission.Resource, action: entry.Permission.Action}
		if level, ok := levels[p]; !ok || entry.Permission.Level > level {
			levels[p] = entry.Permission.Level
		}
	}

	grants := make([]PermissionGrant, 0, len(levels))
	for p, level := range levels {
		grants = append(grants, PermissionGrant{Resource: p.resource, Action: p.action, Level: level})
	}

	// Deterministic order so repeated resolutions serialize identically.
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].Resource != grants[j].Resource {
			return grants[i].Resource < grants[j].Resource
		}
		return grants[i].Action < grants[j].Action
	})

	return grants
}

func (r *Resolver) cachedContext(ctx context.Context, key string) *UserContext {
	data, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			r.log.WithError(err).Warn("user context cache read failed")
		}
		return nil
	}

	var userContext UserContext
	if err := json.Unmarshal(data, &userContext); err != nil {
		// Corrupt entry: drop it and recompute.
		_ = r.cache.Delete(ctx, key)
		return nil
	}
	return &userContext
}

func (r *Resolver) cachedDecision(ctx context.Context, key string) *AccessDecision {
	data, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			r.log.WithError(err).Warn("access decision cache read failed")
		}
		return nil
	}

	var decision AccessDecision
	if err := json.Unmarshal(data, &decision); err != nil {
		_ = r.cache.Delete(ctx, key)
		return nil
	}
	return &decision
}

func (r *Resolver) storeContext(ctx context.Context, userContext *UserContext) {
	data, err := json.Marshal(userContext)
	if err != nil {
		return
	}
	key := UserContextKey(userContext.UserID, userContext.CompanyID)
	if err := r.cache.Set(ctx, key, data, r.contextTTL); err != nil {
		r.log.WithError(err).Warn("failed to cache user context")
	}
}

func (r *Resolver) countCacheHit(kind string) {
	if r.metrics != nil {
		r.metrics.CacheHitsTotal.WithLabelValues(kind).Inc()
	}
}

func (r *Resolver) countCacheMiss(kind string) {
	if r.metrics != nil {
		r.metrics.CacheMissesTotal.WithLabelValues(kind).Inc()
	}
}

func (r *Resolver) countResolution(outcome string) {
	if r.metrics != nil {
		r.metrics.ResolutionsTotal.WithLabelValues(outcome).Inc()
	}
}
