package access

import (
	"net/url"
	"strings"
)

// Cache keys must be injective over their input tuples: a collision
// between two (user, company) pairs would leak one tenant's permissions
// into another. Every field is query-escaped before joining, so the ":"
// delimiter can never appear inside a field.

const (
	userContextPrefix = "core:uctx"
	accessCheckPrefix = "core:acl"
	keyFieldDelimiter = ":"
)

func escapeKeyField(field string) string {
	return url.QueryEscape(field)
}

// UserContextKey identifies the cached UserContext for (user, company).
func UserContextKey(userID, companyID string) string {
	return strings.Join([]string{
		userContextPrefix,
		escapeKeyField(userID),
		escapeKeyField(companyID),
	}, keyFieldDelimiter)
}

// AccessCheckKey identifies the cached AccessDecision for
// (user, company, resource, action).
func AccessCheckKey(userID, companyID, resource, action string) string {
	return strings.Join([]string{
		accessCheckPrefix,
		escapeKeyField(userID),
		escapeKeyField(companyID),
		escapeKeyField(resource),
		escapeKeyField(action),
	}, keyFieldDelimiter)
}

// userDecisionPattern matches every cached decision for (user, company).
func userDecisionPattern(userID, companyID string) string {
	return strings.Join([]string{
		accessCheckPrefix,
		escapeKeyField(userID),
		escapeKeyField(companyID),
		"*",
	}, keyFieldDelimiter)
}

// companyContextPattern matches every cached context in a company.
func companyContextPattern(companyID string) string {
	return strings.Join([]string{
		userContextPrefix,
		"*",
		escapeKeyField(companyID),
	}, keyFieldDelimiter)
}

// companyDecisionPattern matches every cached decision in a company.
// Glob wildcards can over-match across delimiters; over-invalidation only
// costs extra cache misses, so the looser pattern is acceptable here.
func companyDecisionPattern(companyID string) string {
	return strings.Join([]string{
		accessCheckPrefix,
		"*",
		escapeKeyField(companyID),
		"*",
	}, keyFieldDelimiter)
}
