package access

import "errors"

var (
	// ErrUnauthorized covers every identity failure: bad or expired token,
	// unknown subject, inactive user. The sub-check that failed is never
	// exposed to the caller.
	ErrUnauthorized = errors.New("access: unauthorized")

	// ErrNotFound is returned when a referenced record is absent and the
	// absence cannot be collapsed into an empty result.
	ErrNotFound = errors.New("access: not found")

	// ErrUpstream indicates the token validator or the permission store
	// was unreachable. Retryable by the caller; never downgraded to a
	// deny.
	ErrUpstream = errors.New("access: upstream unavailable")
)
