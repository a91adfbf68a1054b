// Package bus exposes the core resolution operations as request/reply
// subjects on the message bus. Handler cores are pure byte-in/byte-out
// functions so they test without a broker.
package bus

// Request/reply subjects. Names are stable across deployments.
const (
	SubjectResolveUserContext = "core.resolve.userContext"
	SubjectCheckAccess        = "core.check.access"
	SubjectResolveModules     = "core.resolve.modules"
)

// DefaultQueueGroup is the queue group shared by all core instances so
// each request is handled once.
const DefaultQueueGroup = "coreplane"
