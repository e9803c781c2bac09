// Package backend describes the backend descriptor the coordinator treats
// as opaque except for equality and session identity.
package backend

import "context"

// Info is the descriptor for a shard's currently authoritative backend
// replica. It mirrors BackendInfo: opaque to the core except
// for equality and session identity.
type Info struct {
	// ID names the backend replica, e.g. a host:port or node id.
	ID string

	// SessionToken is monotonic per session; a change means a new session
	// entirely, never a mutation of an existing Connected connection
	//.
	SessionToken uint64

	// MaxMessages bounds the number of outstanding requests a Connected
	// connection may have in flight at once.
	MaxMessages int
}

// Equal reports whether two descriptors name the same backend and session.
func (i Info) Equal(o Info) bool {
	return i.ID == o.ID && i.SessionToken == o.SessionToken
}

// Resolver is the external backend-info resolver collaborator. GetBackend and RefreshBackend each return a future in the form of a
// blocking call made from a goroutine the caller dispatches; the coordinator
// re-enters the actor thread via ActorContext.ExecuteInActor when the call
// returns, so Resolver implementations do not need to know about actors.
type Resolver interface {
	GetBackend(ctx context.Context, cookie uint64) (Info, error)
	RefreshBackend(ctx context.Context, cookie uint64, stale Info) (Info, error)
}
