package coordinator

import (
	"time"

	"github.com/shardcx/shardcx/connection"
	"github.com/shardcx/shardcx/envelope"
	"github.com/shardcx/shardcx/identity"
)

// ActorContext is the single-threaded execution context the coordinator
// runs on. actorkit.Context satisfies this; any other single-consumer
// mailbox/timer implementation may be substituted.
type ActorContext interface {
	Identifier() identity.ClientID
	PersistenceID() string
	ExecuteInActor(fn func())
	ExecuteInActorAfter(fn func(), delay time.Duration)
}

// Strategy supplies the application-specific decisions the coordinator
// cannot make on its own.
type Strategy interface {
	// OnCommand handles an application-specific message the coordinator
	// does not itself recognize. The bool return reports whether the
	// command was handled.
	OnCommand(cmd any) bool

	// ConnectionUp runs under the coordinator's write lock, immediately
	// before replay begins; it must not block. A returned error is treated
	// as fatal for that shard: the shard is poisoned and the reconnect
	// aborts.
	ConnectionUp(newConn *connection.Connected) (ConnectCohort, error)

	// HaltClient is the terminal shutdown hook; the coordinator guarantees
	// it runs at most once.
	HaltClient(cause error)
}

// ConnectCohort is a transient collaborator for one reconnect transition.
type ConnectCohort interface {
	// FinishReconnect rewrites and re-enqueues the replayed entries onto
	// the new connection, returning a ReconnectForwarder for stragglers.
	// An error here is fatal for the shard, like ConnectionUp's.
	FinishReconnect(entries []envelope.Entry) (ReconnectForwarder, error)
}

// ReconnectForwarder receives entries that arrive on the old connection
// after replay has started. Forward must apply the same rewrite
// FinishReconnect applied to the replayed batch, so a straggler and a
// replayed entry are indistinguishable to whatever they land on.
type ReconnectForwarder = connection.Forwarder
