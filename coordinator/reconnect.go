package coordinator

import (
	"github.com/shardcx/shardcx/backend"
	"github.com/shardcx/shardcx/connection"
	"github.com/shardcx/shardcx/envelope"
	"github.com/shardcx/shardcx/internal/klog"
	"github.com/shardcx/shardcx/invlock"
	"github.com/shardcx/shardcx/kxerr"
)

// publishConnected runs reconnect/replay protocol: it is
// triggered by a successful resolution for a shard currently Connecting or
// Reconnecting. old is that shard's current variant; info is the freshly
// resolved backend.
func (c *Coordinator) publishConnected(cookie uint64, old connection.Conn, info backend.Info) {
	s := invlock.NewSession()
	s.WriteLock(c.lock)
	defer s.UnlockWrite(c.lock)

	if !c.currentIs(cookie, old) {
		c.log.Log(klog.LevelDebug, "reconnect target superseded before publish", "cookie", cookie)
		return
	}

	var newConn *connection.Connected
	onDown := func(cause error) {
		c.actor.ExecuteInActor(func() {
			c.beginReconnect(cookie, newConn, info, cause)
		})
	}
	newConn = connection.NewConnected(cookie, info, c.newTx(info), onDown)

	// Step 2: connection_up must run under the write lock, atomically with
	// publish, and therefore must not block.
	cohort, err := c.strategy.ConnectionUp(newConn)
	if err != nil {
		c.log.Log(klog.LevelError, "connection_up failed, poisoning shard", "cookie", cookie, "err", err)
		c.poisonAndRemove(cookie, old, &kxerr.ResolverFatal{Cause: err})
		return
	}

	// Step 3: start replay on old.
	entries := old.StartReplay()

	// Step 4: the cohort rewrites and re-enqueues replayed entries, and
	// hands back a forwarder for stragglers.
	forwarder, err := cohort.FinishReconnect(entries)
	if err != nil {
		c.log.Log(klog.LevelError, "finish_reconnect failed, poisoning shard", "cookie", cookie, "err", err)
		cause := &kxerr.ResolverFatal{Cause: err}
		for _, e := range entries {
			completeEntry(e, cause)
		}
		c.poisonAndRemove(cookie, old, cause)
		return
	}

	// Step 5: install the forwarder so any straggler enqueue on old is
	// redirected rather than lost or accepted onto a connection nobody
	// will ever drain again.
	old.FinishReplay(forwarder)

	// Step 6: publish, by compare-and-swap on identity.
	if !c.replace(cookie, old, newConn) {
		c.log.Log(klog.LevelError, "lost publish race, poisoning superseded connection", "cookie", cookie)
		newConn.Poison(kxerr.ErrConnectionPoisoned)
	}
}

// beginReconnect implements reconnect(existing_connected): swap
// the Connected for a Reconnecting under the write lock, carrying over its
// in-flight and buffered entries, then schedule a refresh outside the lock.
func (c *Coordinator) beginReconnect(cookie uint64, old connection.Conn, staleInfo backend.Info, cause error) {
	s := invlock.NewSession()
	s.WriteLock(c.lock)

	if !c.currentIs(cookie, old) {
		s.UnlockWrite(c.lock)
		c.log.Log(klog.LevelDebug, "transport-down signal for superseded connection, dropping", "cookie", cookie)
		return
	}

	carryOver := old.StartReplay()
	reconnecting := connection.NewReconnecting(cookie, carryOver, c.cfg.ReconnectingCeiling())
	old.FinishReplay(forwardTo{reconnecting})
	replaced := c.replace(cookie, old, connection.Conn(reconnecting))
	s.UnlockWrite(c.lock)

	if !replaced {
		c.log.Log(klog.LevelError, "lost swap race entering reconnect", "cookie", cookie)
		return
	}
	c.log.Log(klog.LevelWarn, "shard entering reconnect", "cookie", cookie, "cause", cause)
	c.resolve(cookie, connection.Conn(reconnecting), resolveRefresh, staleInfo)
}

// forwardTo adapts a plain connection.Conn into a connection.Forwarder that
// simply enqueues onto it, completing the entry with failure if that
// connection has itself already been poisoned or overflowed.
type forwardTo struct {
	to connection.Conn
}

func (f forwardTo) Forward(e envelope.Entry) {
	if err := f.to.Enqueue(e); err != nil {
		completeEntry(e, err)
	}
}

func completeEntry(e envelope.Entry, err error) {
	if e.Complete != nil {
		e.Complete(nil, err)
	}
}
