// Package coordinator implements the client-side connection coordinator:
// the per-shard connection lifecycle state machine, the optimistically-read
// connection map, backend resolution scheduling, and the reconnect/replay
// protocol. Everything here runs its state-mutating half on one actor
// goroutine (ActorContext); producer goroutines only ever call GetConnection
// and then enqueue on the handle it returns.
package coordinator

import (
	"errors"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/shardcx/shardcx/backend"
	"github.com/shardcx/shardcx/config"
	"github.com/shardcx/shardcx/connection"
	"github.com/shardcx/shardcx/internal/klog"
	"github.com/shardcx/shardcx/invlock"
	"github.com/shardcx/shardcx/kxerr"
	"github.com/shardcx/shardcx/resolvercache"
)

// TransmitterFactory builds the transport collaborator a fresh Connected
// connection sends through, parameterized by the backend it was just
// resolved to. Supplying this is how an application wires in a real
// transport; testkit supplies an in-memory one.
type TransmitterFactory func(info backend.Info) connection.Transmitter

// Coordinator owns one client's shard connection map. It is the concrete,
// generalized form of "client behavior": it never subclasses
// anything, instead taking a Strategy for the decisions that used to be
// subclass hooks.
type Coordinator struct {
	actor    ActorContext
	resolver backend.Resolver
	strategy Strategy
	newTx    TransmitterFactory
	cfg      config.Config
	log      klog.Logger

	lock  *invlock.Lock
	conns sync.Map // uint64 cookie -> connection.Conn

	retryBackoff backoff.BackOff

	haltOnce      sync.Once
	poisonAllOnce sync.Once
}

// New constructs a Coordinator. resolver, strategy, and newTx are required
// collaborators; cfg
// supplies the tunables from the config package. A non-zero
// cfg.ResolverCacheTTL wraps resolver in a resolvercache.Cache.
func New(actor ActorContext, resolver backend.Resolver, strategy Strategy, newTx TransmitterFactory, cfg config.Config) *Coordinator {
	if ttl := cfg.ResolverCacheTTL(); ttl > 0 {
		resolver = resolvercache.New(resolver, ttl)
	}
	return &Coordinator{
		actor:        actor,
		resolver:     resolver,
		strategy:     strategy,
		newTx:        newTx,
		cfg:          cfg,
		log:          cfg.Logger(),
		lock:         invlock.New("connections"),
		retryBackoff: backoff.NewConstantBackOff(cfg.ResolverRetryInterval()),
	}
}

// GetConnection implements get_connection: an optimistic,
// compute-if-absent lookup that retries on cycle-detected errors by
// releasing its stamps and awaiting the offending writer before retrying
// from this, its outermost entry point.
func (c *Coordinator) GetConnection(cookie uint64) (connection.Conn, error) {
	for {
		s := invlock.NewSession()
		conn, err := c.lookupOrCreate(s, cookie)
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, kxerr.ErrCycleDetected) {
			s.ReleaseAll()
			s.AwaitResolution(c.lock)
			continue
		}
		return nil, err
	}
}

func (c *Coordinator) lookupOrCreate(s *invlock.Session, cookie uint64) (connection.Conn, error) {
	for {
		st, err := s.OptimisticRead(c.lock)
		if err != nil {
			return nil, err
		}

		v, ok := c.conns.Load(cookie)
		if !ok {
			fresh := connection.NewConnecting(cookie, c.cfg.ConnectingCeiling())
			actual, loaded := c.conns.LoadOrStore(cookie, connection.Conn(fresh))
			if !loaded {
				c.log.Log(klog.LevelDebug, "shard connecting", "cookie", cookie)
				c.resolve(cookie, connection.Conn(fresh), resolveInitial, backend.Info{})
			}
			v = actual
		}

		if !s.Validate(st) {
			continue
		}
		return v.(connection.Conn), nil
	}
}

// currentIs reports whether cookie's live map entry is still identical to
// expect, by pointer identity.
func (c *Coordinator) currentIs(cookie uint64, expect connection.Conn) bool {
	v, ok := c.conns.Load(cookie)
	if !ok {
		return false
	}
	cur, ok := v.(connection.Conn)
	return ok && cur == expect
}

// replace performs compare-and-swap by identity.
func (c *Coordinator) replace(cookie uint64, old, new connection.Conn) bool {
	return c.conns.CompareAndSwap(cookie, old, new)
}

// remove performs compare-and-remove by identity; a no-op if
// the map entry no longer equals conn.
func (c *Coordinator) remove(cookie uint64, conn connection.Conn) {
	c.conns.CompareAndDelete(cookie, conn)
}

func (c *Coordinator) poisonAndRemove(cookie uint64, conn connection.Conn, cause error) {
	conn.Poison(cause)
	c.remove(cookie, conn)
}

// Supersede forcibly retires cookie's current connection and starts a fresh
// one. It is the trusted actor-local callable an internal command uses to
// effect a state transition outside the ordinary lifecycle (e.g. an
// administrative re-key). Any resolver retry already scheduled against the
// old connection observes the mismatch via currentIs and quits silently.
func (c *Coordinator) Supersede(cookie uint64, cause error) {
	s := invlock.NewSession()
	s.WriteLock(c.lock)
	defer s.UnlockWrite(c.lock)

	if v, ok := c.conns.Load(cookie); ok {
		old := v.(connection.Conn)
		old.Poison(cause)
		c.conns.Delete(cookie)
	}
	fresh := connection.Conn(connection.NewConnecting(cookie, c.cfg.ConnectingCeiling()))
	c.conns.Store(cookie, fresh)
	c.resolve(cookie, fresh, resolveInitial, backend.Info{})
}
