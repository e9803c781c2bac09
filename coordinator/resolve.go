package coordinator

import (
	"context"
	"errors"

	"github.com/shardcx/shardcx/backend"
	"github.com/shardcx/shardcx/connection"
	"github.com/shardcx/shardcx/internal/klog"
	"github.com/shardcx/shardcx/kxerr"
)

// resolveKind distinguishes the first resolution for a fresh Connecting
// from a refresh triggered by a transport failure on a Connected: a
// get_backend call versus a refresh_backend call.
type resolveKind int

const (
	resolveInitial resolveKind = iota
	resolveRefresh
)

// resolve issues the resolver call on a background goroutine and
// re-dispatches the result onto the actor thread, the Go equivalent of
// "the future's continuation is dispatched via the actor's
// executor."
func (c *Coordinator) resolve(cookie uint64, expect connection.Conn, kind resolveKind, stale backend.Info) {
	go func() {
		var info backend.Info
		var err error
		if kind == resolveRefresh {
			info, err = c.resolver.RefreshBackend(context.Background(), cookie, stale)
		} else {
			info, err = c.resolver.GetBackend(context.Background(), cookie)
		}
		c.actor.ExecuteInActor(func() {
			c.onResolved(cookie, expect, kind, stale, info, err)
		})
	}()
}

// onResolved runs on the actor thread and handles resolver completion:
// timeout retries if the connection is still current, other failures
// poison the shard, success drives the reconnect transition.
func (c *Coordinator) onResolved(cookie uint64, expect connection.Conn, kind resolveKind, stale, info backend.Info, err error) {
	if !c.currentIs(cookie, expect) {
		c.log.Log(klog.LevelDebug, "resolution result for superseded connection, dropping", "cookie", cookie)
		return
	}

	if err != nil {
		classified := kxerr.Classify(err, isResolverTimeout)
		var timeout *kxerr.ResolverTimeout
		if errors.As(classified, &timeout) {
			delay := c.retryBackoff.NextBackOff()
			c.log.Log(klog.LevelWarn, "resolver timeout, scheduling retry", "cookie", cookie, "delay", delay)
			c.actor.ExecuteInActorAfter(func() {
				if !c.currentIs(cookie, expect) {
					c.log.Log(klog.LevelDebug, "retry for superseded connection, dropping", "cookie", cookie)
					return
				}
				c.resolve(cookie, expect, kind, stale)
			}, delay)
			return
		}
		c.log.Log(klog.LevelError, "resolver failure, poisoning shard", "cookie", cookie, "err", err)
		c.poisonAndRemove(cookie, expect, classified)
		return
	}

	c.publishConnected(cookie, expect, info)
}

// isResolverTimeout recognizes the handful of ways a Resolver may signal a
// retryable timeout: a context deadline, the package's own sentinel, or an
// implementation-specific net.Error-style Timeout() method.
func isResolverTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, kxerr.ErrResolverTimeout) {
		return true
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}
