package coordinator

import (
	"errors"

	"github.com/shardcx/shardcx/connection"
	"github.com/shardcx/shardcx/envelope"
	"github.com/shardcx/shardcx/identity"
	"github.com/shardcx/shardcx/internal/klog"
	"github.com/shardcx/shardcx/invlock"
	"github.com/shardcx/shardcx/kxerr"
)

// Dispatch delivers one inbound envelope. It must be called on the actor
// thread (normally from inside an ActorContext.ExecuteInActor callback
// supplied by the transport/mailbox driving this coordinator).
func (c *Coordinator) Dispatch(resp envelope.Response) {
	if f, ok := resp.(envelope.Failure); ok && errors.Is(f.Cause, kxerr.ErrRetiredGeneration) {
		c.log.Log(klog.LevelError, "retired generation, halting client", "cause", f.Cause)
		c.haltAndPoisonAll(&kxerr.RetiredGeneration{Cause: f.Cause})
		return
	}
	c.deliver(resp)
}

// deliver routes a response to its connection by cookie. This is the
// ordinary (non-retired-generation) delivery path shared by Success and
// Failure.
func (c *Coordinator) deliver(resp envelope.Response) {
	cookie := uint64(identity.ExtractCookie(resp.Target()))
	v, ok := c.conns.Load(cookie)
	if !ok {
		c.log.Log(klog.LevelWarn, "response for unknown cookie, dropping", "cookie", cookie)
		return
	}
	conn := v.(connection.Conn)
	if !conn.ReceiveResponse(resp) {
		c.log.Log(klog.LevelWarn, "response matched no in-flight entry, dropping", "cookie", cookie)
	}
}

// OnCommand hands an application-specific command to the Strategy's
// on_command hook.
func (c *Coordinator) OnCommand(cmd any) bool {
	return c.strategy.OnCommand(cmd)
}

// haltAndPoisonAll runs HaltClient at most once, immediately followed by
// poisoning every connection and clearing the map. poisonAll is itself
// independently idempotent, so a halt that races a second retired-generation
// report never double-poisons.
func (c *Coordinator) haltAndPoisonAll(cause error) {
	c.haltOnce.Do(func() {
		c.strategy.HaltClient(cause)
	})
	c.poisonAll(cause)
}

// poisonAll poisons every live connection and clears the map under the
// write lock, so no GetConnection/replace can observe a half-cleared map.
func (c *Coordinator) poisonAll(cause error) {
	c.poisonAllOnce.Do(func() {
		s := invlock.NewSession()
		s.WriteLock(c.lock)
		defer s.UnlockWrite(c.lock)

		c.conns.Range(func(key, value any) bool {
			cookie := key.(uint64)
			conn := value.(connection.Conn)
			conn.Poison(cause)
			c.conns.Delete(cookie)
			return true
		})
	})
}
