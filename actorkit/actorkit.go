// Package actorkit provides a minimal, local implementation of the
// single-threaded execution context the coordinator expects an actor
// runtime to supply. It is not a general-purpose actor framework: it exists
// so the coordinator and its tests can run end-to-end against a real
// goroutine+channel scheduler rather than a mock, running its own
// request/response plumbing over plain channels instead of an external
// queueing library.
package actorkit

import (
	"container/heap"
	"sync"
	"time"

	"github.com/shardcx/shardcx/identity"
)

// Context is a single-goroutine execution context: every func handed to
// ExecuteInActor or ExecuteInActorAfter runs strictly after the previous
// one returns, on one dedicated goroutine. This gives the coordinator the
// same non-reentrancy guarantee a real actor mailbox would, without pulling
// in an external actor library that isn't present anywhere in the
// reference corpus.
type Context struct {
	id     identity.ClientID
	persID string

	mailbox chan func()

	timerMu sync.Mutex
	timers  delayQueue
	wake    chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a Context for the given client, running its mailbox and timer
// loop on background goroutines. Callers must call Close when finished.
func New(id identity.ClientID, persistenceID string) *Context {
	c := &Context{
		id:      id,
		persID:  persistenceID,
		mailbox: make(chan func(), 64),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go c.runMailbox()
	go c.runTimers()
	return c
}

func (c *Context) Identifier() identity.ClientID { return c.id }
func (c *Context) PersistenceID() string         { return c.persID }

// ExecuteInActor schedules fn to run on this context's goroutine. It never
// blocks the caller waiting for fn to run.
func (c *Context) ExecuteInActor(fn func()) {
	select {
	case c.mailbox <- fn:
	case <-c.done:
	}
}

// ExecuteInActorAfter schedules fn to run on this context's goroutine no
// earlier than delay from now. Timers are kept in a min-heap ordered by
// fire time (grounded on the standard library's container/heap, documented
// in DESIGN.md as the stdlib substitute for an unverified third-party
// ordered-tree API).
func (c *Context) ExecuteInActorAfter(fn func(), delay time.Duration) {
	t := &timer{fireAt: time.Now().Add(delay), fn: fn}
	c.timerMu.Lock()
	heap.Push(&c.timers, t)
	c.timerMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Close stops the mailbox and timer goroutines. Pending timers are
// discarded; already-enqueued mailbox funcs are not run.
func (c *Context) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Context) runMailbox() {
	for {
		select {
		case fn := <-c.mailbox:
			fn()
		case <-c.done:
			return
		}
	}
}

// runTimers drains timers as they come due, handing each ready fn to the
// mailbox so it still runs with the same non-reentrancy guarantee as any
// other actor message.
func (c *Context) runTimers() {
	for {
		c.timerMu.Lock()
		var wait time.Duration
		if c.timers.Len() == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(c.timers[0].fireAt)
			if wait < 0 {
				wait = 0
			}
		}
		c.timerMu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-c.wake:
			timer.Stop()
		case <-c.done:
			timer.Stop()
			return
		}

		now := time.Now()
		for {
			c.timerMu.Lock()
			if c.timers.Len() == 0 || c.timers[0].fireAt.After(now) {
				c.timerMu.Unlock()
				break
			}
			t := heap.Pop(&c.timers).(*timer)
			c.timerMu.Unlock()
			c.ExecuteInActor(t.fn)
		}
	}
}

// timer is one pending ExecuteInActorAfter callback.
type timer struct {
	fireAt time.Time
	fn     func()
	index  int
}

// delayQueue is a container/heap min-heap of pending timers ordered by
// fire time.
type delayQueue []*timer

func (q delayQueue) Len() int            { return len(q) }
func (q delayQueue) Less(i, j int) bool  { return q[i].fireAt.Before(q[j].fireAt) }
func (q delayQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *delayQueue) Push(x any) {
	t := x.(*timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *delayQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
