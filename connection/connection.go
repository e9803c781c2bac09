// Package connection implements the four connection variants: Connecting,
// Connected, Reconnecting, and Halted (poisoned). Exactly one
// variant exists per shard cookie at a time; the coordinator package owns
// transitioning a shard from one to the next under the write side of an
// invlock.Lock.
//
// Each variant guards its poisoned/draining state behind a mutex so
// in-flight sends never race a shutdown, and drains its pending work
// serially so every entry's completion is delivered exactly once.
package connection

import (
	"sync"

	"github.com/shardcx/shardcx/envelope"
	"github.com/shardcx/shardcx/kxerr"
)

// Conn is implemented by every connection variant.
type Conn interface {
	// Cookie returns the shard cookie this connection serves. Immutable
	// for the lifetime of the variant instance.
	Cookie() uint64

	// Enqueue buffers a new entry, or rejects it immediately if the
	// connection cannot accept more work (overflow or poisoned).
	Enqueue(e envelope.Entry) error

	// ReceiveResponse matches an inbound response to a buffered entry by
	// sequence number and completes it exactly once. For an unknown
	// sequence number it returns false and completes nothing; the
	// coordinator logs and drops the response.
	ReceiveResponse(resp envelope.Response) bool

	// Poison completes every outstanding and buffered entry with cause and
	// marks the connection terminal. It does not touch the coordinator's
	// map; the coordinator removes the connection after poisoning it.
	Poison(cause error)

	// StartReplay atomically marks the connection as draining and returns
	// its buffered entries in enqueue order. After this call the
	// connection buffers no further entries: an enqueue before
	// FinishReplay fails with QueueOverflow, and one after it is handed to
	// the installed forwarder.
	StartReplay() []envelope.Entry

	// FinishReplay installs the forwarder that will receive any entry
	// that arrives after StartReplay returned.
	FinishReplay(fwd Forwarder)
}

// Forwarder redirects entries arriving on a connection that has already
// started replaying onto its reconnect target. A Forwarder must apply the
// same per-entry rewrite the cohort applied to the initial replay batch, so
// stragglers and replayed entries are indistinguishable to the backend they
// land on.
type Forwarder interface {
	Forward(e envelope.Entry)
}

// entryQueue is the shared buffering primitive behind every variant: an
// ordered, internally-synchronized list of not-yet-completed entries plus
// the bookkeeping needed to complete each one exactly once.
type entryQueue struct {
	mu       sync.Mutex
	pending  []envelope.Entry // buffered, not yet sent or not yet responded to
	ceiling  int              // 0 means unbounded
	draining bool
	fwd      Forwarder
}

func newEntryQueue(ceiling int) *entryQueue {
	return &entryQueue{ceiling: ceiling}
}

// push appends e, unless the queue has started draining (in which case the
// installed forwarder takes it) or is at its ceiling (QueueOverflow).
func (q *entryQueue) push(cookie uint64, e envelope.Entry) error {
	q.mu.Lock()
	if q.draining {
		fwd := q.fwd
		q.mu.Unlock()
		if fwd == nil {
			// Replay started but the forwarder is not installed yet: this
			// is a very short race window (between StartReplay and
			// FinishReplay within the same write-locked transition); the
			// caller is a producer that raced the coordinator and must be
			// told to retry via QueueOverflow rather than be silently
			// dropped.
			return &kxerr.QueueOverflow{Cookie: cookie}
		}
		fwd.Forward(e)
		return nil
	}
	if q.ceiling > 0 && len(q.pending) >= q.ceiling {
		q.mu.Unlock()
		return &kxerr.QueueOverflow{Cookie: cookie}
	}
	q.pending = append(q.pending, e)
	q.mu.Unlock()
	return nil
}

// drain marks the queue as draining and returns its buffered entries in
// enqueue order, clearing the internal slice.
func (q *entryQueue) drain() []envelope.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.draining = true
	out := q.pending
	q.pending = nil
	return out
}

func (q *entryQueue) installForwarder(fwd Forwarder) {
	q.mu.Lock()
	q.fwd = fwd
	q.mu.Unlock()
}

// drainAll empties the queue unconditionally, used by Poison.
func (q *entryQueue) drainAll() []envelope.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	q.draining = true
	return out
}

// completeOnce invokes e.Complete if it is set; every variant calls this
// instead of invoking e.Complete directly. It keeps no record of prior
// completions: an entry is completed once because each variant removes it
// from its queue or in-flight set before completing it.
func completeOnce(e envelope.Entry, resp envelope.Response, err error) {
	if e.Complete != nil {
		e.Complete(resp, err)
	}
}
