package connection

import (
	"context"
	"sync"

	"github.com/shardcx/shardcx/backend"
	"github.com/shardcx/shardcx/envelope"
	"github.com/shardcx/shardcx/kxerr"
)

// Transmitter is the transport collaborator a Connected connection sends
// requests through. Like backend.Resolver, the wire format and transport
// themselves are out of scope; this is the minimal seam the core needs so
// a Connected connection can transmit normally, the way a connection's
// write path calls out to a plain net.Conn underneath it.
type Transmitter interface {
	Send(ctx context.Context, req envelope.Request) error
}

// Connected is the variant transmitting normally against a resolved
// backend. It enforces a transmit window sized from
// BackendInfo.MaxMessages; entries beyond the window wait in the buffer.
type Connected struct {
	cookie  uint64
	info    backend.Info
	tx      Transmitter
	onDown  func(error) // called at most once, when a send fails
	downOnce sync.Once

	q *entryQueue

	mu           sync.Mutex
	inflight     map[int64]envelope.Entry // seq -> entry, awaiting response
	inflightSend []int64                  // seqs in the order they were sent
}

// NewConnected constructs a Connected variant bound to info, sending
// through tx. onTransportDown is invoked at most once if a send fails; the
// coordinator wires this to trigger the reconnect transition.
func NewConnected(cookie uint64, info backend.Info, tx Transmitter, onTransportDown func(error)) *Connected {
	c := &Connected{
		cookie:   cookie,
		info:     info,
		tx:       tx,
		onDown:   onTransportDown,
		q:        newEntryQueue(0),
		inflight: make(map[int64]envelope.Entry),
	}
	return c
}

func (c *Connected) Cookie() uint64      { return c.cookie }
func (c *Connected) Info() backend.Info { return c.info }

func (c *Connected) Enqueue(e envelope.Entry) error {
	if err := c.q.push(c.cookie, e); err != nil {
		return err
	}
	c.pump()
	return nil
}

// pump moves buffered entries into flight up to the backend's advertised
// window.
func (c *Connected) pump() {
	window := c.info.MaxMessages
	if window <= 0 {
		window = 1
	}
	for {
		c.mu.Lock()
		if len(c.inflight) >= window {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		next, ok := c.q.popOne()
		if !ok {
			return
		}

		c.mu.Lock()
		c.inflight[next.Request.Seq] = next
		c.inflightSend = append(c.inflightSend, next.Request.Seq)
		c.mu.Unlock()

		if err := c.tx.Send(context.Background(), next.Request); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Connected) fail(cause error) {
	c.downOnce.Do(func() {
		if c.onDown != nil {
			c.onDown(cause)
		}
	})
}

func (c *Connected) ReceiveResponse(resp envelope.Response) bool {
	seq := resp.Sequence()
	c.mu.Lock()
	e, ok := c.inflight[seq]
	if ok {
		delete(c.inflight, seq)
		for i, s := range c.inflightSend {
			if s == seq {
				c.inflightSend = append(c.inflightSend[:i], c.inflightSend[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
	if !ok {
		// Unknown sequence: logged by the caller (coordinator), dropped
		// here.
		return false
	}
	if f, isFailure := resp.(envelope.Failure); isFailure {
		completeOnce(e, nil, &kxerr.RequestFailure{Cause: f.Cause})
	} else {
		completeOnce(e, resp, nil)
	}
	c.pump()
	return true
}

func (c *Connected) Poison(cause error) {
	c.mu.Lock()
	inflight := c.inflightInOrderLocked()
	c.inflight = make(map[int64]envelope.Entry)
	c.inflightSend = nil
	c.mu.Unlock()

	for _, e := range inflight {
		completeOnce(e, nil, cause)
	}
	for _, e := range c.q.drainAll() {
		completeOnce(e, nil, cause)
	}
}

// inflightInOrderLocked returns in-flight entries in the order they were
// sent. Callers must hold c.mu.
func (c *Connected) inflightInOrderLocked() []envelope.Entry {
	out := make([]envelope.Entry, 0, len(c.inflightSend))
	for _, seq := range c.inflightSend {
		if e, ok := c.inflight[seq]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (c *Connected) StartReplay() []envelope.Entry {
	// A Connected instance is never the `old` side of a reconnect that
	// started from Connecting/Reconnecting. Still, for
	// completeness/testing we replay whatever is in flight (in the order
	// it was sent) followed by whatever is still buffered.
	c.mu.Lock()
	inflight := c.inflightInOrderLocked()
	c.inflight = make(map[int64]envelope.Entry)
	c.inflightSend = nil
	c.mu.Unlock()

	buffered := c.q.drain()
	return append(inflight, buffered...)
}

func (c *Connected) FinishReplay(fwd Forwarder) { c.q.installForwarder(fwd) }

var _ Conn = (*Connected)(nil)

// popOne removes and returns the oldest buffered entry, if any.
func (q *entryQueue) popOne() (envelope.Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return envelope.Entry{}, false
	}
	e := q.pending[0]
	q.pending = q.pending[1:]
	return e, true
}
