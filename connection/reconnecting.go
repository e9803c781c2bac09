package connection

import "github.com/shardcx/shardcx/envelope"

// Reconnecting holds a shard whose prior Connected saw a transport failure
// and is awaiting a refreshed backend. It never transmits;
// it buffers new entries and retains the previously-in-flight ones so both
// can be replayed onto the next Connected, in order, once resolution
// succeeds.
type Reconnecting struct {
	cookie uint64
	q      *entryQueue
}

// NewReconnecting constructs a Reconnecting variant seeded with carryOver
// entries — the previously in-flight and buffered entries of the Connected
// it replaces, in their original order. ceiling bounds new
// enqueues accepted while waiting for the refreshed backend.
func NewReconnecting(cookie uint64, carryOver []envelope.Entry, ceiling int) *Reconnecting {
	q := newEntryQueue(ceiling)
	q.pending = append(q.pending, carryOver...)
	return &Reconnecting{cookie: cookie, q: q}
}

func (r *Reconnecting) Cookie() uint64 { return r.cookie }

func (r *Reconnecting) Enqueue(e envelope.Entry) error {
	return r.q.push(r.cookie, e)
}

func (r *Reconnecting) ReceiveResponse(envelope.Response) bool {
	// Reconnecting never transmits, so no in-flight response can match.
	// A straggler response for an entry carried over from the prior
	// Connected would have already raced StartReplay/FinishReplay on that
	// prior instance before this Reconnecting existed; it is not this
	// variant's concern.
	return false
}

func (r *Reconnecting) Poison(cause error) {
	for _, e := range r.q.drainAll() {
		completeOnce(e, nil, cause)
	}
}

func (r *Reconnecting) StartReplay() []envelope.Entry { return r.q.drain() }
func (r *Reconnecting) FinishReplay(fwd Forwarder)    { r.q.installForwarder(fwd) }

var _ Conn = (*Reconnecting)(nil)
