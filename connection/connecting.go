package connection

import (
	"github.com/shardcx/shardcx/envelope"
)

// Connecting is the initial variant for a shard before any backend is
// known. It buffers unboundedly up to a configured
// ceiling and never transmits.
type Connecting struct {
	cookie uint64
	q      *entryQueue
}

// NewConnecting constructs a fresh Connecting variant for cookie. ceiling
// of 0 means unbounded.
func NewConnecting(cookie uint64, ceiling int) *Connecting {
	return &Connecting{cookie: cookie, q: newEntryQueue(ceiling)}
}

func (c *Connecting) Cookie() uint64 { return c.cookie }

func (c *Connecting) Enqueue(e envelope.Entry) error {
	return c.q.push(c.cookie, e)
}

func (c *Connecting) ReceiveResponse(envelope.Response) bool {
	// Connecting never transmitted anything, so no response can match.
	return false
}

func (c *Connecting) Poison(cause error) {
	for _, e := range c.q.drainAll() {
		completeOnce(e, nil, cause)
	}
}

func (c *Connecting) StartReplay() []envelope.Entry { return c.q.drain() }
func (c *Connecting) FinishReplay(fwd Forwarder)    { c.q.installForwarder(fwd) }

var _ Conn = (*Connecting)(nil)
