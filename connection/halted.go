package connection

import (
	"sync"

	"github.com/shardcx/shardcx/envelope"
	"github.com/shardcx/shardcx/kxerr"
)

// Halted is the terminal, poisoned variant. All entries are completed with failure; further enqueues
// fail immediately rather than buffering.
type Halted struct {
	cookie uint64

	mu    sync.Mutex
	cause error
}

// NewHalted constructs an already-poisoned connection. The coordinator
// does not install one: on a resolver or handshake failure it poisons the
// current variant and removes it from its map.
func NewHalted(cookie uint64, cause error) *Halted {
	if cause == nil {
		cause = kxerr.ErrConnectionPoisoned
	}
	return &Halted{cookie: cookie, cause: cause}
}

func (h *Halted) Cookie() uint64 { return h.cookie }

func (h *Halted) Enqueue(e envelope.Entry) error {
	h.mu.Lock()
	cause := h.cause
	h.mu.Unlock()
	completeOnce(e, nil, cause)
	return nil
}

func (h *Halted) ReceiveResponse(envelope.Response) bool { return false }

func (h *Halted) Poison(cause error) {
	h.mu.Lock()
	if cause != nil {
		h.cause = cause
	}
	h.mu.Unlock()
}

func (h *Halted) StartReplay() []envelope.Entry { return nil }
func (h *Halted) FinishReplay(Forwarder)        {}

var _ Conn = (*Halted)(nil)
