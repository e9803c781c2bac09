package testkit

import (
	"context"
	"sync"

	"github.com/shardcx/shardcx/backend"
	"github.com/shardcx/shardcx/connection"
	"github.com/shardcx/shardcx/envelope"
)

// FakeTransmitter records every request handed to Send and can be told to
// fail the next send, simulating a transport-down signal.
type FakeTransmitter struct {
	mu      sync.Mutex
	sent    []envelope.Request
	failErr error
}

// NewFakeTransmitter returns a FakeTransmitter that accepts every send.
func NewFakeTransmitter() *FakeTransmitter {
	return &FakeTransmitter{}
}

func (t *FakeTransmitter) Send(ctx context.Context, req envelope.Request) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failErr != nil {
		err := t.failErr
		t.failErr = nil
		return err
	}
	t.sent = append(t.sent, req)
	return nil
}

// Sent returns a snapshot of every request accepted so far, in send order.
func (t *FakeTransmitter) Sent() []envelope.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]envelope.Request, len(t.sent))
	copy(out, t.sent)
	return out
}

// FailNext causes the next Send call to return err instead of succeeding.
func (t *FakeTransmitter) FailNext(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failErr = err
}

var _ connection.Transmitter = (*FakeTransmitter)(nil)

// FixedTransmitterFactory returns a coordinator.TransmitterFactory-shaped
// func that always hands back tx, regardless of the backend it is asked to
// connect to; most tests need only one fake transport per shard.
func FixedTransmitterFactory(tx connection.Transmitter) func(backend.Info) connection.Transmitter {
	return func(backend.Info) connection.Transmitter { return tx }
}
