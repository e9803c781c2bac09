// Package testkit provides fakes for the coordinator's external
// collaborators: small channel-driven fakes rather than a generated mock,
// so a test controls exactly when an asynchronous resolution or transport
// event becomes visible.
package testkit

import (
	"context"
	"sync"

	"github.com/shardcx/shardcx/backend"
)

// Result is one resolver outcome to deliver for a shard.
type Result struct {
	Info backend.Info
	Err  error
}

// FakeResolver is a backend.Resolver whose GetBackend/RefreshBackend calls
// block until a matching Result has been Push-ed for that cookie: a queue
// per key, delivered on demand.
type FakeResolver struct {
	mu     sync.Mutex
	queues map[uint64]chan Result
}

// NewFakeResolver returns an empty FakeResolver.
func NewFakeResolver() *FakeResolver {
	return &FakeResolver{queues: make(map[uint64]chan Result)}
}

func (f *FakeResolver) queue(cookie uint64) chan Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queues[cookie]
	if !ok {
		q = make(chan Result, 8)
		f.queues[cookie] = q
	}
	return q
}

// Push enqueues the next result a call for cookie will receive.
func (f *FakeResolver) Push(cookie uint64, info backend.Info, err error) {
	f.queue(cookie) <- Result{Info: info, Err: err}
}

func (f *FakeResolver) GetBackend(ctx context.Context, cookie uint64) (backend.Info, error) {
	select {
	case r := <-f.queue(cookie):
		return r.Info, r.Err
	case <-ctx.Done():
		return backend.Info{}, ctx.Err()
	}
}

func (f *FakeResolver) RefreshBackend(ctx context.Context, cookie uint64, stale backend.Info) (backend.Info, error) {
	select {
	case r := <-f.queue(cookie):
		return r.Info, r.Err
	case <-ctx.Done():
		return backend.Info{}, ctx.Err()
	}
}

var _ backend.Resolver = (*FakeResolver)(nil)
