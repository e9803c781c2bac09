package testkit

import (
	"sync"

	"github.com/shardcx/shardcx/auth"
	"github.com/shardcx/shardcx/connection"
	"github.com/shardcx/shardcx/coordinator"
	"github.com/shardcx/shardcx/envelope"
	"github.com/shardcx/shardcx/internal/klog"
)

// RecordingStrategy is a coordinator.Strategy that records every call it
// receives and, by default, runs the auth handshake against the new
// connection's backend session token and then hands back a
// PassthroughCohort that replays entries onto the new connection unchanged.
// Tests that need a specific connection_up failure or rewrite behavior set
// ConnectionUpFunc.
type RecordingStrategy struct {
	mu        sync.Mutex
	commands  []any
	haltCalls int
	haltCause error
	log       klog.Logger

	// ConnectionUpFunc, if set, replaces the default handshake+passthrough
	// behavior.
	ConnectionUpFunc func(*connection.Connected) (coordinator.ConnectCohort, error)
}

// NewRecordingStrategy returns a RecordingStrategy with handshake+
// passthrough defaults.
func NewRecordingStrategy() *RecordingStrategy {
	return &RecordingStrategy{log: klog.Nop{}}
}

func (s *RecordingStrategy) OnCommand(cmd any) bool {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	return true
}

func (s *RecordingStrategy) ConnectionUp(newConn *connection.Connected) (coordinator.ConnectCohort, error) {
	if s.ConnectionUpFunc != nil {
		return s.ConnectionUpFunc(newConn)
	}
	verifier, err := auth.Derive(newConn.Info().SessionToken)
	if err != nil {
		return nil, err
	}
	if err := auth.Handshake(s.log, verifier, func(c auth.Challenge) ([]byte, error) {
		return verifier.Respond(c), nil
	}); err != nil {
		return nil, err
	}
	return NewPassthroughCohort(newConn), nil
}

func (s *RecordingStrategy) HaltClient(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haltCalls++
	s.haltCause = cause
}

// HaltCalls reports how many times HaltClient has actually run.
func (s *RecordingStrategy) HaltCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haltCalls
}

// HaltCause returns the cause passed to the first HaltClient call, if any.
func (s *RecordingStrategy) HaltCause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haltCause
}

// Commands returns every command OnCommand has received, in order.
func (s *RecordingStrategy) Commands() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.commands))
	copy(out, s.commands)
	return out
}

var _ coordinator.Strategy = (*RecordingStrategy)(nil)

// PassthroughCohort is the simplest possible ConnectCohort: it re-enqueues
// every replayed entry onto the new connection unchanged, and forwards
// stragglers the same way, satisfying the ReconnectForwarder contract that
// stragglers must undergo the same handling replayed entries did.
type PassthroughCohort struct {
	newConn *connection.Connected
}

// NewPassthroughCohort builds a cohort bound to newConn.
func NewPassthroughCohort(newConn *connection.Connected) *PassthroughCohort {
	return &PassthroughCohort{newConn: newConn}
}

func (p *PassthroughCohort) FinishReconnect(entries []envelope.Entry) (coordinator.ReconnectForwarder, error) {
	for _, e := range entries {
		if err := p.newConn.Enqueue(e); err != nil && e.Complete != nil {
			e.Complete(nil, err)
		}
	}
	return passthroughForwarder{to: p.newConn}, nil
}

type passthroughForwarder struct {
	to *connection.Connected
}

func (f passthroughForwarder) Forward(e envelope.Entry) {
	if err := f.to.Enqueue(e); err != nil && e.Complete != nil {
		e.Complete(nil, err)
	}
}

var _ coordinator.ConnectCohort = (*PassthroughCohort)(nil)
