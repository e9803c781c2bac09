// Package kxerr holds the coordinator's error taxonomy. Each kind
// wraps an underlying cause behind a named sentinel, so callers can use
// errors.Is/As against the sentinels below while still seeing the original
// cause in the error string.
package kxerr

import (
	"errors"
	"fmt"
)

// Sentinels usable with errors.Is.
var (
	// ErrResolverTimeout marks a retryable resolver timeout. Local
	// recovery: retried after a fixed delay while the connection is current.
	ErrResolverTimeout = errors.New("kxerr: resolver timeout")

	// ErrResolverFatal marks a non-retryable resolver failure. Local
	// recovery: none; poisons the one shard.
	ErrResolverFatal = errors.New("kxerr: resolver fatal error")

	// ErrRetiredGeneration marks a backend telling the client its identity
	// has been superseded. Terminal for the whole client.
	ErrRetiredGeneration = errors.New("kxerr: client generation retired")

	// ErrCycleDetected is raised by InversibleLock when a reader's attempt
	// to take an optimistic read would complete an AB/BA cycle with a
	// blocked writer. The caller must release all stamps, await
	// resolution, and retry from its outermost entry point.
	ErrCycleDetected = errors.New("kxerr: lock cycle detected, retry from outermost entry point")

	// ErrQueueOverflow marks a Connecting/Reconnecting buffer ceiling being
	// full, or an enqueue that lands between StartReplay and FinishReplay.
	// A full Connected transmit window does not raise it: excess entries
	// wait in the buffer.
	ErrQueueOverflow = errors.New("kxerr: connection queue overflow")

	// ErrConnectionPoisoned is the cause given to entries completed after
	// poisoning, when no more specific cause is available.
	ErrConnectionPoisoned = errors.New("kxerr: connection poisoned")
)

// RequestFailure wraps a generic backend-reported failure. It is surfaced
// to the entry's callback, never escalated.
type RequestFailure struct {
	Cause error
}

func (e *RequestFailure) Error() string { return fmt.Sprintf("request failed: %v", e.Cause) }
func (e *RequestFailure) Unwrap() error { return e.Cause }

// ResolverTimeout wraps the resolver's own timeout error so the original
// cause is preserved while still matching ErrResolverTimeout via errors.Is.
type ResolverTimeout struct {
	Cause error
}

func (e *ResolverTimeout) Error() string { return fmt.Sprintf("resolver timeout: %v", e.Cause) }
func (e *ResolverTimeout) Unwrap() error { return errors.Join(ErrResolverTimeout, e.Cause) }
func (e *ResolverTimeout) Is(target error) bool { return target == ErrResolverTimeout }

// ResolverFatal wraps a non-retryable resolver failure.
type ResolverFatal struct {
	Cause error
}

func (e *ResolverFatal) Error() string        { return fmt.Sprintf("resolver fatal: %v", e.Cause) }
func (e *ResolverFatal) Unwrap() error         { return e.Cause }
func (e *ResolverFatal) Is(target error) bool { return target == ErrResolverFatal }

// RetiredGeneration wraps the backend-reported cause that this client's
// identifier has been superseded.
type RetiredGeneration struct {
	Cause error
}

func (e *RetiredGeneration) Error() string {
	return fmt.Sprintf("generation retired: %v", e.Cause)
}
func (e *RetiredGeneration) Unwrap() error         { return e.Cause }
func (e *RetiredGeneration) Is(target error) bool { return target == ErrRetiredGeneration }

// QueueOverflow reports which shard's connection rejected an enqueue.
type QueueOverflow struct {
	Cookie uint64
}

func (e *QueueOverflow) Error() string {
	return fmt.Sprintf("queue overflow for shard cookie %d", e.Cookie)
}
func (e *QueueOverflow) Is(target error) bool { return target == ErrQueueOverflow }

// Classify wraps a resolver-returned error: an error for which isTimeout
// reports true becomes *ResolverTimeout (retryable); anything else becomes
// *ResolverFatal (poisons the shard).
func Classify(err error, isTimeout func(error) bool) error {
	if err == nil {
		return nil
	}
	if isTimeout != nil && isTimeout(err) {
		return &ResolverTimeout{Cause: err}
	}
	return &ResolverFatal{Cause: err}
}
