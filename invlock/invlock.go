// Package invlock implements InversibleLock: an optimistic
// many-reader/single-writer primitive with cycle detection across multiple
// lock instances.
//
// The optimistic-read/validate half is a seqlock, grounded on the
// even/odd generation-counter pattern used for stable reads in the
// example corpus's slotcache cache (bounded read retries, ErrBusy on
// exhaustion) — see pkg/slotcache/cache.go in the retrieval pack. This
// package adds the one thing that pattern doesn't need on its own: cycle
// detection across two lock instances, because here many independent
// producer goroutines take optimistic reads on a shared connection map
// while a single actor goroutine takes the write lock to run a reconnect
// transition, and a producer that (in a larger deployment) holds a read on
// one map while reaching for another must not deadlock against a writer
// doing the reverse.
package invlock

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/shardcx/shardcx/kxerr"
)

// Stamp is an optimistic read receipt. It is only meaningful when passed
// back to Validate on the same Lock it was taken from.
type Stamp struct {
	lock *Lock
	gen  uint64
}

// Lock is one InversibleLock instance. The zero value is not usable; use
// New.
type Lock struct {
	name string

	gen atomic.Uint64 // even = quiescent, odd = write in progress

	writeMu sync.Mutex
	writer  atomic.Pointer[Session] // session currently between WriteLock/UnlockWrite

	doneMu sync.Mutex
	done   chan struct{} // closed when the current writer finishes; nil when idle

	readers sync.Map // *Session -> struct{}; sessions with an open stamp on this lock
}

// New constructs a Lock. name is used only for diagnostics.
func New(name string) *Lock {
	return &Lock{name: name}
}

// Session scopes the stamps held by one logical caller (one producer's
// outermost get_connection call, typically one goroutine at a time). A
// session must not be used concurrently from multiple goroutines; callers
// that want concurrent access take separate sessions.
type Session struct {
	id uint64

	mu        sync.Mutex
	openOn    map[*Lock]Stamp
	blockedOn atomic.Pointer[Lock] // set while this session is a writer inside SynchronizeWith
}

var sessionSeq atomic.Uint64

// NewSession returns a fresh session for one producer call chain.
func NewSession() *Session {
	return &Session{
		id:     sessionSeq.Add(1),
		openOn: make(map[*Lock]Stamp),
	}
}

// OptimisticRead takes a non-blocking read stamp on l. It never blocks the
// caller waiting on a writer; instead it either succeeds immediately,
// returning a stamp that must later be passed to Validate, or it detects
// an AB/BA cycle against a currently-blocked writer and returns
// kxerr.ErrCycleDetected. On that error the caller must call ReleaseAll and
// AwaitResolution(l), then retry from its outermost entry point.
func (s *Session) OptimisticRead(l *Lock) (Stamp, error) {
	if w := l.writer.Load(); w != nil && w != s {
		if target := w.blockedOn.Load(); target != nil {
			s.mu.Lock()
			_, holds := s.openOn[target]
			s.mu.Unlock()
			if holds {
				// w (writing l) is waiting for readers of `target` to drain,
				// and this session is one of those readers while also
				// reaching for l: completing this read would close an
				// AB/BA cycle with w, so refuse it instead of deadlocking.
				return Stamp{}, kxerr.ErrCycleDetected
			}
		}
	}

	g := l.gen.Load()
	st := Stamp{lock: l, gen: g}

	l.readers.Store(s, struct{}{})
	s.mu.Lock()
	s.openOn[l] = st
	s.mu.Unlock()

	return st, nil
}

// Validate reports whether l has not been written to since st was taken.
// It always releases the session's bookkeeping for this stamp, whether or
// not validation succeeded — the caller must re-OptimisticRead to retry.
func (s *Session) Validate(st Stamp) bool {
	ok := st.lock.gen.Load() == st.gen && st.gen%2 == 0
	s.release(st.lock)
	return ok
}

// Discard abandons a stamp without validating it, e.g. when the caller is
// about to retry from scratch for an unrelated reason.
func (s *Session) Discard(st Stamp) {
	s.release(st.lock)
}

func (s *Session) release(l *Lock) {
	l.readers.Delete(s)
	s.mu.Lock()
	delete(s.openOn, l)
	s.mu.Unlock()
}

// ReleaseAll drops every stamp this session currently holds open, as
// required before calling AwaitResolution after a cycle-detected error.
func (s *Session) ReleaseAll() {
	s.mu.Lock()
	locks := make([]*Lock, 0, len(s.openOn))
	for l := range s.openOn {
		locks = append(locks, l)
	}
	s.openOn = make(map[*Lock]Stamp)
	s.mu.Unlock()
	for _, l := range locks {
		l.readers.Delete(s)
	}
}

// WriteLock acquires l exclusively for this session. Only one session may
// hold a lock's write side at a time; concurrent WriteLock calls from other
// sessions block on the underlying mutex exactly like a normal exclusive
// lock. The cycle-detection protocol only concerns readers crossing a
// blocked writer; writer/writer contention is ordinary mutual exclusion.
func (s *Session) WriteLock(l *Lock) {
	l.writeMu.Lock()
	l.writer.Store(s)
	l.doneMu.Lock()
	l.done = make(chan struct{})
	l.doneMu.Unlock()
	l.gen.Add(1) // now odd: in-progress
}

// UnlockWrite releases l's write side, publishing the new generation and
// waking any session parked in AwaitResolution.
func (s *Session) UnlockWrite(l *Lock) {
	l.gen.Add(1) // now even again
	l.writer.Store(nil)
	s.blockedOn.Store(nil)

	l.doneMu.Lock()
	done := l.done
	l.done = nil
	l.doneMu.Unlock()
	if done != nil {
		close(done)
	}

	l.writeMu.Unlock()
}

// SynchronizeWith is called by a session that currently holds l's write
// lock and must wait for every other session's open read stamps on
// `other` to drain before it is safe to publish. This is the half of the
// protocol that leaves a writer blocked waiting for a read conflict: while
// blocked here, other sessions attempting OptimisticRead(l) will observe
// this session as l's writer and, if they already hold a stamp on
// `other`, get ErrCycleDetected instead of silently deadlocking against
// this call.
func (s *Session) SynchronizeWith(other *Lock) {
	s.blockedOn.Store(other)
	defer s.blockedOn.Store(nil)

	for {
		clear := true
		other.readers.Range(func(k, _ any) bool {
			if rs, _ := k.(*Session); rs != s {
				clear = false
				return false
			}
			return true
		})
		if clear {
			return
		}
		// Spin wait with no bound, in the same spirit as slotcache's
		// readBackoff-then-retry loop: short yields rather than a
		// condition variable, since contention here is expected to be
		// rare and brief (a handful of in-flight optimistic reads).
		runtime.Gosched()
	}
}

// AwaitResolution parks the calling goroutine until l's current writer (the
// one that caused a cycle-detected error) finishes. The caller should then
// retry from its outermost entry point.
func (s *Session) AwaitResolution(l *Lock) {
	l.doneMu.Lock()
	done := l.done
	l.doneMu.Unlock()
	if done != nil {
		<-done
	}
}
