// Package envelope defines the request/response shapes the coordinator
// correlates. The wire format that produces and consumes these values is
// out of scope; this package only carries the fields the core
// needs: a target identifier, a sequence number, and a session/transmit
// token.
package envelope

import (
	"time"

	"github.com/shardcx/shardcx/identity"
)

// Request is a single outbound unit of work bound for one shard's backend.
type Request struct {
	Target       identity.Identifier
	Seq          int64
	SessionToken uint64

	// Body is opaque application payload; the coordinator never inspects it.
	Body any
}

// Response is implemented by Success and Failure.
type Response interface {
	Target() identity.Identifier
	Sequence() int64
}

// Success carries a response body correlated to a prior Request by Seq.
type Success struct {
	To   identity.Identifier
	Seq  int64
	Body any
}

func (s Success) Target() identity.Identifier { return s.To }
func (s Success) Sequence() int64             { return s.Seq }

// Failure carries a terminal or retriable cause for a prior Request.
type Failure struct {
	To    identity.Identifier
	Seq   int64
	Cause error
}

func (f Failure) Target() identity.Identifier { return f.To }
func (f Failure) Sequence() int64             { return f.Seq }

// Callback is invoked exactly once to complete a buffered entry, either
// with a successful response or a failure cause.
type Callback func(resp Response, err error)

// Entry is one buffered request awaiting transmission or completion.
type Entry struct {
	Request    Request
	EnqueuedAt time.Time
	Complete   Callback
}
