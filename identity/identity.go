// Package identity defines the immutable identifier types the coordinator
// routes by. Every identifier exposes a shard cookie, the 64-bit value used
// to partition client traffic across connections.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Cookie is the opaque 64-bit value a connection is keyed by.
type Cookie uint64

// Identifier is implemented by every identifier kind the coordinator knows
// how to route. Implementations must be immutable and comparable.
type Identifier interface {
	// Cookie returns the shard cookie this identifier routes to.
	Cookie() Cookie
	fmt.Stringer
}

// ClientID names a single client actor. Clients do not carry a cookie of
// their own; they are the namespace the other identifiers live under.
type ClientID struct {
	ID string
}

func (c ClientID) String() string { return "client:" + c.ID }

// LocalHistoryID names one local transaction history belonging to a client.
type LocalHistoryID struct {
	Client  ClientID
	History uint64
}

func (h LocalHistoryID) String() string {
	return fmt.Sprintf("%s/history:%d", h.Client, h.History)
}

// Cookie derives a stable 64-bit cookie from the client id and history
// number. We fold both components through SHA-256 and truncate rather than
// just using the history number verbatim so that cookies are spread evenly
// across shards regardless of how history numbers happen to be allocated
// (sequential history numbers would otherwise land on adjacent shards).
func (h LocalHistoryID) Cookie() Cookie {
	return cookieHash(h.Client.ID, h.History, 0)
}

// TransactionID names one transaction within a local history. Its cookie
// is its history's cookie: a transaction always routes to the same
// connection as the history it belongs to.
type TransactionID struct {
	History LocalHistoryID
	Txn     uint64
}

func (t TransactionID) String() string {
	return fmt.Sprintf("%s/txn:%d", t.History, t.Txn)
}

func (t TransactionID) Cookie() Cookie {
	return t.History.Cookie()
}

func cookieHash(client string, history, extra uint64) Cookie {
	h := sha256.New()
	_, _ = h.Write([]byte(client))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], history)
	binary.BigEndian.PutUint64(buf[8:16], extra)
	_, _ = h.Write(buf[:])
	sum := h.Sum(nil)
	return Cookie(binary.BigEndian.Uint64(sum[:8]))
}

// ErrUnsupportedIdentifier is raised by ExtractCookie when handed an
// Identifier kind it does not recognize. This is a programming error, not
// a runtime condition a caller can recover from.
type ErrUnsupportedIdentifier struct {
	Identifier Identifier
}

func (e *ErrUnsupportedIdentifier) Error() string {
	return fmt.Sprintf("identity: unsupported identifier kind %T (%v): programming error", e.Identifier, e.Identifier)
}

// ExtractCookie maps an identifier to the shard cookie it routes to.
//
//   - TransactionID -> History.Cookie()
//   - LocalHistoryID -> Cookie()
//
// Any other identifier kind is a programming error: it panics with
// *ErrUnsupportedIdentifier.
func ExtractCookie(id Identifier) Cookie {
	switch v := id.(type) {
	case TransactionID:
		return v.History.Cookie()
	case LocalHistoryID:
		return v.Cookie()
	default:
		panic(&ErrUnsupportedIdentifier{Identifier: id})
	}
}
