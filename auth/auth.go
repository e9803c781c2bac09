// Package auth implements the optional session handshake a ConnectStrategy
// may run before publishing a freshly connected backend. It guards against a
// resolver handing back stale or forged BackendInfo by requiring the caller
// prove knowledge of the backend's session token via a SCRAM-style
// challenge/response: a request, read challenge, respond, step loop,
// collapsed to the one mechanism this module needs rather than a pluggable
// mechanism registry.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/shardcx/shardcx/internal/klog"
)

// ErrHandshakeFailed is returned when the backend's response does not
// match the expected verifier. Per the coordinator's contract this is a
// per-shard fault: the strategy is expected to poison just the connection
// being established, not escalate to a retired-generation-wide halt.
var ErrHandshakeFailed = errors.New("auth: handshake verification failed")

const (
	pbkdf2Iterations = 4096
	keyLen           = 32
	saltLen          = 16
)

// Verifier is a derived key bound to one backend session token. A
// Verifier's zero value is not valid; construct one with Derive.
type Verifier struct {
	key  []byte
	salt []byte
}

// Derive computes a verifier key from a backend's session token, derived at
// connection setup from the session token the resolver just handed back.
func Derive(sessionToken uint64) (Verifier, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return Verifier{}, fmt.Errorf("auth: generating salt: %w", err)
	}
	password := fmt.Sprintf("%d", sessionToken)
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLen, sha256.New)
	return Verifier{key: key, salt: salt}, nil
}

// Challenge is a nonce the client sends the backend to authenticate
// against.
type Challenge struct {
	Nonce []byte
}

// NewChallenge generates a fresh random challenge.
func NewChallenge() (Challenge, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return Challenge{}, fmt.Errorf("auth: generating nonce: %w", err)
	}
	return Challenge{Nonce: nonce}, nil
}

// Respond computes the HMAC-SHA-256 response a holder of the verifier
// produces for a given challenge.
func (v Verifier) Respond(c Challenge) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write(c.Nonce)
	return mac.Sum(nil)
}

// Handshake runs a two-step challenge/response conversation: the caller
// plays the client side (holding a Verifier derived from the session token
// it believes is current), and respond plays the backend side, returning
// whatever response it computes for a given challenge (in practice, a thin
// wrapper around a real backend RPC; in tests, testkit's fake backend).
//
// A step counter is logged at each of the two steps (issuing the challenge
// and verifying the response), so debug logs show how far a handshake got.
func Handshake(log klog.Logger, v Verifier, respond func(Challenge) ([]byte, error)) error {
	step := 0
	challenge, err := NewChallenge()
	if err != nil {
		return err
	}
	log.Log(klog.LevelDebug, "auth: issuing challenge", "step", step)

	want := v.Respond(challenge)
	got, err := respond(challenge)
	if err != nil {
		return fmt.Errorf("auth: backend response: %w", err)
	}
	step++
	log.Log(klog.LevelDebug, "auth: verifying response", "step", step)

	if !hmac.Equal(want, got) {
		return ErrHandshakeFailed
	}
	return nil
}
