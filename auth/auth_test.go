package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardcx/shardcx/internal/klog"
)

func TestHandshakeSucceedsWithMatchingVerifier(t *testing.T) {
	v, err := Derive(42)
	require.NoError(t, err)

	err = Handshake(klog.Nop{}, v, func(c Challenge) ([]byte, error) {
		return v.Respond(c), nil
	})
	require.NoError(t, err)
}

func TestHandshakeFailsWithWrongVerifier(t *testing.T) {
	v, err := Derive(42)
	require.NoError(t, err)
	other, err := Derive(43)
	require.NoError(t, err)

	err = Handshake(klog.Nop{}, v, func(c Challenge) ([]byte, error) {
		return other.Respond(c), nil
	})
	require.ErrorIs(t, err, ErrHandshakeFailed)
}

func TestHandshakePropagatesBackendError(t *testing.T) {
	v, err := Derive(42)
	require.NoError(t, err)
	boom := errors.New("backend unreachable")

	err = Handshake(klog.Nop{}, v, func(Challenge) ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}
