package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := New()
	require.Equal(t, defaultResolverRetryInterval, c.ResolverRetryInterval())
	require.Equal(t, time.Duration(0), c.ResolverCacheTTL())
	require.Equal(t, defaultConnectingCeiling, c.ConnectingCeiling())
	require.Equal(t, defaultReconnectingCeiling, c.ReconnectingCeiling())
	require.NotNil(t, c.Logger())
}

func TestOptionsOverrideDefaults(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(
		WithResolverRetryInterval(10*time.Second),
		WithResolverCacheTTL(30*time.Second),
		WithConnectingCeiling(16),
		WithReconnectingCeiling(8),
		WithClock(func() time.Time { return fixed }),
	)

	require.Equal(t, 10*time.Second, c.ResolverRetryInterval())
	require.Equal(t, 30*time.Second, c.ResolverCacheTTL())
	require.Equal(t, 16, c.ConnectingCeiling())
	require.Equal(t, 8, c.ReconnectingCeiling())
	require.Equal(t, fixed, c.Now())
}
