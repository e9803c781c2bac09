package resolvercache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shardcx/shardcx/backend"
)

type countingResolver struct {
	calls int
	info  backend.Info
}

func (r *countingResolver) GetBackend(ctx context.Context, cookie uint64) (backend.Info, error) {
	r.calls++
	return r.info, nil
}

func (r *countingResolver) RefreshBackend(ctx context.Context, cookie uint64, stale backend.Info) (backend.Info, error) {
	r.calls++
	return r.info, nil
}

func TestGetBackendServesFromCacheWithinTTL(t *testing.T) {
	inner := &countingResolver{info: backend.Info{ID: "b1", MaxMessages: 4}}
	c := New(inner, time.Minute)

	info, err := c.GetBackend(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, inner.info, info)

	info, err = c.GetBackend(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, inner.info, info)
	require.Equal(t, 1, inner.calls)
}

func TestGetBackendMissesAfterExpiry(t *testing.T) {
	inner := &countingResolver{info: backend.Info{ID: "b1"}}
	c := New(inner, time.Millisecond)
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	_, err := c.GetBackend(context.Background(), 1)
	require.NoError(t, err)

	fakeNow = fakeNow.Add(2 * time.Millisecond)
	_, err = c.GetBackend(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestZeroTTLDisablesCaching(t *testing.T) {
	inner := &countingResolver{info: backend.Info{ID: "b1"}}
	c := New(inner, 0)

	_, _ = c.GetBackend(context.Background(), 1)
	_, _ = c.GetBackend(context.Background(), 1)
	require.Equal(t, 2, inner.calls)
}

func TestRefreshBackendAlwaysCallsThroughAndUpdatesCache(t *testing.T) {
	inner := &countingResolver{info: backend.Info{ID: "b1"}}
	c := New(inner, time.Minute)

	_, err := c.RefreshBackend(context.Background(), 1, backend.Info{ID: "stale"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	info, err := c.GetBackend(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, inner.info, info)
	require.Equal(t, 1, inner.calls)
}
