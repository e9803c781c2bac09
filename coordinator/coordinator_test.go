package coordinator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shardcx/shardcx/actorkit"
	"github.com/shardcx/shardcx/backend"
	"github.com/shardcx/shardcx/config"
	"github.com/shardcx/shardcx/connection"
	"github.com/shardcx/shardcx/coordinator"
	"github.com/shardcx/shardcx/envelope"
	"github.com/shardcx/shardcx/identity"
	"github.com/shardcx/shardcx/kxerr"
	"github.com/shardcx/shardcx/testkit"
)

func newTestCoordinator(t *testing.T, opts ...config.Opt) (*coordinator.Coordinator, *testkit.FakeResolver, *testkit.FakeTransmitter, *testkit.RecordingStrategy) {
	t.Helper()
	actor := actorkit.New(identity.ClientID{ID: "c1"}, "p1")
	t.Cleanup(actor.Close)

	resolver := testkit.NewFakeResolver()
	tx := testkit.NewFakeTransmitter()
	strategy := testkit.NewRecordingStrategy()
	cfg := config.New(opts...)

	co := coordinator.New(actor, resolver, strategy, testkit.FixedTransmitterFactory(tx), cfg)
	return co, resolver, tx, strategy
}

// waitForVariant polls GetConnection(cookie) until it returns a value of
// type T, or fails the test after one second.
func waitForVariant[T any](t *testing.T, co *coordinator.Coordinator, cookie uint64) T {
	t.Helper()
	var result T
	found := false
	require.Eventually(t, func() bool {
		conn, err := co.GetConnection(cookie)
		require.NoError(t, err)
		if v, ok := conn.(T); ok {
			result = v
			found = true
			return true
		}
		return false
	}, time.Second, 2*time.Millisecond)
	require.True(t, found)
	return result
}

// Scenario 1: cold resolve.
func TestColdResolve(t *testing.T) {
	co, resolver, tx, _ := newTestCoordinator(t)

	conn, err := co.GetConnection(7)
	require.NoError(t, err)
	_, isConnecting := conn.(*connection.Connecting)
	require.True(t, isConnecting)

	err = conn.Enqueue(envelope.Entry{Request: envelope.Request{Seq: 0}})
	require.NoError(t, err)

	resolver.Push(7, backend.Info{ID: "A", SessionToken: 1, MaxMessages: 4}, nil)

	connected := waitForVariant[*connection.Connected](t, co, 7)
	require.Equal(t, "A", connected.Info().ID)

	require.Eventually(t, func() bool { return len(tx.Sent()) == 1 }, time.Second, 2*time.Millisecond)
	require.Equal(t, int64(0), tx.Sent()[0].Seq)
}

// Scenario 2: transport failure and reconnect, including a
// straggler arriving on the old connection after replay has begun.
func TestTransportFailureAndReconnect(t *testing.T) {
	co, resolver, tx, _ := newTestCoordinator(t)

	_, err := co.GetConnection(3)
	require.NoError(t, err)
	resolver.Push(3, backend.Info{ID: "A", SessionToken: 1, MaxMessages: 8}, nil)
	connected := waitForVariant[*connection.Connected](t, co, 3)

	for seq := int64(0); seq < 5; seq++ {
		require.NoError(t, connected.Enqueue(envelope.Entry{Request: envelope.Request{Seq: seq}}))
	}
	require.Eventually(t, func() bool { return len(tx.Sent()) == 5 }, time.Second, 2*time.Millisecond)

	tx.FailNext(errors.New("transport reset"))
	require.NoError(t, connected.Enqueue(envelope.Entry{Request: envelope.Request{Seq: 5}}))

	reconnecting := waitForVariant[*connection.Reconnecting](t, co, 3)

	// A straggler, enqueued directly on the old Connected after it has
	// started draining, must be redirected onto the Reconnecting rather
	// than lost or rejected.
	require.NoError(t, connected.Enqueue(envelope.Entry{Request: envelope.Request{Seq: 6}}))
	_ = reconnecting

	resolver.Push(3, backend.Info{ID: "A", SessionToken: 1, MaxMessages: 8}, nil)
	newConnected := waitForVariant[*connection.Connected](t, co, 3)
	require.NotSame(t, connected, newConnected)

	require.Eventually(t, func() bool { return len(tx.Sent()) == 12 }, time.Second, 2*time.Millisecond)
	sent := tx.Sent()
	var replayed []int64
	for _, r := range sent[5:] {
		replayed = append(replayed, r.Seq)
	}
	require.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6}, replayed)
}

// Scenario 3: retired generation halts the client exactly once
// and clears the connection map.
func TestRetiredGenerationHaltsAndClearsMap(t *testing.T) {
	co, resolver, _, strategy := newTestCoordinator(t)

	_, err := co.GetConnection(1)
	require.NoError(t, err)
	resolver.Push(1, backend.Info{ID: "A", MaxMessages: 4}, nil)
	waitForVariant[*connection.Connected](t, co, 1)

	cause := errors.New("generation retired")
	co.Dispatch(envelope.Failure{Cause: &kxerr.RetiredGeneration{Cause: cause}})

	require.Eventually(t, func() bool { return strategy.HaltCalls() == 1 }, time.Second, 2*time.Millisecond)

	conn2, err := co.GetConnection(1)
	require.NoError(t, err)
	_, isConnecting := conn2.(*connection.Connecting)
	require.True(t, isConnecting, "map entry should have been cleared and recreated fresh")

	co.Dispatch(envelope.Failure{Cause: &kxerr.RetiredGeneration{Cause: cause}})
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, strategy.HaltCalls(), "halt_client must be idempotent")
}

// Scenario 4: resolver timeout then success reuses the same
// Connecting object across every attempt.
func TestResolverTimeoutThenSuccessReusesConnectingObject(t *testing.T) {
	co, resolver, _, _ := newTestCoordinator(t, config.WithResolverRetryInterval(5*time.Millisecond))

	first, err := co.GetConnection(9)
	require.NoError(t, err)
	connecting, ok := first.(*connection.Connecting)
	require.True(t, ok)

	resolver.Push(9, backend.Info{}, context.DeadlineExceeded)
	time.Sleep(20 * time.Millisecond)
	again, err := co.GetConnection(9)
	require.NoError(t, err)
	require.Same(t, connecting, again)

	resolver.Push(9, backend.Info{}, context.DeadlineExceeded)
	time.Sleep(20 * time.Millisecond)
	again2, err := co.GetConnection(9)
	require.NoError(t, err)
	require.Same(t, connecting, again2)

	resolver.Push(9, backend.Info{ID: "final", MaxMessages: 1}, nil)
	connected := waitForVariant[*connection.Connected](t, co, 9)
	require.Equal(t, "final", connected.Info().ID)
}

// Scenario 6: a shard superseded during a timeout retry causes
// the stale retry to observe a mismatched identity and quit silently.
func TestResolverTimeoutRetrySuppressedWhenSuperseded(t *testing.T) {
	co, resolver, _, _ := newTestCoordinator(t, config.WithResolverRetryInterval(20*time.Millisecond))

	_, err := co.GetConnection(5)
	require.NoError(t, err)

	resolver.Push(5, backend.Info{}, context.DeadlineExceeded)
	time.Sleep(5 * time.Millisecond)

	co.Supersede(5, errors.New("superseded"))

	fresh, err := co.GetConnection(5)
	require.NoError(t, err)
	_, isConnecting := fresh.(*connection.Connecting)
	require.True(t, isConnecting)

	resolver.Push(5, backend.Info{ID: "fresh-backend", MaxMessages: 2}, nil)
	connected := waitForVariant[*connection.Connected](t, co, 5)
	require.Equal(t, "fresh-backend", connected.Info().ID)
}

// receive_response with an unknown cookie is dropped, not a crash.
func TestDispatchUnknownCookieIsDropped(t *testing.T) {
	co, _, _, _ := newTestCoordinator(t)
	require.NotPanics(t, func() {
		co.Dispatch(envelope.Success{To: identity.LocalHistoryID{Client: identity.ClientID{ID: "ghost"}, History: 404}})
	})
}
