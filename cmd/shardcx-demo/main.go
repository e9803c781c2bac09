// Command shardcx-demo wires every package together against a static,
// in-memory backend list, to exercise the coordinator end to end without a
// real transport. It is illustrative, not a deployable binary.
package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shardcx/shardcx/actorkit"
	"github.com/shardcx/shardcx/auth"
	"github.com/shardcx/shardcx/backend"
	"github.com/shardcx/shardcx/config"
	"github.com/shardcx/shardcx/connection"
	"github.com/shardcx/shardcx/coordinator"
	"github.com/shardcx/shardcx/envelope"
	"github.com/shardcx/shardcx/identity"
	"github.com/shardcx/shardcx/internal/klog"
	"github.com/shardcx/shardcx/resolvercache"
)

// staticResolver always resolves every cookie to the same fixed backend
// list, round-robined by cookie parity. A real deployment would replace
// this with a collaborator backed by the application's own topology
// service.
type staticResolver struct {
	backends []backend.Info
}

func (r staticResolver) GetBackend(_ context.Context, cookie uint64) (backend.Info, error) {
	return r.backends[cookie%uint64(len(r.backends))], nil
}

func (r staticResolver) RefreshBackend(_ context.Context, cookie uint64, _ backend.Info) (backend.Info, error) {
	return r.backends[cookie%uint64(len(r.backends))], nil
}

// loggingTransmitter prints every request it is handed instead of sending
// it anywhere, standing in for a real wire transport.
type loggingTransmitter struct {
	backendID string
	sent      atomic.Int64
}

func (t *loggingTransmitter) Send(_ context.Context, req envelope.Request) error {
	t.sent.Add(1)
	fmt.Printf("[%s] sending seq=%d target=%s\n", t.backendID, req.Seq, req.Target)
	return nil
}

func main() {
	log := klog.NewStd(klog.LevelInfo)

	resolver := resolvercache.New(staticResolver{backends: []backend.Info{
		{ID: "shard-a", SessionToken: 1, MaxMessages: 16},
		{ID: "shard-b", SessionToken: 1, MaxMessages: 16},
	}}, 2*time.Second)

	actor := actorkit.New(identity.ClientID{ID: "demo-client"}, "demo-client-1")
	defer actor.Close()

	cfg := config.New(config.WithLogger(log))

	strategy := passthroughStrategy{log: log}
	co := coordinator.New(actor, resolver, strategy, func(info backend.Info) connection.Transmitter {
		return &loggingTransmitter{backendID: info.ID}
	}, cfg)

	history := identity.LocalHistoryID{Client: identity.ClientID{ID: "demo-client"}, History: 42}
	cookie := uint64(identity.ExtractCookie(history))

	conn, err := co.GetConnection(cookie)
	if err != nil {
		log.Log(klog.LevelError, "get_connection failed", "err", err)
		return
	}

	for seq := int64(0); seq < 3; seq++ {
		done := make(chan struct{})
		err := conn.Enqueue(envelope.Entry{
			Request: envelope.Request{Target: history, Seq: seq},
			Complete: func(resp envelope.Response, err error) {
				close(done)
			},
		})
		if err != nil {
			log.Log(klog.LevelWarn, "enqueue rejected", "seq", seq, "err", err)
			continue
		}
		actor.ExecuteInActor(func() {
			co.Dispatch(envelope.Success{To: history, Seq: seq})
		})
		<-done
	}
}

// passthroughStrategy is the minimal coordinator.Strategy a caller needs
// when it has no application-specific commands or replay rewriting: it
// runs the auth handshake against the backend's session token and then
// re-enqueues replayed entries onto the new connection unchanged.
type passthroughStrategy struct {
	log klog.Logger
}

func (passthroughStrategy) OnCommand(any) bool { return false }

func (s passthroughStrategy) ConnectionUp(newConn *connection.Connected) (coordinator.ConnectCohort, error) {
	verifier, err := auth.Derive(newConn.Info().SessionToken)
	if err != nil {
		return nil, err
	}
	if err := auth.Handshake(s.log, verifier, func(c auth.Challenge) ([]byte, error) {
		return verifier.Respond(c), nil
	}); err != nil {
		return nil, err
	}
	return passthroughCohort{newConn: newConn}, nil
}

func (passthroughStrategy) HaltClient(cause error) {
	fmt.Println("client halted:", cause)
}

type passthroughCohort struct {
	newConn *connection.Connected
}

func (p passthroughCohort) FinishReconnect(entries []envelope.Entry) (coordinator.ReconnectForwarder, error) {
	for _, e := range entries {
		if err := p.newConn.Enqueue(e); err != nil && e.Complete != nil {
			e.Complete(nil, err)
		}
	}
	return forwarder{to: p.newConn}, nil
}

type forwarder struct {
	to *connection.Connected
}

func (f forwarder) Forward(e envelope.Entry) {
	if err := f.to.Enqueue(e); err != nil && e.Complete != nil {
		e.Complete(nil, err)
	}
}
