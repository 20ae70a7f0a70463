package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"gend/internal/orchestrator"
	"gend/pkg/types"
)

// wsSendBuffer bounds the per-connection outbound queue. Fragment events are
// small; the single writer drains fast enough that the buffer only matters
// when the peer stalls.
const wsSendBuffer = 64

// wsHandler upgrades the request and runs the duplex command/event protocol:
// the host sends Command records, the daemon answers with Event records.
//
// Commands that run work (load, generate) execute on a per-connection worker
// goroutine, one at a time, in arrival order. Interrupt and reset are
// dispatched inline from the read loop so they can reach a generation that is
// currently occupying the worker.
func wsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := &websocket.AcceptOptions{}
		if corsEnabled {
			opts.OriginPatterns = corsAllowedOrigins
		}
		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			log.Printf("ws accept error=%v", err)
			return
		}
		connID := uuid.NewString()
		wsConnections.Inc()
		defer wsConnections.Dec()
		if zlog != nil {
			zlog.Info().Str("conn_id", connID).Str("remote", r.RemoteAddr).Msg("ws open")
		} else {
			log.Printf("ws open conn=%s remote=%s", connID, r.RemoteAddr)
		}

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		sendCh := make(chan []byte, wsSendBuffer)
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-sendCh:
					if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		sink := orchestrator.SinkFunc(func(e types.Event) {
			b, err := json.Marshal(e)
			if err != nil {
				return
			}
			select {
			case sendCh <- b:
			case <-ctx.Done():
			}
		})

		// pending counts load/generate commands accepted from this connection
		// that the worker has not finished yet. The close path below must not
		// interrupt on behalf of a connection that has no unfinished work:
		// the flag is shared, so that would truncate another host's session.
		var pending atomic.Int64
		cmdCh := make(chan types.Command, 1)
		workerDone := make(chan struct{})
		go func() {
			defer close(workerDone)
			for cmd := range cmdCh {
				svc.Handle(ctx, cmd, sink)
				pending.Add(-1)
			}
		}()

		readLoop(ctx, conn, svc, sink, cmdCh, &pending, connID)

		close(cmdCh)
		// Stop an in-flight generation owned by this connection before the
		// worker is abandoned.
		if pending.Load() > 0 {
			svc.Handle(context.Background(), types.Command{Type: types.CmdInterrupt}, orchestrator.SinkFunc(func(types.Event) {}))
		}
		cancel()
		<-workerDone
		<-writerDone
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		if zlog != nil {
			zlog.Info().Str("conn_id", connID).Msg("ws close")
		} else {
			log.Printf("ws close conn=%s", connID)
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, svc Service, sink orchestrator.EventSink, cmdCh chan types.Command, pending *atomic.Int64, connID string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if !errors.As(err, &ce) || ce.Code != websocket.StatusNormalClosure {
				if ctx.Err() == nil {
					log.Printf("ws read conn=%s error=%v", connID, err)
				}
			}
			return
		}
		var cmd types.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			sink.Publish(types.Event{Status: types.EventError, Error: "invalid command: " + err.Error()})
			continue
		}
		wsCommandsTotal.WithLabelValues(string(cmd.Type)).Inc()
		switch cmd.Type {
		case types.CmdInterrupt, types.CmdReset:
			svc.Handle(ctx, cmd, sink)
		default:
			pending.Add(1)
			select {
			case cmdCh <- cmd:
			case <-ctx.Done():
				pending.Add(-1)
				return
			}
		}
	}
}
