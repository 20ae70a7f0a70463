package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"gend/internal/orchestrator"
	"gend/pkg/types"
)

// waitWSClosed blocks until the server-side connection handler has fully
// unwound, observed through the connection gauge.
func waitWSClosed(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(wsConnections) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("ws handler did not unwind")
}

func dialWS(t *testing.T, srv *httptest.Server) (*websocket.Conn, context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	return conn, ctx, cancel
}

func writeCommand(t *testing.T, ctx context.Context, conn *websocket.Conn, cmd types.Command) {
	t.Helper()
	b, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) types.Event {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var e types.Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return e
}

func TestWSGenerateRoundTrip(t *testing.T) {
	svc := &mockService{handle: func(ctx context.Context, cmd types.Command, sink orchestrator.EventSink) {
		if cmd.Type != types.CmdGenerate {
			return
		}
		sink.Publish(types.Event{Status: types.EventStart})
		sink.Publish(types.Event{Status: types.EventUpdate, Output: "hi", NumTokens: 1})
		sink.Publish(types.Event{Status: types.EventComplete, Output: "hi"})
	}}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	conn, ctx, cancel := dialWS(t, srv)
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "done")

	writeCommand(t, ctx, conn, types.Command{
		Type:   types.CmdGenerate,
		Config: &types.ModelConfig{Model: "m1"},
		Data:   []types.ChatMessage{{Role: "user", Content: "hi"}},
	})

	want := []types.EventStatus{types.EventStart, types.EventUpdate, types.EventComplete}
	for i, status := range want {
		e := readEvent(t, ctx, conn)
		if e.Status != status {
			t.Fatalf("event %d: status=%s want=%s", i, e.Status, status)
		}
	}
}

func TestWSInvalidCommandEmitsError(t *testing.T) {
	svc := &mockService{}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	conn, ctx, cancel := dialWS(t, srv)
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	e := readEvent(t, ctx, conn)
	if e.Status != types.EventError || e.Error == "" {
		t.Fatalf("expected error event, got %+v", e)
	}
}

func TestWSInterruptReachesBusyWorker(t *testing.T) {
	// The generate handler blocks until an interrupt arrives; interrupts are
	// dispatched from the read loop, so they must get through while the
	// worker goroutine is occupied.
	interrupted := make(chan struct{})
	svc := &mockService{handle: func(ctx context.Context, cmd types.Command, sink orchestrator.EventSink) {
		switch cmd.Type {
		case types.CmdInterrupt:
			select {
			case <-interrupted:
			default:
				close(interrupted)
			}
		case types.CmdGenerate:
			sink.Publish(types.Event{Status: types.EventStart})
			select {
			case <-interrupted:
			case <-ctx.Done():
			}
			sink.Publish(types.Event{Status: types.EventComplete, Output: "partial"})
		}
	}}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	conn, ctx, cancel := dialWS(t, srv)
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "done")

	writeCommand(t, ctx, conn, types.Command{
		Type:   types.CmdGenerate,
		Config: &types.ModelConfig{Model: "m1"},
		Data:   []types.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if e := readEvent(t, ctx, conn); e.Status != types.EventStart {
		t.Fatalf("expected start, got %+v", e)
	}
	writeCommand(t, ctx, conn, types.Command{Type: types.CmdInterrupt})
	if e := readEvent(t, ctx, conn); e.Status != types.EventComplete {
		t.Fatalf("expected complete after interrupt, got %+v", e)
	}
}

func TestWSIdleCloseDoesNotInterrupt(t *testing.T) {
	// A connection that never issued a command must not touch the shared
	// interrupt flag on disconnect; that would truncate another host's
	// in-flight generation.
	var mu sync.Mutex
	var got []types.CommandType
	svc := &mockService{handle: func(ctx context.Context, cmd types.Command, sink orchestrator.EventSink) {
		mu.Lock()
		got = append(got, cmd.Type)
		mu.Unlock()
	}}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	conn, _, cancel := dialWS(t, srv)
	defer cancel()
	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitWSClosed(t)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 0 {
		t.Fatalf("idle close reached the service with commands: %v", got)
	}
}

func TestWSCloseDuringGenerateInterrupts(t *testing.T) {
	// Dropping a connection with a generation in flight must request an
	// interrupt so the decode loop stops at its next step.
	var mu sync.Mutex
	var got []types.CommandType
	svc := &mockService{handle: func(ctx context.Context, cmd types.Command, sink orchestrator.EventSink) {
		mu.Lock()
		got = append(got, cmd.Type)
		mu.Unlock()
		if cmd.Type == types.CmdGenerate {
			sink.Publish(types.Event{Status: types.EventStart})
			<-ctx.Done()
		}
	}}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	conn, ctx, cancel := dialWS(t, srv)
	defer cancel()

	writeCommand(t, ctx, conn, types.Command{
		Type:   types.CmdGenerate,
		Config: &types.ModelConfig{Model: "m1"},
		Data:   []types.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if e := readEvent(t, ctx, conn); e.Status != types.EventStart {
		t.Fatalf("expected start, got %+v", e)
	}
	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitWSClosed(t)

	mu.Lock()
	defer mu.Unlock()
	interrupted := false
	for _, c := range got {
		if c == types.CmdInterrupt {
			interrupted = true
		}
	}
	if !interrupted {
		t.Fatalf("expected an interrupt after dropping a busy connection, got %v", got)
	}
}

func TestWSCommandsQueueInOrder(t *testing.T) {
	var seen []types.CommandType
	done := make(chan struct{})
	svc := &mockService{handle: func(ctx context.Context, cmd types.Command, sink orchestrator.EventSink) {
		seen = append(seen, cmd.Type)
		if len(seen) == 2 {
			close(done)
		}
		sink.Publish(types.Event{Status: types.EventReady})
	}}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	conn, ctx, cancel := dialWS(t, srv)
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "done")

	writeCommand(t, ctx, conn, types.Command{Type: types.CmdLoad, Config: &types.ModelConfig{Model: "m1"}})
	writeCommand(t, ctx, conn, types.Command{Type: types.CmdGenerate, Config: &types.ModelConfig{Model: "m1"}, Data: []types.ChatMessage{{Role: "user", Content: "hi"}}})
	readEvent(t, ctx, conn)
	readEvent(t, ctx, conn)
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("timed out waiting for both commands")
	}
	if seen[0] != types.CmdLoad || seen[1] != types.CmdGenerate {
		t.Fatalf("unexpected order: %v", seen)
	}
}
