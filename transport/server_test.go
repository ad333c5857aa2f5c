package transport_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/hioload-wire/api"
	"github.com/momentics/hioload-wire/control"
	"github.com/momentics/hioload-wire/protocol"
	"github.com/momentics/hioload-wire/transport"
)

const handshake = "GET /chat HTTP/1.1\r\n" +
	"Host: localhost\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n\r\n"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echo() protocol.Handler {
	return protocol.HandlerFunc(func(c *protocol.Conn, ev api.Event) error {
		switch ev := ev.(type) {
		case api.HTTPRequest:
			return c.SendHTTPResponse(http.StatusOK,
				[]protocol.HeaderField{{Name: "Content-Type", Value: "text/plain"}},
				[]byte("hello "+ev.Msg.URI.String()))
		case api.WSFrame:
			return c.SendWebSocketFrame(ev.Msg.Opcode(), ev.Msg.Payload)
		}
		return nil
	})
}

func testConfig() control.Config {
	cfg := control.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.TickInterval = 20 * time.Millisecond
	return cfg
}

func startServer(t *testing.T, cfg control.Config, opts ...transport.Option) (*transport.Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]transport.Option{transport.WithConfig(cfg), transport.WithLogger(quietLogger())}, opts...)
	srv := transport.NewServer(echo(), opts...)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	t.Cleanup(func() {
		srv.Close()
		if err := <-done; !errors.Is(err, transport.ErrServerClosed) {
			t.Errorf("Serve returned %v", err)
		}
	})
	return srv, ln.Addr().String()
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerWebSocketEcho(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	_, addr := startServer(t, testConfig(), transport.WithMetrics(metrics))

	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/chat", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status %d", resp.StatusCode)
	}

	for _, msg := range []string{"hello", strings.Repeat("x", 70000)} {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
		typ, got, err := ws.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if typ != websocket.TextMessage || string(got) != msg {
			t.Fatalf("echo mismatch: type %d len %d", typ, len(got))
		}
	}

	// The default close handler would try to answer the echo after our own
	// Close was sent; record the echoed code instead.
	echoed := -1
	ws.SetCloseHandler(func(code int, _ string) error {
		echoed = code
		return nil
	})
	if err := ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")); err != nil {
		t.Fatal(err)
	}
	_, _, err = ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) || echoed != websocket.CloseNormalClosure {
		t.Fatalf("want close 1000, got %v (echoed %d)", err, echoed)
	}

	eventually(t, "metrics", func() bool {
		return metrics.Get(control.MetricHandshakes) == 1 &&
			metrics.Get(control.MetricWSFrames) == 2 &&
			metrics.Get(control.MetricWSControlFrames) == 1
	})
}

func TestServerHTTP(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	_, addr := startServer(t, testConfig(), transport.WithMetrics(metrics))

	client := &http.Client{Timeout: time.Second}
	for _, path := range []string{"/a", "/b"} {
		resp, err := client.Get("http://" + addr + path)
		if err != nil {
			t.Fatal(err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK || string(body) != "hello "+path {
			t.Fatalf("%s: %d %q", path, resp.StatusCode, body)
		}
	}
	client.CloseIdleConnections()
	if got := metrics.Get(control.MetricHTTPRequests); got != 2 {
		t.Fatalf("http requests %d", got)
	}
}

func TestServerMalformedCloses(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	srv, addr := startServer(t, testConfig(), transport.WithMetrics(metrics))

	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	if _, err := nc.Write([]byte("GARBAGE\r\n\r\n")); err != nil {
		t.Fatal(err)
	}
	_ = nc.SetReadDeadline(time.Now().Add(time.Second))
	if b, err := io.ReadAll(nc); err != nil || len(b) != 0 {
		t.Fatalf("want silent close, got %q %v", b, err)
	}
	eventually(t, "malformed counter", func() bool {
		return metrics.Get(control.MetricMalformed) == 1 && srv.Sessions().Len() == 0
	})
}

func TestServerKeepalive(t *testing.T) {
	cfg := testConfig()
	cfg.PingInterval = 100 * time.Millisecond
	metrics := control.NewMetricsRegistry()
	_, addr := startServer(t, cfg, transport.WithMetrics(metrics))

	// A responsive peer is pinged.
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	pings := make(chan struct{}, 8)
	ws.SetPingHandler(func(data string) error {
		pings <- struct{}{}
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}

	// A silent peer is dropped after two intervals.
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	if _, err := nc.Write([]byte(handshake)); err != nil {
		t.Fatal(err)
	}
	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw, err := io.ReadAll(nc)
	if err != nil {
		t.Fatalf("silent peer not dropped: %v", err)
	}
	if !strings.HasPrefix(string(raw), "HTTP/1.1 101 ") {
		t.Fatalf("reply %q", raw)
	}
	eventually(t, "timeout counter", func() bool {
		return metrics.Get(control.MetricKeepaliveTimeouts) == 1
	})
}

func TestServerShutdownSendsGoingAway(t *testing.T) {
	srv, addr := startServer(t, testConfig())

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	eventually(t, "session", func() bool { return srv.Sessions().Len() == 1 })

	errc := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		errc <- srv.Shutdown(ctx)
	}()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("want close 1001, got %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := net.Dial("tcp", addr); err == nil {
		t.Fatal("listener still accepting")
	}
}

func TestDialWebSocket(t *testing.T) {
	_, addr := startServer(t, testConfig())

	var events []api.EventCode
	var echoed string
	client, err := transport.Dial(context.Background(), addr,
		protocol.HandlerFunc(func(c *protocol.Conn, ev api.Event) error {
			events = append(events, ev.Code())
			switch ev := ev.(type) {
			case api.ConnOpened:
				return c.SendWebSocketHandshake("/", addr, nil)
			case api.WSHandshakeDone:
				return c.SendWebSocketFrame(api.OpText, []byte("from client"))
			case api.WSFrame:
				echoed = string(ev.Msg.Payload)
				return c.SendClose(protocol.CloseNormalClosure, "")
			}
			return nil
		}),
		transport.WithConfig(testConfig()),
		transport.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		client.Close()
		t.Fatal("client did not finish")
	}
	if err := client.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if echoed != "from client" {
		t.Fatalf("echo %q", echoed)
	}
	want := []api.EventCode{
		api.EventConnOpened, api.EventWSHandshakeDone, api.EventWSFrame,
		api.EventWSControlFrame, api.EventConnClosed,
	}
	if len(events) != len(want) {
		t.Fatalf("events %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events %v", events)
		}
	}
}

func TestDialHTTP(t *testing.T) {
	_, addr := startServer(t, testConfig())

	replies := make(chan string, 1)
	client, err := transport.Dial(context.Background(), addr,
		protocol.HandlerFunc(func(c *protocol.Conn, ev api.Event) error {
			switch ev := ev.(type) {
			case api.ConnOpened:
				return c.Send([]byte("GET /dialed HTTP/1.1\r\nHost: " + addr + "\r\n\r\n"))
			case api.HTTPReply:
				replies <- ev.Msg.Body.String()
			}
			return nil
		}),
		transport.WithConfig(testConfig()),
		transport.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case body := <-replies:
		if body != "hello /dialed" {
			t.Fatalf("body %q", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestDialRefused(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := transport.Dial(ctx, addr, echo()); err == nil {
		t.Fatal("dial to a closed port succeeded")
	}
}

func TestServerIdleTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	srv, addr := startServer(t, cfg)

	idle, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer idle.Close()
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	_ = idle.SetReadDeadline(time.Now().Add(2 * time.Second))
	if b, err := io.ReadAll(idle); err != nil || len(b) != 0 {
		t.Fatalf("idle HTTP connection not closed: %q %v", b, err)
	}
	time.Sleep(2 * cfg.IdleTimeout)
	if n := srv.Sessions().Len(); n != 1 {
		t.Fatalf("sessions %d; the WebSocket connection must outlive the idle timeout", n)
	}
}
