// File: cmd/hioload-wire/main.go
// Package main
// Echo server over the hioload-wire protocol layer: WebSocket messages are
// echoed back, HTTP requests are served from a document root or answered
// with a greeting that echoes the "name" query variable.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/hioload-wire/api"
	"github.com/momentics/hioload-wire/control"
	"github.com/momentics/hioload-wire/protocol"
	"github.com/momentics/hioload-wire/static"
	"github.com/momentics/hioload-wire/transport"
)

// app is the event handler of every connection.
type app struct {
	files  *static.Handler
	logger *slog.Logger
}

func (a *app) HandleEvent(c *protocol.Conn, ev api.Event) error {
	switch ev := ev.(type) {
	case api.WSFrame:
		return c.SendWebSocketFrame(ev.Msg.Opcode(), ev.Msg.Payload)
	case api.WSHandshakeDone:
		a.logger.Debug("websocket established")
	case api.HTTPRequest:
		if a.files != nil {
			return a.files.Serve(c, ev.Msg)
		}
		return a.greet(c, ev.Msg)
	}
	return nil
}

func (a *app) greet(c *protocol.Conn, msg *api.HTTPMessage) error {
	name, ok := protocol.LookupVariable(msg.QueryString, "name")
	if !ok {
		name = "world"
	}
	if err := c.SendHTTPResponseHead(http.StatusOK, []protocol.HeaderField{
		{Name: "Content-Type", Value: "text/plain; charset=utf-8"},
		{Name: "Transfer-Encoding", Value: "chunked"},
	}); err != nil {
		return err
	}
	if err := c.PrintfHTTPChunk("hello, %s\n", name); err != nil {
		return err
	}
	if err := c.PrintfHTTPChunk("you asked for %s\n", msg.URI); err != nil {
		return err
	}
	return c.SendHTTPChunk(nil)
}

type runner interface {
	run() error
	stop(ctx context.Context) error
}

type gnetRunner struct{ e *transport.Engine }

func (r gnetRunner) run() error { return r.e.Run() }
func (r gnetRunner) stop(ctx context.Context) error {
	r.e.Shutdown()
	return r.e.Stop(ctx)
}

type netRunner struct{ s *transport.Server }

func (r netRunner) run() error { return r.s.ListenAndServe() }
func (r netRunner) stop(ctx context.Context) error {
	return r.s.Shutdown(ctx)
}

func main() {
	def := control.DefaultConfig()
	addr := flag.String("addr", def.ListenAddr, "listen address")
	root := flag.String("root", "", "document root for static files")
	engine := flag.String("engine", "gnet", "connection layer: gnet or net")
	ping := flag.Duration("ping", def.PingInterval, "websocket keepalive interval")
	maxFrame := flag.Int64("max-frame", def.MaxFramePayload, "maximum websocket frame payload")
	maxBody := flag.Int("max-body", def.MaxBodySize, "maximum HTTP body size")
	idle := flag.Duration("idle", def.IdleTimeout, "close HTTP connections idle this long; 0 disables")
	reuse := flag.Bool("reuseport", false, "set SO_REUSEPORT on the listener")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := def
	cfg.ListenAddr = *addr
	cfg.DocumentRoot = *root
	cfg.PingInterval = *ping
	cfg.MaxFramePayload = *maxFrame
	if cfg.MaxMessageSize < cfg.MaxFramePayload {
		cfg.MaxMessageSize = cfg.MaxFramePayload
	}
	cfg.MaxBodySize = *maxBody
	cfg.IdleTimeout = *idle
	cfg.ReusePort = *reuse
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(2)
	}

	h := &app{logger: logger}
	if cfg.DocumentRoot != "" {
		h.files = &static.Handler{DocumentRoot: cfg.DocumentRoot, Logger: logger}
	}

	metrics := control.NewMetricsRegistry()
	probes := control.NewDebugProbes()
	opts := []transport.Option{
		transport.WithConfig(cfg),
		transport.WithLogger(logger),
		transport.WithMetrics(metrics),
		transport.WithDebugProbes(probes),
	}

	var r runner
	switch *engine {
	case "gnet":
		r = gnetRunner{transport.NewEngine(h, opts...)}
	case "net":
		r = netRunner{transport.NewServer(h, opts...)}
	default:
		logger.Error("unknown engine", "engine", *engine)
		os.Exit(2)
	}

	errc := make(chan error, 1)
	go func() { errc <- r.run() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	case err := <-errc:
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("final counters", "metrics", metrics.GetSnapshot(), "probes", probes.DumpState())
}
