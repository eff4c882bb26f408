package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// outboundTopic is the single outbound topic name (§6 "stoplichten").
const outboundTopic = "stoplichten"

// Broadcaster listens on OutboundListen and fan-outs every published
// snapshot to all currently-connected subscribers. It implements
// publisher.Sink.
type Broadcaster struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewBroadcaster creates a Broadcaster. Config defaults are applied automatically.
func NewBroadcaster(cfg Config, logger *slog.Logger) *Broadcaster {
	cfg.ApplyDefaults()
	return &Broadcaster{
		cfg:    cfg,
		logger: logger.With("component", "transport.broadcaster"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Run accepts subscriber connections on OutboundListen until ctx is
// cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.cfg.OutboundListen)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", b.cfg.OutboundListen, err)
	}
	b.logger.Info("outbound listening", "addr", b.cfg.OutboundListen)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("accept error", "error", err)
			continue
		}
		b.addConn(conn)
	}
}

func (b *Broadcaster) addConn(conn net.Conn) {
	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()
	b.logger.Info("subscriber connected", "remote", conn.RemoteAddr())
}

func (b *Broadcaster) removeConn(conn net.Conn) {
	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
	conn.Close()
}

// PublishSnapshot JSON-encodes snapshot and writes it as one multipart frame
// to every connected subscriber, dropping any subscriber whose write fails
// or times out (§4.5 "publish only on change" — deduplication itself is
// internal/publisher's responsibility; this sink just delivers).
func (b *Broadcaster) PublishSnapshot(snapshot map[string]string) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("transport: marshal stoplichten payload: %w", err)
	}

	b.mu.Lock()
	conns := make([]net.Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
		if err := writeFrame(conn, outboundTopic, payload); err != nil {
			b.logger.Warn("subscriber write failed, dropping connection", "remote", conn.RemoteAddr(), "error", err)
			b.removeConn(conn)
		}
	}
	return nil
}
