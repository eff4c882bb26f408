package transport

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"time"
)

// FrameHandler processes one decoded inbound [topic, payload] frame.
type FrameHandler interface {
	HandleFrame(topic string, payload []byte)
}

// Subscriber dials InboundAddr and feeds every frame it receives to a
// FrameHandler, reconnecting on any read error until ctx is cancelled.
type Subscriber struct {
	cfg     Config
	handler FrameHandler
	logger  *slog.Logger

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewSubscriber creates a Subscriber. Config defaults are applied automatically.
func NewSubscriber(cfg Config, handler FrameHandler, logger *slog.Logger) *Subscriber {
	cfg.ApplyDefaults()
	return &Subscriber{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "transport.subscriber"),
		dial:    (&net.Dialer{}).DialContext,
	}
}

// Run connects and reads frames until ctx is cancelled, transparently
// reconnecting after any connection error (§7: sensor absence must never
// deadlock the system — a dropped feed simply means stale values persist
// until reconnection succeeds).
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.runOnce(ctx); err != nil {
			s.logger.Warn("inbound connection lost, will reconnect", "error", err, "addr", s.cfg.InboundAddr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *Subscriber) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	conn, err := s.dial(dialCtx, "tcp", s.cfg.InboundAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.logger.Info("inbound connected", "addr", s.cfg.InboundAddr)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		topic, payload, err := readFrame(r)
		if err != nil {
			return err
		}
		s.handler.HandleFrame(topic, payload)
	}
}
