package transport

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

func TestBroadcaster_DeliversToConnectedSubscriber(t *testing.T) {
	cfg := Config{InboundAddr: "ignored:0", OutboundListen: "127.0.0.1:0"}
	cfg.ApplyDefaults()
	b := NewBroadcaster(cfg, discardLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error = %v", err)
	}
	b.cfg.OutboundListen = ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", b.cfg.OutboundListen)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond) // allow Accept to register the conn

	if err := b.PublishSnapshot(map[string]string{"1.1": "rood"}); err != nil {
		t.Fatalf("PublishSnapshot() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	topic, payload, err := readFrame(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("readFrame() error = %v", err)
	}
	if topic != outboundTopic {
		t.Errorf("topic = %q, want %q", topic, outboundTopic)
	}
	if string(payload) != `{"1.1":"rood"}` {
		t.Errorf("payload = %q", payload)
	}
}

func TestBroadcaster_DropsFailedSubscriber(t *testing.T) {
	cfg := Config{InboundAddr: "ignored:0", OutboundListen: "127.0.0.1:0"}
	cfg.ApplyDefaults()
	b := NewBroadcaster(cfg, discardLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error = %v", err)
	}
	b.cfg.OutboundListen = ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", b.cfg.OutboundListen)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	conn.Close() // subscriber gone before any publish

	if err := b.PublishSnapshot(map[string]string{"1.1": "rood"}); err != nil {
		t.Fatalf("PublishSnapshot() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	b.mu.Lock()
	n := len(b.conns)
	b.mu.Unlock()
	if n != 0 {
		t.Errorf("expected dead subscriber connection dropped, got %d remaining", n)
	}
}
