package publisher

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/plexsphere/plexd/internal/topology"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const doc = `{
	"groups": {
		"1": {"intersects_with": [], "lanes": {"1": {}, "2": {}}},
		"71": {"intersects_with": [], "lanes": {"1": {}}}
	},
	"bridge": {"approach_a": 71, "approach_b": 71, "signal_id": "81.1"}
}`

func mustLoad(t *testing.T) *topology.Topology {
	t.Helper()
	top, err := topology.Load([]byte(doc))
	if err != nil {
		t.Fatalf("topology.Load() error = %v", err)
	}
	return top
}

type fakeSink struct {
	published []map[string]string
	err       error
}

func (f *fakeSink) PublishSnapshot(snapshot map[string]string) error {
	if f.err != nil {
		return f.err
	}
	cp := make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		cp[k] = v
	}
	f.published = append(f.published, cp)
	return nil
}

func TestPublish_ComposesAllLanesAndBridgeSignal(t *testing.T) {
	top := mustLoad(t)
	sink := &fakeSink{}
	p := New(top, sink, discardLogger())

	ok, err := p.Publish(topology.PhaseRed)
	if err != nil || !ok {
		t.Fatalf("Publish() = %v, %v; want true, nil", ok, err)
	}
	got := sink.published[0]
	want := map[string]string{
		"1.1":  "rood",
		"1.2":  "rood",
		"71.1": "rood",
		"81.1": "rood",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("lane %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestPublish_DuplicateSnapshotSuppressed(t *testing.T) {
	top := mustLoad(t)
	sink := &fakeSink{}
	p := New(top, sink, discardLogger())

	if ok, _ := p.Publish(topology.PhaseRed); !ok {
		t.Fatal("expected first publish to occur")
	}
	if ok, _ := p.Publish(topology.PhaseRed); ok {
		t.Error("expected identical second snapshot to be suppressed")
	}
	if len(sink.published) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(sink.published))
	}
}

func TestPublish_ChangeTriggersNewPublish(t *testing.T) {
	top := mustLoad(t)
	sink := &fakeSink{}
	p := New(top, sink, discardLogger())

	p.Publish(topology.PhaseRed)
	top.Direction(1).SetGreen(top.Direction(1).LastGreenAt) // phase change only
	if ok, _ := p.Publish(topology.PhaseRed); !ok {
		t.Error("expected publish after a direction's phase changed")
	}
	if len(sink.published) != 2 {
		t.Fatalf("expected two publishes, got %d", len(sink.published))
	}
}

func TestPublish_BridgeSignalNeverOranje(t *testing.T) {
	top := mustLoad(t)
	sink := &fakeSink{}
	p := New(top, sink, discardLogger())

	// The bridge signal must never expose "oranje" on the wire (§4.5). The
	// publisher does not enforce this -- PhaseOrange still renders via
	// Phase.String(), so this test documents that callers (bridgectl's
	// SignalPhase) are responsible for never supplying PhaseOrange here.
	p.Publish(topology.PhaseGreen)
	if sink.published[0]["81.1"] != "groen" {
		t.Errorf("bridge signal = %q, want groen", sink.published[0]["81.1"])
	}
}

func TestPublish_SinkError(t *testing.T) {
	top := mustLoad(t)
	sink := &fakeSink{err: errors.New("boom")}
	p := New(top, sink, discardLogger())

	ok, err := p.Publish(topology.PhaseRed)
	if ok || err == nil {
		t.Fatalf("Publish() = %v, %v; want false, error", ok, err)
	}
}
