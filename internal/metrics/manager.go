package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager periodically reads a Source and keeps a set of Prometheus gauges
// and counters in sync, serving them on an HTTP endpoint.
type Manager struct {
	cfg    Config
	source Source
	logger *slog.Logger

	registry *prometheus.Registry
	server   *http.Server

	greenCount          prometheus.Gauge
	schedulerState      *prometheus.GaugeVec
	bridgeSessionState  *prometheus.GaugeVec
	bridgeSessionActive prometheus.Gauge
	jamEngaged          prometheus.Gauge
	preemptionActive    prometheus.Gauge
	sessionsCompleted   prometheus.Gauge
	sessionsCancelled   prometheus.Gauge
	tickCount           prometheus.Gauge
	publications        prometheus.Gauge
}

// NewManager creates a new Manager. Config defaults are applied automatically.
func NewManager(cfg Config, source Source, logger *slog.Logger) *Manager {
	cfg.ApplyDefaults()

	registry := prometheus.NewRegistry()
	m := &Manager{
		cfg:      cfg,
		source:   source,
		logger:   logger,
		registry: registry,

		greenCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficd_green_directions",
			Help: "Number of directions currently non-red.",
		}),
		schedulerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficd_scheduler_state",
			Help: "1 for the scheduler's current state, 0 otherwise, labeled by state name.",
		}, []string{"state"}),
		bridgeSessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficd_bridge_session_state",
			Help: "1 for the bridge session controller's current state, 0 otherwise, labeled by state name.",
		}, []string{"state"}),
		bridgeSessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficd_bridge_session_active",
			Help: "1 when a bridge session is currently running.",
		}),
		jamEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficd_jam_engaged",
			Help: "1 when jam handling has excluded the configured directions.",
		}),
		preemptionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficd_preemption_active",
			Help: "1 when a priority-1 override is in effect.",
		}),
		sessionsCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficd_bridge_sessions_completed_total",
			Help: "Cumulative count of bridge sessions that reached RESTORE.",
		}),
		sessionsCancelled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficd_bridge_sessions_cancelled_total",
			Help: "Cumulative count of bridge sessions cancelled by preemption.",
		}),
		tickCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficd_ticks_total",
			Help: "Cumulative number of control loop ticks executed.",
		}),
		publications: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficd_publications_total",
			Help: "Cumulative number of snapshots published to the stoplichten topic.",
		}),
	}

	registry.MustRegister(
		m.greenCount, m.schedulerState, m.bridgeSessionState, m.bridgeSessionActive,
		m.jamEngaged, m.preemptionActive, m.sessionsCompleted, m.sessionsCancelled,
		m.tickCount, m.publications,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", m.serveStatus)
	m.server = &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	return m
}

// Run starts the refresh loop and the HTTP endpoint. It blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.logger.Info("metrics disabled", "component", "metrics")
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	m.refresh()

	ticker := time.NewTicker(m.cfg.CollectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.server.Shutdown(shutdownCtx); err != nil {
				m.logger.Warn("metrics server shutdown failed", "component", "metrics", "error", err)
			}
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("metrics: serve: %w", err)
			}
		case <-ticker.C:
			m.refresh()
		}
	}
}

// refresh reads the Source and updates every gauge, recovering from panics
// in the same spirit as the teacher's safeCollect.
func (m *Manager) refresh() {
	defer func() {
		if v := recover(); v != nil {
			m.logger.Warn("metrics refresh panicked",
				"component", "metrics",
				"error", fmt.Sprintf("%v", v),
				"stack", string(debug.Stack()),
			)
		}
	}()

	snap := m.source.MetricsSnapshot()

	m.greenCount.Set(float64(snap.GreenCount))
	for _, s := range []string{"idle", "green", "transition"} {
		v := 0.0
		if s == snap.SchedulerState {
			v = 1.0
		}
		m.schedulerState.WithLabelValues(s).Set(v)
	}
	for _, s := range []string{"arming", "deck_clear", "opening", "pass_a", "pass_b", "draining", "closing", "restore"} {
		v := 0.0
		if s == snap.BridgeSessionState {
			v = 1.0
		}
		m.bridgeSessionState.WithLabelValues(s).Set(v)
	}
	m.bridgeSessionActive.Set(boolToFloat(snap.BridgeSessionActive))
	m.jamEngaged.Set(boolToFloat(snap.JamEngaged))
	m.preemptionActive.Set(boolToFloat(snap.PreemptionActive))
	m.sessionsCompleted.Set(float64(snap.SessionsCompleted))
	m.sessionsCancelled.Set(float64(snap.SessionsCancelled))
	m.tickCount.Set(float64(snap.TickCount))
	m.publications.Set(float64(snap.Publications))
}

// serveStatus answers `trafficd status` with a fresh JSON Snapshot, read
// directly from the Source rather than the periodically-refreshed gauges,
// so a status query always reflects the current tick.
func (m *Manager) serveStatus(w http.ResponseWriter, r *http.Request) {
	snap := m.source.MetricsSnapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		m.logger.Error("status encode failed", "component", "metrics", "error", err)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
