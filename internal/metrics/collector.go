package metrics

import "time"

// SessionSummary is one bridge session history entry, for status
// introspection (`/status`, `trafficd status`). Kept decoupled from
// internal/bridgectl.SessionRecord, same as the rest of Snapshot's fields,
// so this package never imports the subsystems it reports on.
type SessionSummary struct {
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   string
	ServedA   bool
	ServedB   bool
}

// Snapshot is a point-in-time read of controller state, supplied by
// whatever owns the tick loop (internal/control.Controller implements Source).
type Snapshot struct {
	// GreenCount is the number of directions currently non-red.
	GreenCount int
	// SchedulerState is one of "idle", "green", "transition".
	SchedulerState string
	// BridgeSessionState is the bridge session controller's current state name
	// ("idle" when no session is running).
	BridgeSessionState string
	// BridgeSessionActive reports whether a bridge session is currently running.
	BridgeSessionActive bool
	// JamEngaged reports the current hysteretic jam flag.
	JamEngaged bool
	// PreemptionActive reports whether a priority-1 override is in effect.
	PreemptionActive bool
	// SessionsCompleted is the cumulative count of bridge sessions that reached RESTORE.
	SessionsCompleted int
	// SessionsCancelled is the cumulative count of bridge sessions cancelled by preemption.
	SessionsCancelled int
	// TickCount is the cumulative number of control loop ticks executed.
	TickCount int
	// Publications is the cumulative number of snapshots published.
	Publications int
	// Sessions is the recent bridge session history, oldest first, bounded
	// by internal/bridgectl's ring buffer (SPEC_FULL.md "operational
	// visibility" supplement).
	Sessions []SessionSummary
}

// Source supplies the latest Snapshot. Implemented by internal/control.Controller.
type Source interface {
	MetricsSnapshot() Snapshot
}
