package connection

import (
	"time"

	"go.uber.org/zap"
)

type EventKind string

const (
	EventConnected       EventKind = "connected"
	EventProbeOK         EventKind = "probe_ok"
	EventProbeFailed     EventKind = "probe_failed"
	EventReconnecting    EventKind = "reconnecting"
	EventReconnected     EventKind = "reconnected"
	EventReconnectFailed EventKind = "reconnect_failed"
	EventRecovered       EventKind = "recovered"
	EventStopped         EventKind = "stopped"
)

// Event describes a single connection state transition or probe outcome.
type Event struct {
	Kind   EventKind
	State  State
	Engine string
	// Time is always UTC
	Time time.Time
	// Attempt counts consecutive failed ticks, 0 while healthy
	Attempt  int
	Duration time.Duration
	Err      error
}

// Sink receives connection events. Observe is called from the monitor
// goroutine and must not block.
type Sink interface {
	Observe(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Observe(e Event) {
	f(e)
}

type zapSink struct {
	l *zap.Logger
}

// ZapSink logs events with a level matching their severity.
func ZapSink(l *zap.Logger) Sink {
	return zapSink{l: l}
}

func (s zapSink) Observe(e Event) {
	fields := []zap.Field{
		zap.String("engine", e.Engine),
		zap.String("state", e.State.String()),
		zap.Time("time", e.Time),
	}
	if e.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", e.Attempt))
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("duration", e.Duration))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}

	switch e.Kind {
	case EventProbeOK:
		s.l.Debug("connection probe succeeded", fields...)
	case EventConnected:
		s.l.Info("connection successful", fields...)
	case EventProbeFailed:
		s.l.Error("connection failed", fields...)
	case EventReconnecting:
		s.l.Warn("re-establishing the connection", fields...)
	case EventReconnected:
		s.l.Info("connection was successfully re-established", fields...)
	case EventReconnectFailed:
		s.l.Error("reconnection failure", fields...)
	case EventRecovered:
		s.l.Info("connection recovered", fields...)
	case EventStopped:
		s.l.Info("connection monitor stopped", fields...)
	default:
		s.l.Info("connection event", append(fields, zap.String("kind", string(e.Kind)))...)
	}
}
