package connection

import (
	"time"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"go.uber.org/zap"
)

const (
	DefaultInterval      = 10 * time.Second
	DefaultMaxBackoff    = 2 * time.Minute
	DefaultJitterPercent = 20
	DefaultProbeTimeout  = 5 * time.Second
)

type Option func(m *Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.l = l
		}
	}
}

// WithSink adds event sinks next to the built-in zap sink.
func WithSink(sinks ...Sink) Option {
	return func(m *Manager) {
		for _, s := range sinks {
			if s != nil {
				m.sinks = append(m.sinks, s)
			}
		}
	}
}

// WithInterval sets the wait between probes while healthy and the base of
// the reconnect backoff.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithMaxBackoff(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxBackoff = d
		}
	}
}

func WithJitterPercent(p uint64) Option {
	return func(m *Manager) {
		if p <= 100 {
			m.jitterPercent = p
		}
	}
}

func WithProbeTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithFixedInterval disables the reconnect backoff, every tick waits the
// configured interval.
func WithFixedInterval() Option {
	return func(m *Manager) {
		m.fixedInterval = true
	}
}

// WithDialer enables rebuilds for managers registered with a pre-built engine.
func WithDialer(dial entityrepo.Dialer) Option {
	return func(m *Manager) {
		m.dial = dial
	}
}
