package connection

import (
	"context"
	"fmt"
	"time"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/sethvargo/go-retry"
)

// Run probes the engine until ctx is done. Register starts it, callers
// only need it when driving a manager by hand.
func (m *Manager) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.setState(StateStopped)
			m.emit(EventStopped, 0, nil)
			return
		case <-timer.C:
		}

		state := m.Tick(ctx)
		timer.Reset(m.nextWait(state))
	}
}

// Tick runs a single probe and, on failure, a single rebuild. It never
// returns an error, failures are reported as events.
func (m *Manager) Tick(ctx context.Context) State {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	started := time.Now()
	err := m.probe(ctx, m.Engine())
	elapsed := time.Since(started)

	if err == nil {
		previous := m.State()
		m.markHealthy()
		m.emit(EventProbeOK, elapsed, nil)
		switch {
		case !m.connected:
			m.emit(EventConnected, 0, nil)
		case previous == StateReconnecting:
			m.emit(EventRecovered, 0, nil)
		}
		m.connected = true
		return StateHealthy
	}

	// shutting down, not an outage
	if ctx.Err() != nil {
		return m.State()
	}

	m.attempt.Add(1)
	m.setState(StateReconnecting)
	m.emit(EventProbeFailed, elapsed, err)
	m.emit(EventReconnecting, 0, nil)

	if err := m.rebuild(ctx); err != nil {
		m.emit(EventReconnectFailed, 0, err)
		return m.State()
	}

	m.markHealthy()
	m.connected = true
	m.emit(EventReconnected, 0, nil)
	return StateHealthy
}

func (m *Manager) markHealthy() {
	m.attempt.Store(0)
	m.backoff = nil
	m.setState(StateHealthy)
}

func (m *Manager) probe(ctx context.Context, engine entityrepo.Engine) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()
	return engine.Ping(ctx)
}

// rebuild dials a new engine and swaps it in before probing it, so a
// half-recovered engine is still picked up by the next tick.
func (m *Manager) rebuild(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rebuild panicked: %v", r)
		}
	}()

	if m.dial == nil {
		return entityrepo.ErrNoDialer
	}
	engine, err := m.dial(ctx)
	if err != nil {
		return err
	}
	if engine == nil {
		return entityrepo.ErrNilEngine
	}
	m.engine.Store(&engineHolder{engine: engine})

	return m.probe(ctx, engine)
}

func (m *Manager) nextWait(state State) time.Duration {
	if state == StateHealthy || m.fixedInterval {
		return m.interval
	}

	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	if m.backoff == nil {
		m.backoff = m.newBackoff()
	}
	next, stop := m.backoff.Next()
	if stop || next <= 0 {
		return m.maxBackoff
	}
	return next
}

func (m *Manager) newBackoff() retry.Backoff {
	b := retry.NewExponential(m.interval)
	if m.jitterPercent > 0 {
		b = retry.WithJitterPercent(m.jitterPercent, b)
	}
	return retry.WithCappedDuration(m.maxBackoff, b)
}
