package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

type State int32

const (
	StateConnecting State = iota
	StateHealthy
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHealthy:
		return "healthy"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EngineSource hands out the engine currently in use.
type EngineSource interface {
	Engine() entityrepo.Engine
}

type staticSource struct {
	engine entityrepo.Engine
}

// Static wraps an engine without monitoring it, for one-shot callers.
func Static(engine entityrepo.Engine) EngineSource {
	return staticSource{engine: engine}
}

func (s staticSource) Engine() entityrepo.Engine {
	return s.engine
}

type engineHolder struct {
	engine entityrepo.Engine
}

// Manager owns the engine handle and the monitor that keeps it alive.
type Manager struct {
	l     *zap.Logger
	dial  entityrepo.Dialer
	sinks []Sink

	engine  atomic.Pointer[engineHolder]
	state   atomic.Int32
	attempt atomic.Int32

	interval      time.Duration
	maxBackoff    time.Duration
	jitterPercent uint64
	probeTimeout  time.Duration
	fixedInterval bool

	// monitor state, guarded by tickMu
	tickMu    sync.Mutex
	connected bool
	backoff   retry.Backoff

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ EngineSource = (*Manager)(nil)

// Register dials the engine once and starts the monitor. The monitor runs
// until ctx is done or Close is called.
func Register(ctx context.Context, dial entityrepo.Dialer, opts ...Option) (*Manager, error) {
	if ctx == nil {
		return nil, entityrepo.ErrNilContext
	}
	if dial == nil {
		return nil, entityrepo.ErrNilEngine
	}

	engine, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, entityrepo.ErrNilEngine
	}

	m := newManager(engine, opts...)
	m.dial = dial
	m.start(ctx)
	return m, nil
}

// RegisterEngine wraps a pre-built engine and starts the monitor. Rebuilds
// need WithDialer, otherwise they fail with ErrNoDialer.
func RegisterEngine(ctx context.Context, engine entityrepo.Engine, opts ...Option) (*Manager, error) {
	if ctx == nil {
		return nil, entityrepo.ErrNilContext
	}
	if engine == nil {
		return nil, entityrepo.ErrNilEngine
	}

	m := newManager(engine, opts...)
	m.start(ctx)
	return m, nil
}

func newManager(engine entityrepo.Engine, opts ...Option) *Manager {
	m := &Manager{
		l:             zap.NewNop(),
		interval:      DefaultInterval,
		maxBackoff:    DefaultMaxBackoff,
		jitterPercent: DefaultJitterPercent,
		probeTimeout:  DefaultProbeTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.sinks = append([]Sink{ZapSink(m.l)}, m.sinks...)
	m.l = m.l.With(zap.String("engine", engine.Name()))
	m.engine.Store(&engineHolder{engine: engine})
	m.state.Store(int32(StateConnecting))
	return m
}

func (m *Manager) start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		m.Run(ctx)
	}()
}

// Engine returns the current engine. Calls racing a reconnect may still get
// the previous one.
func (m *Manager) Engine() entityrepo.Engine {
	return m.engine.Load().engine
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) Healthy() bool {
	return m.State() == StateHealthy
}

// Close stops the monitor and waits for it to exit.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
	})
	if m.done != nil {
		<-m.done
	}
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

func (m *Manager) emit(kind EventKind, duration time.Duration, err error) {
	e := Event{
		Kind:     kind,
		State:    m.State(),
		Engine:   m.Engine().Name(),
		Time:     time.Now().UTC(),
		Attempt:  int(m.attempt.Load()),
		Duration: duration,
		Err:      err,
	}
	for _, s := range m.sinks {
		m.observe(s, e)
	}
}

func (m *Manager) observe(s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			m.l.Error("connection event sink panicked", zap.Any("panic", r), zap.String("kind", string(e.Kind)))
		}
	}()
	s.Observe(e)
}
