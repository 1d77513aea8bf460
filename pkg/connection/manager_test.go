package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeEngine struct {
	entityrepo.Engine
	name string
	ping func(ctx context.Context) error
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Ping(ctx context.Context) error {
	if f.ping == nil {
		return nil
	}
	return f.ping(ctx)
}

var errDown = errors.New("connection refused")

func failing(name string) *fakeEngine {
	return &fakeEngine{name: name, ping: func(context.Context) error { return errDown }}
}

func healthy(name string) *fakeEngine {
	return &fakeEngine{name: name}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestRegister_ArgumentErrors(t *testing.T) {
	var nilCtx context.Context

	_, err := Register(nilCtx, func(context.Context) (entityrepo.Engine, error) { return healthy("x"), nil })
	assert.ErrorIs(t, err, entityrepo.ErrNilContext)

	_, err = Register(context.Background(), nil)
	assert.ErrorIs(t, err, entityrepo.ErrNilEngine)

	_, err = RegisterEngine(nilCtx, healthy("x"))
	assert.ErrorIs(t, err, entityrepo.ErrNilContext)

	_, err = RegisterEngine(context.Background(), nil)
	assert.ErrorIs(t, err, entityrepo.ErrNilEngine)

	_, err = Register(context.Background(), func(context.Context) (entityrepo.Engine, error) { return nil, errDown })
	assert.ErrorIs(t, err, errDown)
}

func TestTick_FailOnceRebuildsOnce(t *testing.T) {
	var dials atomic.Int32
	replacement := healthy("replacement")
	rec := &recorder{}

	m := newManager(failing("original"), WithLogger(zaptest.NewLogger(t)), WithSink(rec))
	m.dial = func(context.Context) (entityrepo.Engine, error) {
		dials.Add(1)
		return replacement, nil
	}

	assert.Equal(t, StateHealthy, m.Tick(context.Background()))
	assert.Equal(t, StateHealthy, m.Tick(context.Background()))
	assert.Equal(t, StateHealthy, m.Tick(context.Background()))

	assert.Equal(t, int32(1), dials.Load())
	assert.Same(t, replacement, m.Engine())
	assert.Equal(t, []EventKind{
		EventProbeFailed, EventReconnecting, EventReconnected,
		EventProbeOK, EventProbeOK,
	}, rec.kinds())
}

func TestTick_AlwaysFailRebuildsEveryTick(t *testing.T) {
	var dials atomic.Int32
	rec := &recorder{}

	m := newManager(failing("original"), WithLogger(zaptest.NewLogger(t)), WithSink(rec))
	m.dial = func(context.Context) (entityrepo.Engine, error) {
		dials.Add(1)
		return failing("rebuilt"), nil
	}

	for range 3 {
		assert.Equal(t, StateReconnecting, m.Tick(context.Background()))
	}
	assert.Equal(t, int32(3), dials.Load())
	assert.Equal(t, "rebuilt", m.Engine().Name())
	assert.Equal(t, int32(3), m.attempt.Load())
	assert.False(t, m.Healthy())
}

func TestTick_RecoversDialerPanic(t *testing.T) {
	rec := &recorder{}
	m := newManager(failing("original"), WithLogger(zaptest.NewLogger(t)), WithSink(rec))
	m.dial = func(context.Context) (entityrepo.Engine, error) {
		panic("boom")
	}

	require.NotPanics(t, func() {
		assert.Equal(t, StateReconnecting, m.Tick(context.Background()))
	})
	require.Len(t, rec.events, 3)
	assert.Equal(t, EventReconnectFailed, rec.events[2].Kind)
	assert.ErrorContains(t, rec.events[2].Err, "boom")
}

func TestTick_WithoutDialer(t *testing.T) {
	rec := &recorder{}
	m := newManager(failing("original"), WithSink(rec))

	assert.Equal(t, StateReconnecting, m.Tick(context.Background()))
	require.Len(t, rec.events, 3)
	assert.ErrorIs(t, rec.events[2].Err, entityrepo.ErrNoDialer)
	assert.Equal(t, "original", m.Engine().Name())
}

func TestTick_ConnectedThenRecovered(t *testing.T) {
	var down atomic.Bool
	engine := &fakeEngine{name: "flaky", ping: func(context.Context) error {
		if down.Load() {
			return errDown
		}
		return nil
	}}
	rec := &recorder{}
	m := newManager(engine, WithSink(rec))
	m.dial = func(context.Context) (entityrepo.Engine, error) { return nil, errDown }

	m.Tick(context.Background())
	down.Store(true)
	m.Tick(context.Background())
	down.Store(false)
	m.Tick(context.Background())

	assert.Equal(t, []EventKind{
		EventProbeOK, EventConnected,
		EventProbeFailed, EventReconnecting, EventReconnectFailed,
		EventProbeOK, EventRecovered,
	}, rec.kinds())
}

func TestTick_SinkPanicDoesNotStopMonitor(t *testing.T) {
	m := newManager(healthy("x"), WithSink(SinkFunc(func(Event) { panic("sink") })))
	require.NotPanics(t, func() {
		assert.Equal(t, StateHealthy, m.Tick(context.Background()))
	})
}

func TestNextWait(t *testing.T) {
	m := newManager(failing("x"),
		WithInterval(time.Second),
		WithMaxBackoff(3*time.Second),
		WithJitterPercent(0),
	)

	assert.Equal(t, time.Second, m.nextWait(StateReconnecting))
	assert.Equal(t, 2*time.Second, m.nextWait(StateReconnecting))
	assert.Equal(t, 3*time.Second, m.nextWait(StateReconnecting))
	assert.Equal(t, 3*time.Second, m.nextWait(StateReconnecting))
	assert.Equal(t, time.Second, m.nextWait(StateHealthy))

	fixed := newManager(failing("x"), WithInterval(time.Second), WithFixedInterval())
	for range 3 {
		assert.Equal(t, time.Second, fixed.nextWait(StateReconnecting))
	}
}

func TestRegisterEngine_RunAndClose(t *testing.T) {
	rec := &recorder{}
	m, err := RegisterEngine(context.Background(), healthy("x"),
		WithLogger(zaptest.NewLogger(t)),
		WithInterval(10*time.Millisecond),
		WithSink(rec),
	)
	require.NoError(t, err)

	require.Eventually(t, m.Healthy, time.Second, 5*time.Millisecond)

	m.Close()
	m.Close()
	assert.Equal(t, StateStopped, m.State())
	kinds := rec.kinds()
	assert.Equal(t, EventStopped, kinds[len(kinds)-1])
}

func TestRegister_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, err := Register(ctx, func(context.Context) (entityrepo.Engine, error) { return healthy("x"), nil },
		WithInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool { return m.State() == StateStopped }, time.Second, 5*time.Millisecond)
	m.Close()
}

func TestStatic(t *testing.T) {
	engine := healthy("x")
	assert.Same(t, engine, Static(engine).Engine())
}

func TestTick_ConcurrentWithRun(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	engine := &fakeEngine{name: "flaky", ping: func(context.Context) error {
		if down.Load() {
			return errDown
		}
		return nil
	}}
	rec := &recorder{}
	m, err := RegisterEngine(context.Background(), engine,
		WithInterval(time.Millisecond),
		WithMaxBackoff(2*time.Millisecond),
		WithDialer(func(context.Context) (entityrepo.Engine, error) { return engine, nil }),
		WithSink(rec),
	)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				m.Tick(context.Background())
			}
		}()
	}
	wg.Wait()
	m.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventStopped, last.Kind)
	assert.Positive(t, last.Attempt)
}
