package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// blockingService runs until stopped and records its stop in a shared log.
type blockingService struct {
	name    string
	started atomic.Bool
	stop    chan struct{}
	once    sync.Once
	log     *stopLog
}

type stopLog struct {
	mu    sync.Mutex
	order []string
}

func (l *stopLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, name)
}

func newBlockingService(name string, log *stopLog) *blockingService {
	return &blockingService{name: name, stop: make(chan struct{}), log: log}
}

func (b *blockingService) Start() error {
	b.started.Store(true)
	<-b.stop
	return nil
}

func (b *blockingService) Stop() {
	b.once.Do(func() {
		b.log.add(b.name)
		close(b.stop)
	})
}

func TestLifecycle_StopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	log := &stopLog{}
	loop := newBlockingService("loop", log)
	acceptor := newBlockingService("acceptor", log)
	lc.Add("loop", loop)
	lc.Add("acceptor", acceptor)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return loop.started.Load() && acceptor.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.Equal(t, []string{"acceptor", "loop"}, log.order)
}

func TestLifecycle_ServiceFailureStopsEverything(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	log := &stopLog{}
	loop := newBlockingService("loop", log)
	boom := errors.New("address already in use")
	lc.Add("loop", loop)
	lc.Add("metrics", &FuncService{
		StartFn: func() error { return boom },
		StopFn:  func() { log.add("metrics") },
	})

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "service metrics")
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not stop after a service failure")
	}
	assert.Equal(t, []string{"metrics", "loop"}, log.order)
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}

	err := svc.Start()
	assert.NoError(t, err)
	assert.True(t, started)

	svc.Stop()
	assert.True(t, stopped)
}
