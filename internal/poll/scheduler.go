// Package poll runs keyed interval pull loops as the fallback delivery
// channel. Each key is an independent loop: one hung or failing resource
// never affects another key's cadence.
package poll

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oopscheckmate/realtime/internal/metrics"
)

// TickFunc performs one pull. The context is canceled when the key is stopped;
// implementations must consult it after a fetch returns and before applying
// the result, so a response that lands after Stop is discarded instead of
// applied to torn-down state.
type TickFunc func(ctx context.Context) error

// Scheduler owns the mapping from key to live poll loop. At most one loop
// exists per key at any time.
type Scheduler struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	key    string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Scheduler{
		logger:  logger,
		metrics: m,
		tasks:   make(map[string]*task),
	}
}

// Start begins polling under the given key. If the key is already live the
// prior loop is stopped first, so re-opening the same logical resource never
// stacks timers. The first tick fires immediately, then every interval.
//
// Tick errors are logged and counted, never surfaced: the next tick is the
// retry.
func (s *Scheduler) Start(key string, interval time.Duration, fn TickFunc) {
	s.Stop(key)

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{key: key, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.tasks[key] = t
	s.mu.Unlock()
	s.metrics.ActivePolls.Inc()

	go s.run(ctx, t, interval, fn)
}

func (s *Scheduler) run(ctx context.Context, t *task, interval time.Duration, fn TickFunc) {
	defer close(t.done)

	s.tick(ctx, t.key, fn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, t.key, fn)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, key string, fn TickFunc) {
	if ctx.Err() != nil {
		return
	}
	s.metrics.PollTicks.WithLabelValues(key).Inc()
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		s.metrics.PollErrors.WithLabelValues(key).Inc()
		s.logger.Debug("poll tick failed, will retry next tick", "key", key, "error", err)
	}
}

// Stop cancels the loop for a key and removes its bookkeeping. No-op when the
// key is absent. An in-flight pull is not interrupted mid-request, but its
// result is discarded by the canceled context.
func (s *Scheduler) Stop(key string) {
	s.mu.Lock()
	t, ok := s.tasks[key]
	if ok {
		delete(s.tasks, key)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	t.cancel()
	<-t.done
	s.metrics.ActivePolls.Dec()
}

// StopAll cancels every live loop. Used on session teardown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
		<-t.done
		s.metrics.ActivePolls.Dec()
	}
}

// Active returns the sorted set of live keys.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.tasks))
	for key := range s.tasks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
