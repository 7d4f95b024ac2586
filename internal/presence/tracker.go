// Package presence tracks which peer users are currently online.
//
// Push events are the authority for the online set: user_online adds,
// user_offline removes, immediately. Poll snapshots only fill in
// last-seen timestamps for users that are not in the push set; a stale
// snapshot must never knock a user out of the online set.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oopscheckmate/realtime/internal/metrics"
	"github.com/oopscheckmate/realtime/pkg/models"
)

// ChangeHandler runs after every mutation of the online set or the
// last-seen map. Handlers run synchronously under no lock.
type ChangeHandler func()

// Tracker holds the in-memory online set and last-seen map for one
// session. Safe for concurrent use.
type Tracker struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	online   map[string]struct{}
	lastSeen map[string]time.Time
	handlers []ChangeHandler
}

func NewTracker(logger *slog.Logger, m *metrics.Metrics) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Tracker{
		logger:   logger,
		metrics:  m,
		online:   make(map[string]struct{}),
		lastSeen: make(map[string]time.Time),
	}
}

// SetOnline records a user_online push event.
func (t *Tracker) SetOnline(userID string) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	_, already := t.online[userID]
	t.online[userID] = struct{}{}
	delete(t.lastSeen, userID)
	t.updateGaugeLocked()
	t.mu.Unlock()

	if !already {
		t.logger.Debug("user online", "user_id", userID)
	}
	t.broadcast()
}

// SetOffline records a user_offline push event. The user drops out of
// the online set at once; last-seen starts now until a poll refines it.
func (t *Tracker) SetOffline(userID string) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	_, was := t.online[userID]
	delete(t.online, userID)
	if was {
		t.lastSeen[userID] = time.Now()
	}
	t.updateGaugeLocked()
	t.mu.Unlock()

	if was {
		t.logger.Debug("user offline", "user_id", userID)
	}
	t.broadcast()
}

// ApplySnapshot merges a polled status snapshot. Users currently in the
// push-online set are left untouched; for everyone else the snapshot's
// last-seen timestamp is recorded when present.
func (t *Tracker) ApplySnapshot(snapshot models.StatusSnapshot) {
	if len(snapshot) == 0 {
		return
	}
	t.mu.Lock()
	for userID, status := range snapshot {
		if _, pushed := t.online[userID]; pushed {
			continue
		}
		if status.LastSeen != nil {
			t.lastSeen[userID] = *status.LastSeen
		}
	}
	t.mu.Unlock()
	t.broadcast()
}

// IsOnline reports whether the push set currently contains userID.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// OnlineUsers returns the online set as a sorted slice.
func (t *Tracker) OnlineUsers() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// LastSeen returns the recorded last-seen time for an offline user.
// The second return is false for online users and unknown ids.
func (t *Tracker) LastSeen(userID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.online[userID]; ok {
		return time.Time{}, false
	}
	ts, ok := t.lastSeen[userID]
	return ts, ok
}

// Reset clears all state. Called on session teardown; the set is
// rebuilt from push + poll on the next session start.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.online = make(map[string]struct{})
	t.lastSeen = make(map[string]time.Time)
	t.updateGaugeLocked()
	t.mu.Unlock()
	t.broadcast()
}

// OnChange registers a handler and returns its deregistration func.
func (t *Tracker) OnChange(h ChangeHandler) func() {
	t.mu.Lock()
	t.handlers = append(t.handlers, h)
	idx := len(t.handlers) - 1
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			t.handlers[idx] = nil
			t.mu.Unlock()
		})
	}
}

func (t *Tracker) broadcast() {
	t.mu.RLock()
	snapshot := make([]ChangeHandler, len(t.handlers))
	copy(snapshot, t.handlers)
	t.mu.RUnlock()

	for _, h := range snapshot {
		if h != nil {
			h()
		}
	}
}

func (t *Tracker) updateGaugeLocked() {
	t.metrics.OnlineUsers.Set(float64(len(t.online)))
}
