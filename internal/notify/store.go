// Package notify is the single source of truth for notification records and
// their read state.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oopscheckmate/realtime/internal/metrics"
	"github.com/oopscheckmate/realtime/pkg/models"
)

// Capacity bounds the store; the oldest records are evicted beyond it.
const Capacity = 50

// ChangeHandler observes store broadcasts. added is non-nil only for the
// single-record push path; poll replacements broadcast with a nil record.
type ChangeHandler func(added *models.Notification)

// OpenChatHandler receives the payload of a clicked new_message alert so the
// UI can route straight to the conversation.
type OpenChatHandler func(data models.OpenChatData)

// Store holds notifications newest-first, bounded to Capacity. The store is
// the sole writer of its records; consumers read and issue read/clear
// commands.
type Store struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	alerter Alerter
	focused FocusFunc
	now     func() time.Time

	mu            sync.Mutex
	items         []*models.Notification
	hasPermission bool

	handlerMu sync.Mutex
	handlers  []ChangeHandler
	openChat  []OpenChatHandler
}

// Option configures a Store.
type Option func(*Store)

// WithAlerter wires the host's OS-level alerting capability.
func WithAlerter(a Alerter) Option {
	return func(s *Store) { s.alerter = a }
}

// WithFocus wires the host's focus probe. Without one the app is treated as
// never focused, so granted alerts always fire.
func WithFocus(f FocusFunc) Option {
	return func(s *Store) { s.focused = f }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop()
	}
	s := &Store{
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers a broadcast observer. The returned func deregisters it.
func (s *Store) OnChange(h ChangeHandler) func() {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, h)
	idx := len(s.handlers) - 1

	var once sync.Once
	return func() {
		once.Do(func() {
			s.handlerMu.Lock()
			defer s.handlerMu.Unlock()
			s.handlers[idx] = nil
		})
	}
}

// OnOpenChat registers an observer for clicked new_message alerts.
func (s *Store) OnOpenChat(h OpenChatHandler) func() {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.openChat = append(s.openChat, h)
	idx := len(s.openChat) - 1

	var once sync.Once
	return func() {
		once.Do(func() {
			s.handlerMu.Lock()
			defer s.handlerMu.Unlock()
			s.openChat[idx] = nil
		})
	}
}

// Add ingests one notification from the push path. The store assigns the id
// (millisecond timestamp plus a random suffix), stamps it unread with the
// current time, prepends it and truncates to Capacity. If permission is
// granted and the app is unfocused an OS-level alert is emitted; the change
// broadcast fires regardless.
func (s *Store) Add(ctx context.Context, typ models.NotificationType, title, message string, data []byte) *models.Notification {
	if typ == "" {
		typ = models.NotificationGeneric
	}
	now := s.now()
	record := &models.Notification{
		ID:        fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		Type:      typ,
		Title:     title,
		Message:   message,
		Data:      data,
		Timestamp: now,
		Read:      false,
	}

	s.mu.Lock()
	s.items = append([]*models.Notification{record}, s.items...)
	if len(s.items) > Capacity {
		s.items = s.items[:Capacity]
	}
	emitAlert := s.hasPermission && s.alerter != nil && !s.isFocused()
	s.mu.Unlock()

	s.metrics.Notifications.WithLabelValues("push").Inc()
	s.updateUnreadGauge()

	if emitAlert {
		s.alerter.Show(ctx, record, func() { s.handleAlertClick(record) })
	}
	s.broadcast(record)
	return record
}

// ReplaceAll ingests a poll snapshot as the authoritative set: the visible
// list becomes exactly the snapshot (newest-first, bounded), including each
// record's read state. Replaying an identical snapshot is idempotent.
func (s *Store) ReplaceAll(snapshot []models.Notification) {
	items := make([]*models.Notification, 0, min(len(snapshot), Capacity))
	for i := range snapshot {
		if len(items) == Capacity {
			break
		}
		record := snapshot[i]
		items = append(items, &record)
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	s.metrics.Notifications.WithLabelValues("poll").Add(float64(len(items)))
	s.updateUnreadGauge()
	s.broadcast(nil)
}

// MarkRead flags a single record read. No-op for unknown ids.
func (s *Store) MarkRead(id string) {
	s.mu.Lock()
	for _, n := range s.items {
		if n.ID == id {
			n.Read = true
			break
		}
	}
	s.mu.Unlock()
	s.updateUnreadGauge()
}

// MarkAllRead flags every record read.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	for _, n := range s.items {
		n.Read = true
	}
	s.mu.Unlock()
	s.updateUnreadGauge()
}

// ClearAll removes every record.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
	s.updateUnreadGauge()
}

// ClearType removes every record of one type.
func (s *Store) ClearType(typ models.NotificationType) {
	s.mu.Lock()
	kept := s.items[:0]
	for _, n := range s.items {
		if n.Type != typ {
			kept = append(kept, n)
		}
	}
	s.items = kept
	s.mu.Unlock()
	s.updateUnreadGauge()
}

// List returns the notifications newest-first.
func (s *Store) List() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, len(s.items))
	for i, n := range s.items {
		out[i] = *n
	}
	return out
}

// ListByType returns the notifications of one type, newest-first.
func (s *Store) ListByType(typ models.NotificationType) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.items {
		if n.Type == typ {
			out = append(out, *n)
		}
	}
	return out
}

// UnreadCount returns the number of unread records.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadLocked()
}

func (s *Store) unreadLocked() int {
	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// RequestPermission asks the host for alert permission. Without an alerter
// the answer is always false and the store keeps working list-only.
func (s *Store) RequestPermission(ctx context.Context) bool {
	if s.alerter == nil {
		return false
	}
	granted := s.alerter.RequestPermission(ctx)
	s.mu.Lock()
	s.hasPermission = granted
	s.mu.Unlock()
	return granted
}

func (s *Store) isFocused() bool {
	if s.focused == nil {
		return false
	}
	return s.focused()
}

func (s *Store) handleAlertClick(record *models.Notification) {
	if record.Type != models.NotificationNewMessage {
		return
	}
	var data models.OpenChatData
	if len(record.Data) > 0 {
		if err := json.Unmarshal(record.Data, &data); err != nil {
			s.logger.Warn("alert click payload undecodable", "id", record.ID, "error", err)
			return
		}
	}

	s.handlerMu.Lock()
	snapshot := make([]OpenChatHandler, len(s.openChat))
	copy(snapshot, s.openChat)
	s.handlerMu.Unlock()

	for _, h := range snapshot {
		if h != nil {
			h(data)
		}
	}
}

func (s *Store) broadcast(added *models.Notification) {
	s.handlerMu.Lock()
	snapshot := make([]ChangeHandler, len(s.handlers))
	copy(snapshot, s.handlers)
	s.handlerMu.Unlock()

	for _, h := range snapshot {
		if h != nil {
			h(added)
		}
	}
}

func (s *Store) updateUnreadGauge() {
	s.mu.Lock()
	unread := s.unreadLocked()
	s.mu.Unlock()
	s.metrics.UnreadCount.Set(float64(unread))
}
