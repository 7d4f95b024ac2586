// Package session wires the realtime connection, the fallback polling
// scheduler, the notification store and the presence tracker together
// for one logged-in session. It is the only place the push/poll
// duplication hazard is resolved: poll snapshots are authoritative for
// set membership and read state, push events for low-latency arrival.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oopscheckmate/realtime/internal/auth"
	"github.com/oopscheckmate/realtime/internal/config"
	"github.com/oopscheckmate/realtime/internal/notify"
	"github.com/oopscheckmate/realtime/internal/poll"
	"github.com/oopscheckmate/realtime/internal/presence"
	"github.com/oopscheckmate/realtime/internal/socket"
	"github.com/oopscheckmate/realtime/internal/typing"
	"github.com/oopscheckmate/realtime/pkg/models"
)

// Conn is the slice of the realtime client the session drives.
type Conn interface {
	Connect(ctx context.Context)
	Disconnect()
	Connected() bool
	On(event models.EventType, handler socket.Handler) socket.Subscription
	JoinChatRoom(roomID string)
	LeaveChatRoom(roomID string)
	SendTyping(roomID, userID string, isTyping bool)
}

// Poller is the slice of the polling scheduler the session drives.
type Poller interface {
	Start(key string, interval time.Duration, fn poll.TickFunc)
	Stop(key string)
	StopAll()
	Active() []string
}

// API is the REST collaborator surface the session polls and writes
// through.
type API interface {
	ResolveRoom(ctx context.Context, peerID string) (string, error)
	Messages(ctx context.Context, roomID string) ([]models.Message, error)
	SendMessage(ctx context.Context, roomID, content string, typ models.MessageType) (*models.Message, error)
	MarkMessageRead(ctx context.Context, messageID string) error
	OnlineStatus(ctx context.Context, userIDs []string) (models.StatusSnapshot, error)
	Notifications(ctx context.Context) ([]models.Notification, error)
	Rooms(ctx context.Context) ([]models.Room, error)
}

// Deps carries the session's collaborators.
type Deps struct {
	Conn      Conn
	Scheduler Poller
	API       API
	Store     *notify.Store
	Presence  *presence.Tracker
	Tokens    auth.TokenSource
}

// Snapshot is the aggregated state a UI consumer reads.
type Snapshot struct {
	IsConnected   bool
	OnlineUsers   []string
	UnreadCount   int
	Notifications []models.Notification
}

// Session composes the realtime components for one logged-in user.
type Session struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger

	mu        sync.Mutex
	started   bool
	notifier  *typing.Notifier
	userID    string
	connected bool
	subs      []socket.Subscription
	openRooms map[string]string // roomID -> peer user id
	messages  map[string][]models.Message
	typing    map[string]map[string]bool // roomID -> typing user ids
	rooms     []models.Room
	liveStop  chan struct{}
	liveDone  chan struct{}
}

const (
	keyNotifications = "notifications"
	keyRooms         = "rooms"
)

func messagesKey(roomID string) string { return "messages_" + roomID }

func presenceKey(userIDs []string) string {
	return "online_status_" + strings.Join(userIDs, "_")
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		openRooms: make(map[string]string),
		messages:  make(map[string][]models.Message),
		typing:    make(map[string]map[string]bool),
	}
	s.notifier = typing.NewNotifier(typing.DefaultIdle, s.sendTypingSignal)
	return s
}

func (s *Session) sendTypingSignal(roomID string, isTyping bool) {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	s.deps.Conn.SendTyping(roomID, userID, isTyping)
}

// Start connects the realtime client, registers the push listeners and
// begins baseline polling. It fails when no session token is available;
// everything else degrades rather than errors.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}

	token, err := s.deps.Tokens.Token()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: %w", err)
	}
	if uid, err := auth.UserID(token); err == nil {
		s.userID = uid
	} else {
		s.logger.Warn("session token carries no user id", "error", err)
	}

	s.started = true
	s.notifier = typing.NewNotifier(typing.DefaultIdle, s.sendTypingSignal)
	s.liveStop = make(chan struct{})
	s.liveDone = make(chan struct{})
	s.mu.Unlock()

	s.deps.Conn.Connect(ctx)

	// Level-triggered connection flag. The UI reads current truth on a
	// fixed cadence instead of trusting transition events it might miss.
	go s.livenessLoop(s.liveStop, s.liveDone)

	s.subscribe()

	s.deps.Scheduler.Start(keyNotifications, s.cfg.Polling.Notifications, func(ctx context.Context) error {
		items, err := s.deps.API.Notifications(ctx)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		s.deps.Store.ReplaceAll(items)
		return nil
	})

	s.deps.Scheduler.Start(keyRooms, s.cfg.Polling.Rooms, func(ctx context.Context) error {
		rooms, err := s.deps.API.Rooms(ctx)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		s.mu.Lock()
		s.rooms = rooms
		s.mu.Unlock()
		return nil
	})

	s.logger.Info("session started", "user_id", s.userID)
	return nil
}

func (s *Session) subscribe() {
	subs := []socket.Subscription{
		s.deps.Conn.On(models.EventNewNotification, s.onNotification),
		s.deps.Conn.On(models.EventNewMessage, s.onMessage),
		s.deps.Conn.On(models.EventUserTyping, s.onTyping),
		s.deps.Conn.On(models.EventMessageRead, s.onRead),
		s.deps.Conn.On(models.EventUserOnline, s.onPresence),
		s.deps.Conn.On(models.EventUserOffline, s.onPresence),
	}
	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()
}

func (s *Session) livenessLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Polling.Liveness)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			connected := s.deps.Conn.Connected()
			s.mu.Lock()
			s.connected = connected
			s.mu.Unlock()
		}
	}
}

func (s *Session) onNotification(ev models.Event) {
	ne, ok := ev.(models.NotificationEvent)
	if !ok {
		return
	}
	s.deps.Store.Add(context.Background(), ne.Kind, ne.Title, ne.Message, ne.Data)
}

// onMessage turns a pushed chat message into a notification when its
// room is not open, and appends it to the room's message view when it
// is. The next messages poll replaces the view wholesale, so a message
// seen on both paths settles within one poll interval.
func (s *Session) onMessage(ev models.Event) {
	me, ok := ev.(models.MessageEvent)
	if !ok {
		return
	}
	msg := me.Message

	s.mu.Lock()
	userID := s.userID
	_, open := s.openRooms[msg.RoomID]
	if open {
		s.messages[msg.RoomID] = append(s.messages[msg.RoomID], msg)
	}
	s.mu.Unlock()

	if open || msg.SenderID == userID {
		return
	}
	data, err := json.Marshal(models.OpenChatData{RoomID: msg.RoomID, SenderID: msg.SenderID})
	if err != nil {
		data = nil
	}
	title := msg.SenderName
	if title == "" {
		title = "New message"
	}
	s.deps.Store.Add(context.Background(), models.NotificationNewMessage, title, msg.Content, data)
}

func (s *Session) onTyping(ev models.Event) {
	te, ok := ev.(models.TypingEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if te.UserID == s.userID {
		return
	}
	peers := s.typing[te.RoomID]
	if peers == nil {
		peers = make(map[string]bool)
		s.typing[te.RoomID] = peers
	}
	if te.IsTyping {
		peers[te.UserID] = true
	} else {
		delete(peers, te.UserID)
	}
}

func (s *Session) onRead(ev models.Event) {
	re, ok := ev.(models.ReadEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[re.RoomID]
	for i := range msgs {
		if msgs[i].SenderID == s.userID {
			msgs[i].Read = true
		}
	}
}

func (s *Session) onPresence(ev models.Event) {
	pe, ok := ev.(models.PresenceEvent)
	if !ok {
		return
	}
	if pe.Online {
		s.deps.Presence.SetOnline(pe.UserID)
	} else {
		s.deps.Presence.SetOffline(pe.UserID)
	}
}

// State returns the aggregated session state for UI consumers.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	return Snapshot{
		IsConnected:   connected,
		OnlineUsers:   s.deps.Presence.OnlineUsers(),
		UnreadCount:   s.deps.Store.UnreadCount(),
		Notifications: s.deps.Store.List(),
	}
}

// OpenChat resolves the direct-message room with peerID, joins it on
// the realtime connection and starts the room's message polling.
func (s *Session) OpenChat(ctx context.Context, peerID string) (string, error) {
	roomID, err := s.deps.API.ResolveRoom(ctx, peerID)
	if err != nil {
		return "", fmt.Errorf("session: open chat with %s: %w", peerID, err)
	}

	s.mu.Lock()
	s.openRooms[roomID] = peerID
	s.mu.Unlock()

	s.deps.Conn.JoinChatRoom(roomID)

	s.deps.Scheduler.Start(messagesKey(roomID), s.cfg.Polling.Messages, func(ctx context.Context) error {
		msgs, err := s.deps.API.Messages(ctx, roomID)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		s.mu.Lock()
		if _, open := s.openRooms[roomID]; open {
			s.messages[roomID] = msgs
		}
		s.mu.Unlock()
		return nil
	})

	return roomID, nil
}

// CloseChat leaves the room and stops its message polling.
func (s *Session) CloseChat(roomID string) {
	s.mu.Lock()
	delete(s.openRooms, roomID)
	delete(s.messages, roomID)
	delete(s.typing, roomID)
	notifier := s.notifier
	s.mu.Unlock()

	notifier.Stop(roomID)
	s.deps.Conn.LeaveChatRoom(roomID)
	s.deps.Scheduler.Stop(messagesKey(roomID))
}

// Messages returns the current message view of an open room.
func (s *Session) Messages(roomID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages[roomID]))
	copy(out, s.messages[roomID])
	return out
}

// TypingPeers returns the ids of users currently typing in a room.
func (s *Session) TypingPeers(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.typing[roomID]))
	for id := range s.typing[roomID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rooms returns the latest polled room list.
func (s *Session) Rooms() []models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Room, len(s.rooms))
	copy(out, s.rooms)
	return out
}

// SendMessage writes a message through the REST collaborator and
// appends the server's echo to the local view.
func (s *Session) SendMessage(ctx context.Context, roomID, content string, typ models.MessageType) (*models.Message, error) {
	msg, err := s.deps.API.SendMessage(ctx, roomID, content, typ)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()
	notifier.Stop(roomID)

	s.mu.Lock()
	if _, open := s.openRooms[roomID]; open {
		s.messages[roomID] = append(s.messages[roomID], *msg)
	}
	s.mu.Unlock()
	return msg, nil
}

// MarkMessageRead acknowledges a message through the REST collaborator.
func (s *Session) MarkMessageRead(ctx context.Context, messageID string) error {
	return s.deps.API.MarkMessageRead(ctx, messageID)
}

// Typing records a keystroke in a room. The first keystroke of a burst
// signals typing=true; the signal clears automatically on idle, or
// immediately on SendMessage/CloseChat.
func (s *Session) Typing(roomID string) {
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()
	notifier.Keystroke(roomID)
}

// SendTyping signals the session user's typing state for a room
// directly, bypassing the debounced keystroke path.
func (s *Session) SendTyping(roomID string, isTyping bool) {
	s.sendTypingSignal(roomID, isTyping)
}

// WatchPresence starts last-seen polling for a fixed id set and returns
// the polling key, which UnwatchPresence stops.
func (s *Session) WatchPresence(userIDs []string) string {
	ids := make([]string, len(userIDs))
	copy(ids, userIDs)
	sort.Strings(ids)
	key := presenceKey(ids)

	s.deps.Scheduler.Start(key, s.cfg.Polling.OnlineStatus, func(ctx context.Context) error {
		snapshot, err := s.deps.API.OnlineStatus(ctx, ids)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		s.deps.Presence.ApplySnapshot(snapshot)
		return nil
	})
	return key
}

// UnwatchPresence stops a polling key returned by WatchPresence.
func (s *Session) UnwatchPresence(key string) {
	s.deps.Scheduler.Stop(key)
}

// Close tears the session down: liveness check first, then every
// registered listener, then every polling key, then the connection.
// Anything left running after Close is a leak.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	liveStop, liveDone := s.liveStop, s.liveDone
	notifier := s.notifier
	subs := s.subs
	s.subs = nil
	s.openRooms = make(map[string]string)
	s.messages = make(map[string][]models.Message)
	s.typing = make(map[string]map[string]bool)
	s.connected = false
	s.mu.Unlock()

	close(liveStop)
	<-liveDone

	notifier.StopAll()

	for _, sub := range subs {
		sub.Cancel()
	}

	s.deps.Scheduler.StopAll()
	s.deps.Conn.Disconnect()
	s.deps.Presence.Reset()

	s.logger.Info("session closed")
}
