package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oopscheckmate/realtime/internal/auth"
	"github.com/oopscheckmate/realtime/internal/config"
	"github.com/oopscheckmate/realtime/internal/notify"
	"github.com/oopscheckmate/realtime/internal/poll"
	"github.com/oopscheckmate/realtime/internal/presence"
	"github.com/oopscheckmate/realtime/internal/socket"
	"github.com/oopscheckmate/realtime/pkg/models"
)

// fakeConn drives the real dispatcher so push events flow through the
// same registration/cancel machinery the production client uses.
type fakeConn struct {
	dispatcher *socket.Dispatcher

	mu        sync.Mutex
	connected bool
	joined    []string
	left      []string
	typed     []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{dispatcher: socket.NewDispatcher(nil, nil)}
}

func (c *fakeConn) Connect(context.Context) {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *fakeConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) On(event models.EventType, h socket.Handler) socket.Subscription {
	return c.dispatcher.On(event, h)
}

func (c *fakeConn) JoinChatRoom(roomID string) {
	c.mu.Lock()
	c.joined = append(c.joined, roomID)
	c.mu.Unlock()
}

func (c *fakeConn) LeaveChatRoom(roomID string) {
	c.mu.Lock()
	c.left = append(c.left, roomID)
	c.mu.Unlock()
}

func (c *fakeConn) SendTyping(roomID, userID string, isTyping bool) {
	c.mu.Lock()
	c.typed = append(c.typed, roomID+"/"+userID)
	c.mu.Unlock()
}

func (c *fakeConn) push(ev models.Event) { c.dispatcher.Dispatch(ev) }

// fakeAPI serves canned REST responses.
type fakeAPI struct {
	mu            sync.Mutex
	notifications []models.Notification
	messages      map[string][]models.Message
	statuses      models.StatusSnapshot
	rooms         []models.Room
	roomForPeer   string
	roomErr       error
	readIDs       []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{messages: make(map[string][]models.Message)}
}

func (a *fakeAPI) ResolveRoom(_ context.Context, peerID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.roomErr != nil {
		return "", a.roomErr
	}
	if a.roomForPeer != "" {
		return a.roomForPeer, nil
	}
	return "room-" + peerID, nil
}

func (a *fakeAPI) Messages(_ context.Context, roomID string) ([]models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Message(nil), a.messages[roomID]...), nil
}

func (a *fakeAPI) SendMessage(_ context.Context, roomID, content string, typ models.MessageType) (*models.Message, error) {
	return &models.Message{ID: "srv-echo", RoomID: roomID, Content: content, Type: typ}, nil
}

func (a *fakeAPI) MarkMessageRead(_ context.Context, messageID string) error {
	a.mu.Lock()
	a.readIDs = append(a.readIDs, messageID)
	a.mu.Unlock()
	return nil
}

func (a *fakeAPI) OnlineStatus(context.Context, []string) (models.StatusSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statuses, nil
}

func (a *fakeAPI) Notifications(context.Context) ([]models.Notification, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Notification(nil), a.notifications...), nil
}

func (a *fakeAPI) Rooms(context.Context) ([]models.Room, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Room(nil), a.rooms...), nil
}

func (a *fakeAPI) setNotifications(items []models.Notification) {
	a.mu.Lock()
	a.notifications = items
	a.mu.Unlock()
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type fixture struct {
	session *Session
	conn    *fakeConn
	api     *fakeAPI
	sched   *poll.Scheduler
	store   *notify.Store
	tracker *presence.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Polling = config.PollingConfig{
		Messages:      15 * time.Millisecond,
		OnlineStatus:  15 * time.Millisecond,
		Notifications: 15 * time.Millisecond,
		Rooms:         15 * time.Millisecond,
		Liveness:      5 * time.Millisecond,
	}

	f := &fixture{
		conn:    newFakeConn(),
		api:     newFakeAPI(),
		sched:   poll.NewScheduler(nil, nil),
		store:   notify.NewStore(nil, nil),
		tracker: presence.NewTracker(nil, nil),
	}
	f.session = New(cfg, Deps{
		Conn:      f.conn,
		Scheduler: f.sched,
		API:       f.api,
		Store:     f.store,
		Presence:  f.tracker,
		Tokens:    auth.Static(signToken(t, "me")),
	}, nil)
	t.Cleanup(f.session.Close)
	return f
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func TestSession_StartRequiresToken(t *testing.T) {
	f := newFixture(t)
	f.session.deps.Tokens = auth.Static("")

	err := f.session.Start(context.Background())
	if !errors.Is(err, auth.ErrNoToken) {
		t.Errorf("Start without token = %v, want ErrNoToken", err)
	}
}

func TestSession_StartConnectsAndPolls(t *testing.T) {
	f := newFixture(t)

	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !f.conn.Connected() {
		t.Error("Start should connect the realtime client")
	}

	got := f.sched.Active()
	want := []string{"notifications", "rooms"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Active = %v, want %v", got, want)
	}

	// Duplicate Start is a no-op.
	if err := f.session.Start(context.Background()); err != nil {
		t.Errorf("second Start: %v", err)
	}
}

func TestSession_PushNotificationReachesStoreOnce(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sched.Stop(keyNotifications) // freeze the poll path for this assert

	var broadcasts int
	f.store.OnChange(func(added *models.Notification) {
		if added != nil {
			broadcasts++
		}
	})

	f.conn.push(models.NotificationEvent{
		Kind:    models.NotificationFriendRequest,
		Title:   "Alice",
		Message: "wants to be friends",
	})

	if broadcasts != 1 {
		t.Errorf("broadcasts = %d, want exactly 1", broadcasts)
	}
	state := f.session.State()
	if state.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", state.UnreadCount)
	}
	if len(state.Notifications) != 1 || state.Notifications[0].Type != models.NotificationFriendRequest {
		t.Errorf("Notifications = %+v", state.Notifications)
	}
}

func TestSession_PushThenPollConverges(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Push arrives first with a locally assigned id. The server's poll
	// snapshot then carries the same logical record under its own id.
	// After one poll interval the visible list must equal the snapshot:
	// no push/poll double remains.
	f.conn.push(models.NotificationEvent{
		Kind:    models.NotificationNewMessage,
		Title:   "Bob",
		Message: "hi",
	})
	f.api.setNotifications([]models.Notification{
		{ID: "srv-1", Type: models.NotificationNewMessage, Title: "Bob", Message: "hi"},
	})

	waitFor(t, time.Second, func() bool {
		list := f.store.List()
		return len(list) == 1 && list[0].ID == "srv-1"
	}, "notification list should converge to the poll snapshot")
}

func TestSession_MessagePushForClosedRoomBecomesNotification(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sched.Stop(keyNotifications)

	f.conn.push(models.MessageEvent{Message: models.Message{
		ID: "m1", RoomID: "r1", SenderID: "peer", SenderName: "Bob", Content: "hello",
	}})

	list := f.store.ListByType(models.NotificationNewMessage)
	if len(list) != 1 || list[0].Title != "Bob" {
		t.Fatalf("notifications = %+v, want one from Bob", list)
	}
}

func TestSession_OwnMessagePushDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.conn.push(models.MessageEvent{Message: models.Message{
		ID: "m1", RoomID: "r1", SenderID: "me", Content: "echo of my own send",
	}})

	if got := len(f.store.List()); got != 0 {
		t.Errorf("notifications = %d, want 0 for own messages", got)
	}
}

func TestSession_OpenChatJoinsAndPollsMessages(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.api.mu.Lock()
	f.api.messages["room-peer"] = []models.Message{{ID: "m1", RoomID: "room-peer", Content: "history"}}
	f.api.mu.Unlock()

	roomID, err := f.session.OpenChat(context.Background(), "peer")
	if err != nil {
		t.Fatalf("OpenChat: %v", err)
	}
	if roomID != "room-peer" {
		t.Errorf("roomID = %q", roomID)
	}

	f.conn.mu.Lock()
	joined := append([]string(nil), f.conn.joined...)
	f.conn.mu.Unlock()
	if !reflect.DeepEqual(joined, []string{"room-peer"}) {
		t.Errorf("joined = %v", joined)
	}

	waitFor(t, time.Second, func() bool {
		msgs := f.session.Messages(roomID)
		return len(msgs) == 1 && msgs[0].ID == "m1"
	}, "message poll should populate the room view")

	// Push appends immediately; the next poll replaces the view with
	// the server history, which by then includes the pushed message.
	f.api.mu.Lock()
	f.api.messages[roomID] = append(f.api.messages[roomID], models.Message{ID: "m2", RoomID: roomID})
	f.api.mu.Unlock()
	f.conn.push(models.MessageEvent{Message: models.Message{ID: "m2", RoomID: roomID, SenderID: "peer"}})

	waitFor(t, time.Second, func() bool {
		msgs := f.session.Messages(roomID)
		return len(msgs) == 2 && msgs[1].ID == "m2"
	}, "pushed message should settle into the polled view without doubling")

	// Open room: the push must not have produced a notification.
	if got := len(f.store.ListByType(models.NotificationNewMessage)); got != 0 {
		t.Errorf("open-room push produced %d notifications, want 0", got)
	}
}

func TestSession_CloseChatStopsPollingAndLeaves(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	roomID, err := f.session.OpenChat(context.Background(), "peer")
	if err != nil {
		t.Fatalf("OpenChat: %v", err)
	}

	f.session.CloseChat(roomID)

	for _, key := range f.sched.Active() {
		if key == messagesKey(roomID) {
			t.Error("message polling still active after CloseChat")
		}
	}
	f.conn.mu.Lock()
	left := append([]string(nil), f.conn.left...)
	f.conn.mu.Unlock()
	if !reflect.DeepEqual(left, []string{roomID}) {
		t.Errorf("left = %v", left)
	}
	if got := len(f.session.Messages(roomID)); got != 0 {
		t.Errorf("Messages after close = %d, want 0", got)
	}
}

func TestSession_SendMessageAppendsEcho(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	roomID, err := f.session.OpenChat(context.Background(), "peer")
	if err != nil {
		t.Fatalf("OpenChat: %v", err)
	}
	f.sched.Stop(messagesKey(roomID)) // freeze the view for the assert

	msg, err := f.session.SendMessage(context.Background(), roomID, "gg", models.MessageText)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID != "srv-echo" {
		t.Errorf("msg = %+v", msg)
	}
	msgs := f.session.Messages(roomID)
	if len(msgs) == 0 || msgs[len(msgs)-1].ID != "srv-echo" {
		t.Errorf("echo not appended, view = %+v", msgs)
	}
}

func TestSession_TypingEvents(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.conn.push(models.TypingEvent{RoomID: "r1", UserID: "peer", IsTyping: true})
	if got := f.session.TypingPeers("r1"); !reflect.DeepEqual(got, []string{"peer"}) {
		t.Errorf("TypingPeers = %v, want [peer]", got)
	}

	// Own typing echoes are ignored.
	f.conn.push(models.TypingEvent{RoomID: "r1", UserID: "me", IsTyping: true})
	if got := f.session.TypingPeers("r1"); len(got) != 1 {
		t.Errorf("TypingPeers = %v, own echo should be ignored", got)
	}

	f.conn.push(models.TypingEvent{RoomID: "r1", UserID: "peer", IsTyping: false})
	if got := f.session.TypingPeers("r1"); len(got) != 0 {
		t.Errorf("TypingPeers = %v, want empty", got)
	}

	f.session.SendTyping("r1", true)
	f.conn.mu.Lock()
	typed := append([]string(nil), f.conn.typed...)
	f.conn.mu.Unlock()
	if !reflect.DeepEqual(typed, []string{"r1/me"}) {
		t.Errorf("typed = %v, want signal labeled with own user id", typed)
	}
}

func TestSession_TypingKeystrokesDebounce(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	roomID, err := f.session.OpenChat(context.Background(), "peer")
	if err != nil {
		t.Fatalf("OpenChat: %v", err)
	}

	f.session.Typing(roomID)
	f.session.Typing(roomID)
	f.session.Typing(roomID)

	f.conn.mu.Lock()
	typed := append([]string(nil), f.conn.typed...)
	f.conn.mu.Unlock()
	if !reflect.DeepEqual(typed, []string{roomID + "/me"}) {
		t.Errorf("typed = %v, want one opening signal", typed)
	}

	// Closing the chat ends the burst with an explicit typing=false.
	f.session.CloseChat(roomID)
	f.conn.mu.Lock()
	typed = append([]string(nil), f.conn.typed...)
	f.conn.mu.Unlock()
	if len(typed) != 2 {
		t.Errorf("typed = %v, want closing signal after CloseChat", typed)
	}
}

func TestSession_ReadEventMarksOwnMessages(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	roomID, err := f.session.OpenChat(context.Background(), "peer")
	if err != nil {
		t.Fatalf("OpenChat: %v", err)
	}
	f.sched.Stop(messagesKey(roomID))

	f.conn.push(models.MessageEvent{Message: models.Message{ID: "mine", RoomID: roomID, SenderID: "me"}})
	f.conn.push(models.MessageEvent{Message: models.Message{ID: "theirs", RoomID: roomID, SenderID: "peer"}})

	f.conn.push(models.ReadEvent{RoomID: roomID, UserID: "peer"})

	for _, m := range f.session.Messages(roomID) {
		if m.SenderID == "me" && !m.Read {
			t.Error("own message should be marked read")
		}
		if m.SenderID == "peer" && m.Read {
			t.Error("peer message read flag should be untouched")
		}
	}
}

func TestSession_PresencePushAndLastSeenPoll(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.conn.push(models.PresenceEvent{UserID: "42", Online: true})
	if got := f.session.State().OnlineUsers; !reflect.DeepEqual(got, []string{"42"}) {
		t.Fatalf("OnlineUsers = %v, want [42]", got)
	}

	f.conn.push(models.PresenceEvent{UserID: "42", Online: false})
	if got := f.session.State().OnlineUsers; len(got) != 0 {
		t.Fatalf("OnlineUsers = %v, want empty after user_offline", got)
	}

	seen := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	f.api.mu.Lock()
	f.api.statuses = models.StatusSnapshot{"42": {Online: false, LastSeen: &seen}}
	f.api.mu.Unlock()

	key := f.session.WatchPresence([]string{"42"})
	waitFor(t, time.Second, func() bool {
		ts, ok := f.tracker.LastSeen("42")
		return ok && ts.Equal(seen)
	}, "presence poll should populate last-seen")
	f.session.UnwatchPresence(key)

	for _, active := range f.sched.Active() {
		if active == key {
			t.Error("presence polling still active after UnwatchPresence")
		}
	}
}

func TestSession_LivenessFlagTracksConnection(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return f.session.State().IsConnected
	}, "liveness check should surface the connected state")

	f.conn.Disconnect()
	waitFor(t, time.Second, func() bool {
		return !f.session.State().IsConnected
	}, "liveness check should surface a dropped connection")
}

func TestSession_CloseTearsEverythingDown(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.session.OpenChat(context.Background(), "peer"); err != nil {
		t.Fatalf("OpenChat: %v", err)
	}
	f.session.WatchPresence([]string{"42"})
	f.conn.push(models.PresenceEvent{UserID: "42", Online: true})

	f.session.Close()

	if got := f.sched.Active(); len(got) != 0 {
		t.Errorf("polling keys still active after Close: %v", got)
	}
	if got := f.conn.dispatcher.Total(); got != 0 {
		t.Errorf("listeners still registered after Close: %d", got)
	}
	if f.conn.Connected() {
		t.Error("connection still up after Close")
	}
	if got := f.session.State().OnlineUsers; len(got) != 0 {
		t.Errorf("online set survived Close: %v", got)
	}

	// Close is idempotent.
	f.session.Close()

	// A pushed event after Close reaches no one.
	f.conn.push(models.NotificationEvent{Kind: models.NotificationGeneric, Title: "late"})
	if got := f.store.UnreadCount(); got != 0 {
		t.Errorf("post-Close push reached the store, unread = %d", got)
	}
}

func TestSession_RoomListPolling(t *testing.T) {
	f := newFixture(t)
	f.api.mu.Lock()
	f.api.rooms = []models.Room{{ID: "r1", Peer: models.RoomPeer{ID: "peer", Name: "Bob"}}}
	f.api.mu.Unlock()

	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		rooms := f.session.Rooms()
		return len(rooms) == 1 && rooms[0].ID == "r1"
	}, "room list poll should populate Rooms")
}
