// Package typing debounces the outbound typing signal for chat rooms.
//
// Keystrokes arrive per character but the wire signal is binary: the
// first keystroke in a room sends typing=true, repeats while active are
// suppressed, and typing=false follows automatically once the keyboard
// goes idle. An explicit Stop (message sent, chat closed) fires the
// trailing signal immediately.
package typing

import (
	"sync"
	"time"
)

// DefaultIdle is how long a room's keyboard must stay quiet before the
// automatic typing=false signal fires.
const DefaultIdle = 2 * time.Second

// SendFunc delivers one typing signal on the wire.
type SendFunc func(roomID string, isTyping bool)

// Notifier tracks per-room typing state and owns the idle timers.
// Safe for concurrent use.
type Notifier struct {
	idle time.Duration
	send SendFunc

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewNotifier(idle time.Duration, send SendFunc) *Notifier {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Notifier{
		idle:   idle,
		send:   send,
		timers: make(map[string]*time.Timer),
	}
}

// Keystroke records typing activity in a room. The first keystroke of a
// burst sends typing=true; every keystroke pushes the idle deadline out.
func (n *Notifier) Keystroke(roomID string) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	timer, active := n.timers[roomID]
	if active {
		timer.Reset(n.idle)
		n.mu.Unlock()
		return
	}
	n.timers[roomID] = time.AfterFunc(n.idle, func() { n.expire(roomID) })
	n.mu.Unlock()

	n.send(roomID, true)
}

func (n *Notifier) expire(roomID string) {
	n.mu.Lock()
	_, active := n.timers[roomID]
	delete(n.timers, roomID)
	n.mu.Unlock()

	if active {
		n.send(roomID, false)
	}
}

// Stop ends the typing burst for a room immediately. No-op when the
// room is not active.
func (n *Notifier) Stop(roomID string) {
	n.mu.Lock()
	timer, active := n.timers[roomID]
	if active {
		timer.Stop()
		delete(n.timers, roomID)
	}
	n.mu.Unlock()

	if active {
		n.send(roomID, false)
	}
}

// StopAll ends every active burst and rejects further keystrokes. Used
// on session teardown.
func (n *Notifier) StopAll() {
	n.mu.Lock()
	n.stopped = true
	rooms := make([]string, 0, len(n.timers))
	for roomID, timer := range n.timers {
		timer.Stop()
		rooms = append(rooms, roomID)
	}
	n.timers = make(map[string]*time.Timer)
	n.mu.Unlock()

	for _, roomID := range rooms {
		n.send(roomID, false)
	}
}

// Active reports whether a typing burst is live for the room.
func (n *Notifier) Active(roomID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.timers[roomID]
	return ok
}
