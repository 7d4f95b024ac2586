// Package socket maintains the authenticated realtime connection to the
// platform and delivers typed push events to registered listeners.
package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/oopscheckmate/realtime/internal/auth"
	"github.com/oopscheckmate/realtime/internal/backoff"
	"github.com/oopscheckmate/realtime/internal/metrics"
	"github.com/oopscheckmate/realtime/pkg/models"
)

// Outbound signal names. Inbound event names live in pkg/models.
const (
	signalLogin     = "user_login"
	signalJoinRoom  = "join_chat_room"
	signalLeaveRoom = "leave_chat_room"
	signalTyping    = "typing"
)

// Config configures the connection client.
type Config struct {
	// URL is the realtime endpoint base, e.g. "wss://chess.example.com".
	URL string

	// Reconnect paces automatic reconnection. Zero value uses the default
	// policy (1s initial, 30s cap).
	Reconnect backoff.Policy
}

// Client owns exactly one logical authenticated connection per session.
//
// Transport failures never surface to callers: the client logs them, flips
// its connected flag and reconnects with backoff. Consumers read Connected()
// as level-triggered truth rather than tracking transition events.
type Client struct {
	cfg        Config
	tokens     auth.TokenSource
	logger     *slog.Logger
	metrics    *metrics.Metrics
	dispatcher *Dispatcher

	mu        sync.Mutex
	tr        transport
	connected bool
	lastErr   error
	running   bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a disconnected client.
func New(cfg Config, tokens auth.TokenSource, logger *slog.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop()
	}
	if cfg.Reconnect == (backoff.Policy{}) {
		cfg.Reconnect = backoff.Reconnect()
	}
	return &Client{
		cfg:        cfg,
		tokens:     tokens,
		logger:     logger,
		metrics:    m,
		dispatcher: NewDispatcher(logger, m),
	}
}

// On registers a listener for one event type. The returned Subscription is
// the matching deregistration; every On needs a Cancel on teardown.
func (c *Client) On(event models.EventType, handler Handler) Subscription {
	return c.dispatcher.On(event, handler)
}

// ListenerCount reports how many listeners remain registered, across all
// event types.
func (c *Client) ListenerCount() int {
	return c.dispatcher.Total()
}

// Connect starts the connection loop. It is a no-op if the loop is already
// running. The loop dials, authenticates, dispatches inbound events and
// reconnects on failure until Disconnect is called or ctx is canceled.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.wg.Add(1)
	go c.connectLoop(ctx, done)
}

// Disconnect tears the connection down and stops the reconnect loop.
// Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.done)
	tr := c.tr
	c.tr = nil
	c.connected = false
	c.mu.Unlock()

	if tr != nil {
		_ = tr.Close()
	}
	c.wg.Wait()
	c.metrics.Connected.Set(0)
}

// Connected reports whether a live transport is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastError returns the most recent transport error, or nil.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// JoinChatRoom announces membership in a chat room. No-op when disconnected.
func (c *Client) JoinChatRoom(roomID string) {
	c.send(signalJoinRoom, map[string]string{"room_id": roomID})
}

// LeaveChatRoom retracts membership in a chat room. No-op when disconnected.
func (c *Client) LeaveChatRoom(roomID string) {
	c.send(signalLeaveRoom, map[string]string{"room_id": roomID})
}

// SendTyping emits a typing indicator for a room. Rate limiting is the
// caller's responsibility. No-op when disconnected.
func (c *Client) SendTyping(roomID, userID string, isTyping bool) {
	c.send(signalTyping, map[string]any{
		"room_id":   roomID,
		"user_id":   userID,
		"is_typing": isTyping,
	})
}

// send marshals and writes an outbound signal. Failures flip the connected
// flag (the read loop will notice the dead transport too) but are never
// returned: outbound signals are fire-and-forget.
func (c *Client) send(event string, payload any) {
	c.mu.Lock()
	tr := c.tr
	connected := c.connected
	c.mu.Unlock()

	if !connected || tr == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("marshal outbound signal", "event", event, "error", err)
		return
	}
	if err := tr.WriteFrame(&frame{Event: event, Data: data}); err != nil {
		c.logger.Warn("outbound signal failed", "event", event, "error", err)
		c.setDisconnected(err)
	}
}

func (c *Client) setDisconnected(err error) {
	c.mu.Lock()
	c.connected = false
	if err != nil {
		c.lastErr = err
	}
	c.mu.Unlock()
	c.metrics.Connected.Set(0)
}

// connectLoop dials, runs one session and redials with backoff until the
// client is disconnected or the context ends.
func (c *Client) connectLoop(ctx context.Context, done chan struct{}) {
	defer c.wg.Done()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		default:
		}

		token, err := c.tokens.Token()
		if err != nil {
			c.logger.Warn("no session token, retrying", "error", err)
			if !c.sleep(ctx, done, c.cfg.Reconnect.Delay(attempt+1)) {
				return
			}
			attempt++
			continue
		}

		tr, err := dial(ctx, c.cfg.URL, token, c.logger)
		if err != nil {
			attempt++
			c.metrics.Reconnects.Inc()
			c.setDisconnected(err)
			c.logger.Warn("dial failed", "attempt", attempt, "error", err)
			if !c.sleep(ctx, done, c.cfg.Reconnect.Delay(attempt)) {
				return
			}
			continue
		}

		// The token rides the transport handshake and is re-announced as an
		// explicit login signal once the transport reports open.
		loginData, _ := json.Marshal(map[string]string{"token": token})
		if err := tr.WriteFrame(&frame{Event: signalLogin, Data: loginData}); err != nil {
			_ = tr.Close()
			attempt++
			c.setDisconnected(err)
			c.logger.Warn("login signal failed", "attempt", attempt, "error", err)
			if !c.sleep(ctx, done, c.cfg.Reconnect.Delay(attempt)) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.tr = tr
		c.connected = true
		c.lastErr = nil
		c.mu.Unlock()
		c.metrics.Connected.Set(1)
		c.logger.Info("realtime connection established")
		attempt = 0

		readErr := c.readFrames(ctx, done, tr)

		c.mu.Lock()
		if c.tr == tr {
			c.tr = nil
		}
		c.connected = false
		if readErr != nil {
			c.lastErr = readErr
		}
		c.mu.Unlock()
		c.metrics.Connected.Set(0)
		_ = tr.Close()

		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		default:
		}

		attempt++
		c.metrics.Reconnects.Inc()
		c.logger.Warn("connection lost, reconnecting", "error", readErr)
		if !c.sleep(ctx, done, c.cfg.Reconnect.Delay(attempt)) {
			return
		}
	}
}

// readFrames pumps inbound frames into the dispatcher until the transport
// fails. A separate goroutine keeps the websocket alive with pings.
func (c *Client) readFrames(ctx context.Context, done chan struct{}, tr transport) error {
	pingStop := make(chan struct{})
	defer close(pingStop)
	go c.pingLoop(tr, pingStop)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		default:
		}

		fr, err := tr.ReadFrame()
		if err != nil {
			return err
		}

		ev, err := models.DecodeEvent(models.EventType(fr.Event), fr.Data)
		if err != nil {
			// Forward-compatibility: unknown or malformed frames are dropped,
			// not fatal.
			c.logger.Debug("dropping frame", "event", fr.Event, "error", err)
			continue
		}
		c.dispatcher.Dispatch(ev)
	}
}

func (c *Client) pingLoop(tr transport, stop chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := tr.Ping(); err != nil {
				return
			}
		}
	}
}

// sleep waits for d, returning false if the client shut down first.
func (c *Client) sleep(ctx context.Context, done chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}
