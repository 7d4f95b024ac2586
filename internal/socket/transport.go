package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second

	// longPollWait is how long one fallback poll request may be held open by
	// the server before it returns an empty batch.
	longPollWait = 30 * time.Second
)

// frame is the wire envelope for both transports: a named event with an
// opaque JSON payload.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// transport is a bidirectional frame stream. ReadFrame blocks until a frame
// arrives or the transport fails; WriteFrame is safe for concurrent use.
type transport interface {
	ReadFrame() (*frame, error)
	WriteFrame(*frame) error
	Ping() error
	Close() error
}

// dial negotiates a transport: websocket first, HTTP long-poll as the
// degraded fallback. Listeners never observe which transport is active.
func dial(ctx context.Context, baseURL, token string, logger *slog.Logger) (transport, error) {
	wsEndpoint := websocketURL(baseURL) + "/realtime/ws?token=" + token
	header := http.Header{"Authorization": []string{"Bearer " + token}}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, wsErr := dialer.DialContext(ctx, wsEndpoint, header)
	if wsErr == nil {
		return newWSTransport(conn), nil
	}

	logger.Warn("websocket dial failed, degrading to long-poll transport", "error", wsErr)
	pt, err := newPollTransport(ctx, httpURL(baseURL), token)
	if err != nil {
		return nil, fmt.Errorf("socket: dial: websocket: %v, long-poll: %w", wsErr, err)
	}
	return pt, nil
}

// websocketURL rewrites an http(s) base to its ws(s) form.
func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

// httpURL rewrites a ws(s) base to its http(s) form.
func httpURL(base string) string {
	switch {
	case strings.HasPrefix(base, "wss://"):
		return "https://" + strings.TrimPrefix(base, "wss://")
	case strings.HasPrefix(base, "ws://"):
		return "http://" + strings.TrimPrefix(base, "ws://")
	}
	return base
}

// wsTransport adapts a gorilla websocket connection. Gorilla permits one
// concurrent writer, so writes serialize through a mutex.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	t := &wsTransport{conn: conn}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return t
}

func (t *wsTransport) ReadFrame() (*frame, error) {
	var fr frame
	if err := t.conn.ReadJSON(&fr); err != nil {
		return nil, err
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	return &fr, nil
}

func (t *wsTransport) WriteFrame(fr *frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(fr)
}

func (t *wsTransport) Ping() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// pollTransport emulates the frame stream over plain HTTP: GET drains queued
// frames (the server may hold the request open), POST sends. It exists so a
// proxy or firewall that kills websockets degrades service latency, not
// service availability.
type pollTransport struct {
	http   *resty.Client
	token  string
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  []*frame
	closed bool
}

func newPollTransport(ctx context.Context, baseURL, token string) (*pollTransport, error) {
	ctx, cancel := context.WithCancel(ctx)
	t := &pollTransport{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(longPollWait + 10*time.Second),
		token:  token,
		ctx:    ctx,
		cancel: cancel,
	}

	// Probe once so a dead server fails the dial instead of the first read.
	if err := t.fetch(); err != nil {
		cancel()
		return nil, err
	}
	return t, nil
}

func (t *pollTransport) fetch() error {
	var out struct {
		Frames []*frame `json:"frames"`
	}
	resp, err := t.http.R().
		SetContext(t.ctx).
		SetAuthToken(t.token).
		SetResult(&out).
		Get("/realtime/poll")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("long-poll: status %d", resp.StatusCode())
	}

	t.mu.Lock()
	t.queue = append(t.queue, out.Frames...)
	t.mu.Unlock()
	return nil
}

func (t *pollTransport) ReadFrame() (*frame, error) {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil, fmt.Errorf("long-poll: transport closed")
		}
		if len(t.queue) > 0 {
			fr := t.queue[0]
			t.queue = t.queue[1:]
			t.mu.Unlock()
			return fr, nil
		}
		t.mu.Unlock()

		if err := t.fetch(); err != nil {
			return nil, err
		}
	}
}

func (t *pollTransport) WriteFrame(fr *frame) error {
	resp, err := t.http.R().
		SetContext(t.ctx).
		SetAuthToken(t.token).
		SetBody(fr).
		Post("/realtime/emit")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("long-poll: emit status %d", resp.StatusCode())
	}
	return nil
}

func (t *pollTransport) Ping() error { return nil }

func (t *pollTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()
	return nil
}
