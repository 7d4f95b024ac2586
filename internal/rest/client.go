// Package rest talks to the platform's REST API. The realtime subsystem only
// consumes the chat, presence and notification endpoints; everything else
// (profiles, friends, achievements) belongs to other parts of the host
// application.
package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/oopscheckmate/realtime/internal/auth"
	"github.com/oopscheckmate/realtime/pkg/models"
)

const defaultTimeout = 15 * time.Second

// Client is a bearer-token authenticated REST client. The token is read from
// the TokenSource at request time, never cached, so a refresh elsewhere in the
// host is picked up immediately.
type Client struct {
	http   *resty.Client
	tokens auth.TokenSource
	logger *slog.Logger
}

// New creates a Client against the given API base URL, e.g.
// "https://chess.example.com/api".
func New(baseURL string, tokens auth.TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout)

	return &Client{
		http:   httpClient,
		tokens: tokens,
		logger: logger,
	}
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	return c.http.R().SetContext(ctx).SetAuthToken(token), nil
}

// ResolveRoom finds or creates the direct-message room with the given peer.
func (c *Client) ResolveRoom(ctx context.Context, peerID string) (string, error) {
	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	var out struct {
		RoomID string `json:"roomId"`
	}
	resp, err := req.SetResult(&out).Post("/chat/room/" + peerID)
	if err != nil {
		return "", fmt.Errorf("rest: resolve room: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("rest: resolve room: status %d", resp.StatusCode())
	}
	return out.RoomID, nil
}

// Messages fetches the full message list of a room.
func (c *Client) Messages(ctx context.Context, roomID string) ([]models.Message, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	resp, err := req.SetResult(&out).Get("/chat/messages/" + roomID)
	if err != nil {
		return nil, fmt.Errorf("rest: messages: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rest: messages: status %d", resp.StatusCode())
	}
	return out.Messages, nil
}

// SendMessage posts a message to a room and returns the stored record.
func (c *Client) SendMessage(ctx context.Context, roomID, content string, typ models.MessageType) (*models.Message, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	if typ == "" {
		typ = models.MessageText
	}
	var out struct {
		MessageData models.Message `json:"messageData"`
	}
	resp, err := req.
		SetBody(map[string]any{"roomId": roomID, "content": content, "type": typ}).
		SetResult(&out).
		Post("/chat/send")
	if err != nil {
		return nil, fmt.Errorf("rest: send message: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rest: send message: status %d", resp.StatusCode())
	}
	return &out.MessageData, nil
}

// MarkMessageRead acknowledges a single message.
func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.Post("/chat/messages/" + messageID + "/read")
	if err != nil {
		return fmt.Errorf("rest: mark read: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("rest: mark read: status %d", resp.StatusCode())
	}
	return nil
}

// OnlineStatus fetches the online/last-seen snapshot for a set of users.
func (c *Client) OnlineStatus(ctx context.Context, userIDs []string) (models.StatusSnapshot, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	for _, id := range userIDs {
		params.Add("user_ids[]", id)
	}
	req.SetQueryParamsFromValues(params)
	var out struct {
		Status models.StatusSnapshot `json:"status"`
	}
	resp, err := req.SetResult(&out).Get("/users/online-status")
	if err != nil {
		return nil, fmt.Errorf("rest: online status: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rest: online status: status %d", resp.StatusCode())
	}
	return out.Status, nil
}

// Notifications fetches the authoritative notification snapshot.
func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var out struct {
		Notifications []models.Notification `json:"notifications"`
	}
	resp, err := req.SetResult(&out).Get("/notifications")
	if err != nil {
		return nil, fmt.Errorf("rest: notifications: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rest: notifications: status %d", resp.StatusCode())
	}
	return out.Notifications, nil
}

// Rooms fetches the user's direct-message room list.
func (c *Client) Rooms(ctx context.Context) ([]models.Room, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var out struct {
		Rooms []models.Room `json:"rooms"`
	}
	resp, err := req.SetResult(&out).Get("/chat/rooms")
	if err != nil {
		return nil, fmt.Errorf("rest: rooms: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rest: rooms: status %d", resp.StatusCode())
	}
	return out.Rooms, nil
}
