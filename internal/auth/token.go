// Package auth provides session token access for the realtime subsystem.
//
// Tokens are issued elsewhere (login REST flow) and stored by the host
// application. Components here never cache a token across calls: every network
// operation reads it fresh so a token refresh is picked up without restarting
// the connection or any poll loop.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken indicates no session token is currently available.
var ErrNoToken = errors.New("auth: no session token")

// TokenSource yields the current session token. Implementations must be safe
// for concurrent use and must return the freshest token on every call.
type TokenSource interface {
	Token() (string, error)
}

// Static wraps a fixed token string. Useful for tests and short-lived tools.
type Static string

func (s Static) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// FileSource reads the token from a file on every call, mirroring the host
// application's local key-value store. A missing or empty file maps to
// ErrNoToken rather than a read error.
type FileSource struct {
	Path string
}

func (f *FileSource) Token() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("auth: read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Memory is a swappable in-memory token holder. The host updates it on login,
// refresh and logout; readers always observe the latest value.
type Memory struct {
	mu    sync.RWMutex
	token string
}

func (m *Memory) Token() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", ErrNoToken
	}
	return m.token, nil
}

// Set replaces the stored token. An empty value clears it.
func (m *Memory) Set(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// claims matches the platform's session JWT payload.
type claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// UserID extracts the user id claim from a session token without verifying
// the signature. The client never holds the signing secret; the server remains
// the authority, this is only used to label outbound signals (typing) with the
// local user's id.
func UserID(token string) (string, error) {
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	if c.UserID != "" {
		return c.UserID, nil
	}
	if c.Subject != "" {
		return c.Subject, nil
	}
	return "", errors.New("auth: token has no user id claim")
}
