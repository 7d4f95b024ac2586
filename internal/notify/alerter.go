package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/oopscheckmate/realtime/pkg/models"
)

// AlertDismissDelay is how long an OS-level alert stays up before it is
// dismissed regardless of interaction.
const AlertDismissDelay = 5 * time.Second

// ClickFunc is invoked when the user activates an OS-level alert.
type ClickFunc func()

// Alerter is the host's OS-level alerting capability. Hosts without one leave
// the store's alerter nil and the store degrades to an in-memory list: alert
// emission becomes a no-op, never an error.
type Alerter interface {
	// RequestPermission asks the host for alert permission. Implementations
	// must be idempotent once the user has decided.
	RequestPermission(ctx context.Context) bool

	// Show raises an alert for the notification. Implementations dismiss it
	// after AlertDismissDelay and invoke onClick if the user activates it
	// first. Show must not block the caller.
	Show(ctx context.Context, n *models.Notification, onClick ClickFunc)
}

// FocusFunc reports whether the application surface currently has focus.
// Alerts are suppressed while the user is already looking at the app.
type FocusFunc func() bool

// LogAlerter writes alerts to the log. It backs the diagnostic CLI, where a
// terminal line is the closest thing to a desktop notification.
type LogAlerter struct {
	Logger *slog.Logger
}

func (a *LogAlerter) RequestPermission(context.Context) bool { return true }

func (a *LogAlerter) Show(_ context.Context, n *models.Notification, _ ClickFunc) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification alert",
		"type", n.Type,
		"title", n.Title,
		"message", n.Message,
	)
}
