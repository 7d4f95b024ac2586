package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oopscheckmate/realtime/internal/auth"
	"github.com/oopscheckmate/realtime/internal/config"
	"github.com/oopscheckmate/realtime/internal/metrics"
	"github.com/oopscheckmate/realtime/internal/notify"
	"github.com/oopscheckmate/realtime/internal/poll"
	"github.com/oopscheckmate/realtime/internal/presence"
	"github.com/oopscheckmate/realtime/internal/rest"
	"github.com/oopscheckmate/realtime/internal/session"
	"github.com/oopscheckmate/realtime/internal/socket"
	"github.com/oopscheckmate/realtime/pkg/models"
)

// resolveConfigPath applies the --config flag, the REALTIME_CONFIG
// environment variable and the default file name, in that order.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("REALTIME_CONFIG"); env != "" {
		return env
	}
	return "realtime.yaml"
}

func tokenSource(cfg config.Config) auth.TokenSource {
	if cfg.Auth.Token != "" {
		return auth.Static(cfg.Auth.Token)
	}
	return &auth.FileSource{Path: cfg.Auth.TokenFile}
}

// runWatch implements the watch command: a full session wired end to
// end, running until SIGINT/SIGTERM.
func runWatch(ctx context.Context, configPath string, debug bool, peerID string, presenceIDs []string) error {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	logger := config.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting realtime client",
		"version", version,
		"server", cfg.Server.URL,
		"api", cfg.Server.APIBaseURL,
	)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Listen, reg, logger)
	}

	tokens := tokenSource(cfg)
	api := rest.New(cfg.Server.APIBaseURL, tokens, logger)
	conn := socket.New(socket.Config{URL: cfg.Server.URL}, tokens, logger, m)
	sched := poll.NewScheduler(logger, m)
	store := notify.NewStore(logger, m, notify.WithAlerter(&notify.LogAlerter{Logger: logger}))
	tracker := presence.NewTracker(logger, m)

	sess := session.New(cfg, session.Deps{
		Conn:      conn,
		Scheduler: sched,
		API:       api,
		Store:     store,
		Presence:  tracker,
		Tokens:    tokens,
	}, logger)

	store.RequestPermission(ctx)
	cancelChange := store.OnChange(func(added *models.Notification) {
		if added == nil {
			return
		}
		logger.Info("notification",
			"type", added.Type,
			"title", added.Title,
			"message", added.Message,
			"unread", store.UnreadCount(),
		)
	})
	defer cancelChange()

	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Close()

	if len(presenceIDs) > 0 {
		sess.WatchPresence(presenceIDs)
	}
	if peerID != "" {
		roomID, err := sess.OpenChat(ctx, peerID)
		if err != nil {
			return err
		}
		logger.Info("chat opened", "peer", peerID, "room", roomID)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	statusTicker := time.NewTicker(30 * time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case sig := <-stop:
			logger.Info("shutting down", "signal", sig.String())
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-statusTicker.C:
			state := sess.State()
			logger.Info("session state",
				"connected", state.IsConnected,
				"online_users", len(state.OnlineUsers),
				"unread", state.UnreadCount,
			)
		}
	}
}

func serveMetrics(listen string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("metrics endpoint listening", "addr", listen)
	if err := http.ListenAndServe(listen, mux); err != nil {
		logger.Error("metrics endpoint failed", "error", err)
	}
}

// runStatus implements the status command: one snapshot read over REST.
func runStatus(ctx context.Context, configPath string) error {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := config.NewLogger(cfg.Logging, os.Stderr)

	api := rest.New(cfg.Server.APIBaseURL, tokenSource(cfg), logger)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rooms, err := api.Rooms(ctx)
	if err != nil {
		return fmt.Errorf("fetch rooms: %w", err)
	}
	notifications, err := api.Notifications(ctx)
	if err != nil {
		return fmt.Errorf("fetch notifications: %w", err)
	}

	unread := 0
	for _, n := range notifications {
		if !n.Read {
			unread++
		}
	}

	fmt.Printf("server:        %s\n", cfg.Server.APIBaseURL)
	fmt.Printf("rooms:         %d\n", len(rooms))
	fmt.Printf("notifications: %d (%d unread)\n", len(notifications), unread)
	for _, room := range rooms {
		line := fmt.Sprintf("  %s  %s", room.ID, room.Peer.Name)
		if room.UnreadCount > 0 {
			line += fmt.Sprintf("  [%d unread]", room.UnreadCount)
		}
		fmt.Println(line)
	}
	return nil
}
