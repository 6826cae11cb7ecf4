package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/shadaxv/chat-app/internal/history"
	"github.com/shadaxv/chat-app/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components and manages the server lifecycle so that
// deferred cleanup (database close, hub drain) executes before the process
// exits.
func run() error {
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := newLogger(cfg.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(cfg.HistoryPath))
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer func() {
		log.Info("closing history database")
		_ = db.Close()
	}()

	historyLog, err := history.NewBadgerLog(db, log, cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("initializing history log: %w", err)
	}

	hub := server.NewHub(log)
	go hub.Run()

	room := server.NewRoom(hub, historyLog, log)
	handlers := server.NewHandlers(hub, room, cfg, log)
	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(handlers))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer, log)
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log); err != nil {
		log.Warn("http shutdown did not complete cleanly", "error", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn("hub shutdown did not complete cleanly", "error", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
