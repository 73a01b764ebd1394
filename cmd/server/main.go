package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lanchu14/project-realtime/internal/config"
	"github.com/Lanchu14/project-realtime/internal/history"
	"github.com/Lanchu14/project-realtime/internal/logging"
	"github.com/Lanchu14/project-realtime/internal/relay"
	"github.com/Lanchu14/project-realtime/internal/server"
)

func main() {
	logging.Init()

	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	store, err := history.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open history store", "error", err)
		os.Exit(1)
	}

	// 1. Create the Hub and run its event loop.
	hub := relay.NewHub()
	go hub.Run()

	// 2. Wire the routes.
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.NewMux(hub, store),
	}

	// 3. Serve until interrupted.
	go func() {
		slog.Info("starting session server", "addr", cfg.Addr, "data", cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}

	if err := store.Close(); err != nil {
		slog.Warn("failed to close history store", "error", err)
	}
}
