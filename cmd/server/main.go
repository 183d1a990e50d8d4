package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/logging"
	"github.com/Tyrowin/chatroom/internal/server"
	"github.com/Tyrowin/chatroom/internal/snapshot"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatroom: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML, JSON or TOML config file")
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	server.SetConfig(cfg)
	active := server.CurrentConfig()
	if active.Room.AdminPassword == "" {
		logger.Warn("ADMIN_PASSWORD is empty; admin updates and deletes are disabled")
	}

	store, err := snapshot.Open(context.Background(), active.Store, logger)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing snapshot store", zap.Error(err))
		}
	}()

	hub := server.NewHub(store)
	server.StartHub(hub)

	httpServer := server.CreateServer(active.Port, server.SetupRoutes(hub))

	errs := make(chan error, 1)
	go func() {
		errs <- server.StartServer(httpServer)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	case s := <-sig:
		logger.Info("Signal received", zap.String("signal", s.String()))
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		logger.Warn("HTTP server did not shut down cleanly", zap.Error(err))
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("Hub did not shut down cleanly", zap.Error(err))
	}
	logger.Info("Shutdown complete")
	return nil
}
