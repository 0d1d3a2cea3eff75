package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"teamtask/tasks/adapters/auth"
	"teamtask/tasks/adapters/db"
	"teamtask/tasks/adapters/guard"
	"teamtask/tasks/adapters/memory"
	"teamtask/tasks/adapters/mongodb"
	"teamtask/tasks/adapters/rest/handlers"
	"teamtask/tasks/config"
	"teamtask/tasks/core"
)

type store interface {
	core.DB
	Close() error
}

func main() {
	// config
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "teamtask server configuration file")
	flag.Parse()

	// a missing .env is fine, real env still applies
	_ = godotenv.Load()

	cfg := config.MustLoad(configPath)

	// logger
	log := mustMakeLogger(cfg.LogLevel, cfg.LogFile)

	if err := run(cfg, log); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	log.Info("starting teamtask server", "storage", cfg.Storage.Driver)

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Error("failed to close storage", "error", err)
		}
	}()

	tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to init tokens: %w", err)
	}

	guarded := guard.New(log, storage, guard.Settings{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
	})

	// service
	svc := core.NewService(log, guarded, auth.NewBcryptHasher(), core.WithHistoryLimit(cfg.HistoryLimit))

	deps := handlers.Deps{
		Accounts: svc,
		Tasks:    svc,
		History:  svc,
		Tokens:   tokens,
		Pingers:  map[string]core.Pinger{"storage": svc},
	}

	mux := http.NewServeMux()
	handler := handlers.Register(mux, log, deps, cfg.HTTP.Timeout)

	server := http.Server{
		Addr:              cfg.HTTP.Address,
		ReadHeaderTimeout: cfg.HTTP.Timeout,
		Handler:           handler,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("teamtask http server is running", "address", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		storage, err := db.New(log, cfg.Storage.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to db: %w", err)
		}
		if err := storage.Migrate(); err != nil {
			_ = storage.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		return storage, nil

	case config.DriverMongo:
		storage, err := mongodb.New(ctx, log, cfg.Storage.Address, cfg.Storage.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		if err := storage.Migrate(); err != nil {
			_ = storage.Close()
			return nil, fmt.Errorf("failed to create mongo indexes: %w", err)
		}
		return storage, nil

	case config.DriverMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func mustMakeLogger(levelStr, file string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if file != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
