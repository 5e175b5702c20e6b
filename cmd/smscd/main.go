package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkosms/smscd/internal/admin"
	"github.com/arkosms/smscd/internal/admission"
	"github.com/arkosms/smscd/internal/auth"
	"github.com/arkosms/smscd/internal/config"
	"github.com/arkosms/smscd/internal/delivery"
	"github.com/arkosms/smscd/internal/logging"
	"github.com/arkosms/smscd/internal/message"
	"github.com/arkosms/smscd/internal/server"
	"github.com/arkosms/smscd/internal/stats"
	"github.com/arkosms/smscd/internal/store/memory"
	"github.com/arkosms/smscd/internal/store/postgres"
	"github.com/arkosms/smscd/internal/user"
)

func main() {
	appCtx, rootCancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer rootCancel()

	cfg, err := config.Load()
	if err != nil {
		// Use standard log before slog is configured.
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel <= slog.LevelDebug,
	}
	baseHandler := slog.NewJSONHandler(os.Stdout, opts)
	slog.SetDefault(slog.New(logging.NewContextHandler(baseHandler)))
	slog.Info("Logging initialized", "level", logLevel.String())

	encryptor := auth.BcryptEncryptor{}

	// Without DATABASE_URL the server runs on in-memory stores, which is
	// only useful for local development.
	var (
		users    user.Manager
		messages message.Manager
	)
	if cfg.DatabaseURL != "" {
		slog.Info("Connecting to database...")
		dbpool, err := pgxpool.New(appCtx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Unable to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer dbpool.Close()
		if err := dbpool.Ping(appCtx); err != nil {
			slog.Error("Failed to ping database", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("Database connection pool established")
		users = postgres.NewUserStore(dbpool, encryptor)
		messages = postgres.NewMessageStore(dbpool)
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory stores")
		users = memory.NewUserStore(encryptor)
		messages = memory.NewMessageStore()
	}

	st := stats.New()
	admissionCtl := admission.NewController(users, st)

	scheduler := delivery.NewScheduler(messages, st, nil, delivery.Config{
		ManagerThreads:  cfg.Delivery.ManagerThreads,
		DeliveryThreads: cfg.Delivery.MaxDeliveryThreads,
		PollTime:        cfg.Delivery.PollTime,
		RetryPeriods:    cfg.Delivery.RetryPeriodList(),
	})
	if err := scheduler.Start(appCtx); err != nil {
		slog.Error("Failed to start delivery scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	handler := server.NewHandler(server.HandlerConfig{
		SystemID:         cfg.Server.SystemID,
		MaxBinds:         cfg.Server.MaxBinds,
		MaxBindFailures:  cfg.Server.MaxBindFailures,
		BindFailureDelay: cfg.Server.BindFailureDelay,
		WriteLockTimeout: cfg.Server.WriteLockTime,
		IdleTimeout:      cfg.Server.IdleTimeout,
	}, admissionCtl, messages, st, scheduler, nil)

	listener, err := server.NewListener(cfg.Server, handler, st)
	if err != nil {
		slog.Error("Failed to build SMPP listener", slog.Any("error", err))
		os.Exit(1)
	}

	adminServer := admin.NewServer(cfg.Admin, st, listener)

	var wg sync.WaitGroup
	slog.Info("Starting application components...")

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Run(appCtx); err != nil {
			slog.Error("SMPP listener failed", slog.Any("error", err))
			rootCancel()
		}
		slog.Info("SMPP listener stopped.")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := adminServer.ListenAndServe(); err != nil {
			slog.Error("Admin HTTP server failed", slog.Any("error", err))
			rootCancel()
		}
	}()

	<-appCtx.Done()
	slog.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()

	adminServer.Shutdown(shutdownCtx)
	listener.Stop()
	scheduler.Destroy()

	wg.Wait()
	slog.Info("Shutdown complete")
}
