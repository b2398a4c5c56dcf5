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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/vortexhq/vortex-auth/pkg/auth"
	"github.com/vortexhq/vortex-auth/pkg/config"
	"github.com/vortexhq/vortex-auth/pkg/events"
	"github.com/vortexhq/vortex-auth/pkg/notification"
	"github.com/vortexhq/vortex-auth/pkg/password"
	"github.com/vortexhq/vortex-auth/pkg/ratelimit"
	"github.com/vortexhq/vortex-auth/pkg/tokengen"
)

func main() {
	// .env is optional; real deployments configure through the environment
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Db.ToDatabaseURL())
	if err != nil {
		logger.Error("failed to create database pool", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to connect to database", "host", cfg.Db.Host, "err", err)
		os.Exit(1)
	}

	repo := auth.NewPostgresRepository(pool)

	var sink events.Sink
	if cfg.Events.Enabled {
		sink = events.NewKafkaSink(cfg.Events.Brokers, cfg.Events.Topic)
		logger.Info("publishing events to kafka", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	} else {
		sink = &events.LogSink{Logger: logger}
	}
	publisher := events.NewAsyncPublisher(sink, cfg.Events.QueueSize, logger)
	defer publisher.Close()

	var notifier notification.Notifier = notification.Noop{}
	if cfg.Email.Enabled {
		notifier, err = notification.NewEmailNotifier(notification.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			TLS:      cfg.Email.TLS,
		})
		if err != nil {
			logger.Error("failed to create email notifier", "err", err)
			os.Exit(1)
		}
	}

	policy := password.DefaultPolicy()
	policy.MinLength = cfg.Password.MinLength
	policy.MaxLength = cfg.Password.MaxLength

	service := auth.NewService(
		repo,
		password.NewBcryptHasher(cfg.Password.BcryptCost),
		policy,
		tokengen.NewIssuer(cfg.Jwt.Secret, cfg.Jwt.Issuer, cfg.Jwt.AccessTokenExpiry, cfg.Jwt.RefreshTokenExpiry),
		ratelimit.NewLimiter(repo, cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window),
		publisher,
		notifier,
		auth.ServiceConfig{
			ResetTokenExpiry: cfg.Password.ResetTokenExpiry,
			ResetTokenLength: cfg.Password.ResetTokenLength,
			ResetURL:         cfg.Password.ResetURL,
		},
		logger.With("component", "auth"),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	handle := auth.NewHandle(service, logger)
	r.Route("/api/auth", handle.Routes)

	server := &http.Server{
		Addr:    cfg.App.Addr(),
		Handler: r,
	}

	go func() {
		logger.Info("auth server listening", "addr", cfg.App.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
