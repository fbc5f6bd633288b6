package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/redis/go-redis/v9"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nyashahama/mba-scholarship-backend/internal/api"
	"github.com/nyashahama/mba-scholarship-backend/internal/config"
	"github.com/nyashahama/mba-scholarship-backend/internal/db"
	"github.com/nyashahama/mba-scholarship-backend/internal/email"
	"github.com/nyashahama/mba-scholarship-backend/internal/quiz"
	"github.com/nyashahama/mba-scholarship-backend/internal/sequence"
	"github.com/nyashahama/mba-scholarship-backend/internal/store"
	"github.com/nyashahama/mba-scholarship-backend/internal/worker"
)

func main() {
	// ── Config ────────────────────────────────────────────────────────────────
	// Loaded before the logger so LOG_FILE can be honoured. Config errors go
	// to stderr through a bootstrap logger.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// newLogger returns JSON in production and text elsewhere. With LOG_FILE set,
// output is also written to a size-rotated file.
func newLogger(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port, "email_provider", cfg.EmailProvider)

	// ── Database ──────────────────────────────────────────────────────────────
	pool, queries, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	if cfg.AutoMigrate {
		version, changed, err := db.Migrate(pool)
		if err != nil {
			return err
		}
		logger.Info("database migrated", "version", version, "changed", changed)
	}

	// ── Store (atomic multi-step writes) ──────────────────────────────────────
	st := store.New(pool, queries)

	// ── Email ─────────────────────────────────────────────────────────────────
	mailer, err := newSender(cfg, logger)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}

	// ── Redis (optional cycle lock) ───────────────────────────────────────────
	var locker worker.Locker
	if cfg.RedisURL != "" {
		rc, err := openRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		locker = worker.NewRedisLocker(rc, "scholarship:")
		logger.Info("redis connected; cycle lock shared across replicas")
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	advancer := worker.NewAdvancer(
		queries,
		mailer,
		sequence.Resolver{TrackBaseURL: cfg.BaseURL},
		worker.AdvancerConfig{
			SendTimeout:        cfg.SendTimeout,
			ScheduledBatchSize: cfg.ScheduledBatchSize,
		},
		logger,
	)
	runnerCfg := worker.DefaultRunnerConfig()
	runnerCfg.PollInterval = cfg.PollInterval
	runner := worker.NewRunner(advancer, locker, runnerCfg, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(
		queries,
		st,
		advancer, // *Advancer satisfies api.Mailer
		runner,   // *Runner satisfies api.Cycler
		quiz.Default(),
		api.Config{
			ApplicationFormURL: cfg.ApplicationFormURL,
			AdminJWTSecret:     cfg.AdminJWTSecret,
			AllowedOrigin:      cfg.AllowedOrigin,
			PromotionDeadline:  cfg.PromotionDeadline,
			Env:                cfg.Env,
			RequestTimeout:     30 * time.Second,
			SendTimeout:        cfg.SendTimeout,
			CycleTimeout:       runnerCfg.CycleTimeout,
		},
		logger,
	)

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // mail-sending admin routes extend their own deadline
		IdleTimeout:  120 * time.Second,
	}

	// ── gRPC health ───────────────────────────────────────────────────────────
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	// ── Listener (HTTP/1 and gRPC share the port) ─────────────────────────────
	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	mux := cmux.New(lis)
	grpcLis := mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpLis := mux.Match(cmux.Any())

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	// Root context cancelled by OS signal. Runner and servers all respect it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runnerDone := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(runnerDone)
	}()

	serverErr := make(chan error, 3)
	go func() {
		if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, cmux.ErrListenerClosed) {
			serverErr <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, cmux.ErrListenerClosed) {
			serverErr <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		logger.Info("server listening", "addr", lis.Addr().String())
		if err := mux.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
			serverErr <- fmt.Errorf("cmux: %w", err)
		}
	}()

	// Block until either a signal arrives or a server dies unexpectedly.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		stop()
		<-runnerDone
		return err
	}

	healthSrv.Shutdown() // health checks see NOT_SERVING while requests drain

	// Give in-flight HTTP requests up to 20 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	grpcSrv.GracefulStop()
	mux.Close()

	// Start returns once an in-flight cycle has finished.
	<-runnerDone
	logger.Info("shutdown complete")
	return nil
}

// openDB opens the connection pool and verifies it is reachable.
func openDB(dsn string) (*sql.DB, *db.Queries, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}

	// Tune the connection pool.
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(10)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}

	return pool, db.New(pool), nil
}

// newSender builds the configured provider, wrapped in a fallback to the
// other provider when EMAIL_FALLBACK names one.
func newSender(cfg *config.Config, logger *slog.Logger) (email.Sender, error) {
	from := email.From{Addr: cfg.EmailFromAddr, Name: cfg.EmailFromName}

	build := func(provider string) (email.Sender, error) {
		switch provider {
		case config.ProviderResend:
			return email.NewResendClient(cfg.ResendAPIKey, from), nil
		case config.ProviderSMTP:
			return email.NewSMTPSender(email.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				From:     from,
			}), nil
		default:
			return nil, fmt.Errorf("unknown provider %q", provider)
		}
	}

	primary, err := build(cfg.EmailProvider)
	if err != nil {
		return nil, err
	}
	if cfg.EmailFallback == "" {
		logger.Info("email: single provider", "provider", cfg.EmailProvider)
		return primary, nil
	}

	secondary, err := build(cfg.EmailFallback)
	if err != nil {
		return nil, err
	}
	logger.Info("email: provider with fallback", "primary", cfg.EmailProvider, "fallback", cfg.EmailFallback)
	return email.NewFallbackSender(primary, secondary, logger), nil
}

// openRedis parses url, connects and pings once.
func openRedis(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return rc, nil
}
