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

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/db"
	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/httpapi"
	"voice-agent-platform/internal/latency"
	"voice-agent-platform/internal/lifecycle"
	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/internal/notify"
	"voice-agent-platform/internal/numbers"
	"voice-agent-platform/internal/routing"
	"voice-agent-platform/internal/telemetry"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	sessions, err := auth.NewJWTSessions(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	sqlDB, err := db.Open(rootCtx, cfg.PostgresDSN())
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	// Lifecycle stream is best-effort; without redis status changes are only logged.
	var publisher notify.Publisher = notify.Noop{}
	if cfg.RedisEnabled() {
		rdb, err := notify.OpenRedis(rootCtx, cfg.RedisAddr())
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		publisher = notify.NewRedisPublisher(rdb, cfg.Redis.StreamMaxLen)
	}

	m := metrics.New()

	callStore := calls.NewPostgresStore(sqlDB, cfg.DB.QueryTimeout)
	eventRepo := events.NewPostgresRepo(sqlDB, cfg.DB.QueryTimeout)
	recorder := events.NewRecorder(eventRepo)
	aggregator := latency.NewAggregator(eventRepo, callStore)

	reconciler := &lifecycle.Reconciler{
		Recorder:  recorder,
		Store:     callStore,
		Resolver:  calls.NewResolver(callStore, cfg.Resolver.RecencyWindow),
		Latency:   aggregator,
		Publisher: publisher,
		Metrics:   m,
	}

	twilioToken := ""
	if cfg.Twilio.ValidateSignatures {
		twilioToken = cfg.Twilio.AuthToken
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		DB:              sqlDB,
		Metrics:         m,
		Sessions:        sessions,
		TelemetryToken:  cfg.AgentRuntime.TelemetryToken,
		TwilioAuthToken: twilioToken,
		PublicBaseURL:   cfg.Twilio.PublicBaseURL,
		Twilio: telephony.TwilioWebhookHandler{
			Numbers:    numbers.NewPostgresDirectory(sqlDB, cfg.DB.QueryTimeout),
			Calls:      callStore,
			Reconciler: reconciler,
			Router:     routing.NewEngine(),
			Metrics:    m,
			Dial: telephony.DialConfig{
				PublicBaseURL:   cfg.Twilio.PublicBaseURL,
				SIPHost:         cfg.AgentRuntime.SIPHost,
				SIPUser:         cfg.AgentRuntime.SIPUser,
				DialTimeout:     cfg.Twilio.DialTimeout,
				TeamDialTimeout: cfg.Twilio.TeamDialTimeout,
			},
		},
		Telemetry: telemetry.Handler{Reconciler: reconciler},
		API: httpapi.Handlers{
			Calls:   callStore,
			Events:  recorder,
			Latency: aggregator,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "lifecycle_stream", cfg.RedisEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("http server failed", "err", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
