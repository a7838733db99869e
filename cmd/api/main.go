package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/clinic-platform/cmd/mainconfig"
	"github.com/clinicore/clinic-platform/internal/api/router"
	"github.com/clinicore/clinic-platform/internal/appointments"
	appconfig "github.com/clinicore/clinic-platform/internal/config"
	"github.com/clinicore/clinic-platform/internal/directory"
	"github.com/clinicore/clinic-platform/internal/http/handlers"
	"github.com/clinicore/clinic-platform/internal/locking"
	"github.com/clinicore/clinic-platform/internal/notify"
	"github.com/clinicore/clinic-platform/internal/observability/metrics"
	"github.com/clinicore/clinic-platform/internal/timeutil"
	"github.com/clinicore/clinic-platform/internal/video"
	"github.com/clinicore/clinic-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	zone, err := timeutil.LoadZone(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "timezone", cfg.ClinicTimezone, "error", err)
		os.Exit(1)
	}

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewAppointmentMetrics(registry)

	dirRepo := directory.NewRepository(pool)
	apptRepo := appointments.NewRepository(pool)
	feedStore := notify.NewStore(pool)

	var emailSender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		emailSender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		emailSender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	default:
		emailSender = notify.NewStubEmailSender(logger)
	}

	var pushSender notify.PushSender
	if cfg.PushGatewayURL != "" {
		pushSender = notify.NewHTTPPushSender(cfg.PushGatewayURL, cfg.PushServerKey, cfg.OutboundTimeout, logger)
	} else {
		pushSender = notify.NewStubPushSender(logger)
	}

	orchestrator := notify.NewOrchestrator(feedStore, dirRepo, emailSender, pushSender, zone, appMetrics, logger)

	videoClient := video.NewClient(video.Config{
		BaseURL:       cfg.VideoAPIBaseURL,
		APIKey:        cfg.VideoAPIKey,
		AppID:         cfg.VideoAppID,
		TokenTTL:      cfg.VideoTokenTTL,
		PublicBaseURL: cfg.PublicBaseURL,
	}, cfg.OutboundTimeout, logger)

	locker := locking.NewLocker(redisClient, cfg.LockTTL, logger)

	svc := appointments.NewService(appointments.ServiceConfig{
		Store:     apptRepo,
		Directory: dirRepo,
		Locks:     locker,
		Notifier:  orchestrator,
		Video:     videoClient,
		Zone:      zone,
		Logger:    logger,
		Metrics:   appMetrics,
	})
	slots := appointments.NewSlotCalculator(apptRepo, dirRepo, zone)

	routerCfg := &router.Config{
		Logger:        logger,
		Appointments:  handlers.NewAppointmentsHandler(svc, slots, zone, logger),
		Notifications: handlers.NewNotificationsHandler(feedStore, logger),
		Directory:     handlers.NewDirectoryHandler(dirRepo, logger),
		Health:        handlers.NewHealthHandler(pool),
		AuthSecret:    cfg.AuthJWTSecret,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
		CORSAllowedOrigins: []string{"*"},
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
