package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/eldershield/eldershield-backend/internal/api/rest"
	ws "github.com/eldershield/eldershield-backend/internal/api/websocket"
	"github.com/eldershield/eldershield-backend/internal/infrastructure/cache"
	"github.com/eldershield/eldershield-backend/internal/infrastructure/config"
	"github.com/eldershield/eldershield-backend/internal/infrastructure/database"
	"github.com/eldershield/eldershield-backend/internal/infrastructure/telemetry"
	"github.com/eldershield/eldershield-backend/internal/metrics"
	"github.com/eldershield/eldershield-backend/internal/service/alertmanager"
	"github.com/eldershield/eldershield-backend/internal/service/connectivity"
	"github.com/eldershield/eldershield-backend/internal/service/dispatch"
	"github.com/eldershield/eldershield-backend/internal/service/dispatch/providers"
	"github.com/eldershield/eldershield-backend/internal/service/intake"
	"github.com/eldershield/eldershield-backend/internal/service/riskscorer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("engine exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryProvider, err := telemetry.Initialize(ctx, &telemetry.Config{
		ServiceName:    "eldershield-engine",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.OTLPEndpoint != "",
		SamplingRate:   cfg.Telemetry.SampleRate,
		ExportTimeout:  30 * time.Second,
		BatchTimeout:   5 * time.Second,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	pool, err := database.NewConnectionPool(&cfg.Database, zapLogger)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.NewClient(ctx, cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	dispatchMetrics := metrics.NewDispatchMetrics(registry)
	scorerMetrics := metrics.NewScorerMetrics(registry)
	auditMetrics := metrics.NewAuditMetrics(registry)

	// Storage
	auditLog := database.NewAuditRepository(pool.Pool(), zapLogger).WithMetrics(auditMetrics)
	behaviorStore := database.NewBehaviorRepository(pool.Pool())
	assessmentStore := database.NewAssessmentRepository(pool.Pool())
	alertStore := database.NewAlertRepository(pool.Pool())
	manualQueue := database.NewManualQueueRepository(pool.Pool())
	contacts := database.NewContactRepository(pool.Pool())
	assessmentCache := cache.NewAssessmentCache(redisClient, 24*time.Hour)
	presence := cache.NewHeartbeatPresence(redisClient)

	// Transport providers
	gateway := providers.NewGateway(providers.GatewayConfig{
		BaseURL:      cfg.Notify.GatewayURL,
		APIKey:       cfg.Notify.APIKey,
		Timeout:      cfg.Notify.Timeout,
		RateLimitRPS: cfg.Notify.RateLimitRPS,
	})
	deviceBridge := providers.NewDeviceBridge(0, zapLogger)

	// Connectivity
	coordinator := connectivity.NewCoordinator(gateway, presence, auditLog, connectivity.Config{
		HeartbeatInterval: cfg.Connectivity.HeartbeatInterval,
		MissThreshold:     cfg.Connectivity.MissThreshold,
		ProbeTimeout:      cfg.Connectivity.ProbeTimeout,
	}, zapLogger)
	coordinator.OnReconnect(func(hookCtx context.Context) {
		open, err := manualQueue.CountOpen(hookCtx)
		if err != nil {
			zapLogger.Warn("manual queue check after reconnect failed", zap.Error(err))
			return
		}
		if open > 0 {
			zapLogger.Warn("manual interventions pending after reconnect", zap.Int("open", open))
		}
	})
	go coordinator.Run(ctx)
	defer coordinator.Stop()

	// Dispatch
	dispatcher := dispatch.NewService(dispatch.Deps{
		SMS:      gateway,
		Calls:    gateway,
		Push:     gateway,
		Local:    deviceBridge,
		Advocate: gateway,
		Manual:   manualQueue,
		Contacts: contacts,
		Conn:     coordinator,
		AuditLog: auditLog,
		Metrics:  dispatchMetrics,
		Logger:   zapLogger,
	}, dispatch.Config{
		ChannelTimeout:     cfg.Dispatch.ChannelTimeout,
		CriticalSMSRepeats: cfg.Dispatch.CriticalSMSRepeats,
		SMSSpacing:         cfg.Dispatch.SMSSpacing,
		ManualRetryBackoff: cfg.Dispatch.ManualRetryBackoff,
	})
	defer dispatcher.Shutdown()

	// Scoring pipeline. Assessments are written through the cache so the
	// emergency path reads the subject's current risk without a DB hit.
	cachedAssessments := cache.NewCachingAssessmentStore(assessmentStore, assessmentCache, zapLogger)
	scorer := riskscorer.NewService(behaviorStore, cachedAssessments, auditLog, riskConfig(cfg.Risk), zapLogger)
	alertSvc := alertmanager.NewService(alertStore, dispatcher, auditLog, zapLogger)
	intakeSvc := intake.NewService(behaviorStore, scorer, alertSvc, auditLog, intake.Config{
		Lookback: time.Duration(cfg.Risk.LookbackDays) * 24 * time.Hour,
	}, scorerMetrics, zapLogger)

	// API
	hub := ws.NewHub(zapLogger)
	handler := rest.NewHandler(rest.Services{
		Intake:       intakeSvc,
		Alerts:       alertSvc,
		Dispatcher:   dispatcher,
		Coordinator:  coordinator,
		AuditLog:     auditLog,
		SubjectRisk:  assessmentCache,
		AuditMetrics: auditMetrics,
		Hub:          hub,
	}, registry)
	server := rest.NewServer(cfg, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("engine started",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return server.Shutdown(context.Background())
}

func riskConfig(c config.RiskConfig) riskscorer.Config {
	return riskscorer.Config{
		LookbackDays: c.LookbackDays,

		ContactAttemptWeight:   c.ContactAttemptWeight,
		ContactTamperingWeight: c.ContactTamperingWeight,

		BurstThreshold: c.BurstThreshold,
		BurstWindow:    c.BurstWindow,
		BurstScore:     c.BurstScore,

		PermissionDenialThreshold: c.PermissionDenialThreshold,
		PermissionDenialWeight:    c.PermissionDenialWeight,
		SensitivePermissionWeight: c.SensitivePermissionWeight,

		NightStartHour:   c.NightStartHour,
		NightEndHour:     c.NightEndHour,
		NightThreshold:   c.NightThreshold,
		NightWeight:      c.NightWeight,
		WeekendRatio:     c.WeekendRatio,
		WeekendMinEvents: c.WeekendMinEvents,
		WeekendScore:     c.WeekendScore,

		SafetyTamperingWeight: c.SafetyTamperingWeight,
		SurveillanceThreshold: c.SurveillanceThreshold,
		SurveillanceScore:     c.SurveillanceScore,

		EscalationHistory: c.EscalationHistory,
		EscalationMargin:  c.EscalationMargin,
		EscalationScore:   c.EscalationScore,

		PanicTriggerScore:     c.PanicTriggerScore,
		TamperingTriggerScore: c.TamperingTriggerScore,
	}
}
