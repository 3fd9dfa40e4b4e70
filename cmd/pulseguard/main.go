package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/pulseguard/pulseguard/internal/alerter"
	"github.com/pulseguard/pulseguard/internal/api"
	"github.com/pulseguard/pulseguard/internal/audit"
	"github.com/pulseguard/pulseguard/internal/breaker"
	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/escalation"
	"github.com/pulseguard/pulseguard/internal/incident"
	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/notifier"
	"github.com/pulseguard/pulseguard/internal/platform"
	"github.com/pulseguard/pulseguard/internal/ratelimit"
	"github.com/pulseguard/pulseguard/internal/recovery"
	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/pulseguard/pulseguard/internal/version"
	"github.com/rs/zerolog"
)

func main() {
	configDir := flag.String("config", "/config", "Path to configuration directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("version", version.GetVersion()).
		Str("commit", version.GetCommit()).
		Logger()

	logger.Info().Msg("Starting PulseGuard")

	cfg, err := config.LoadConfigDir(*configDir)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("config_dir", *configDir).
			Msg("Failed to load configuration")
	}

	logger.Info().
		Int("fault_types", len(cfg.Alerting.FaultTypes)).
		Int("channels", len(cfg.Channels.Channels)).
		Int("escalation_levels", len(cfg.Escalation.Levels)).
		Msg("Configuration loaded")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	auditRing := audit.NewRingStore(1000)
	auditWriter := audit.NewWriter(logger, auditRing)

	breakers := breaker.NewRegistry(logger, breaker.Config{
		FailureThreshold: cfg.Alerting.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Alerting.Breaker.ResetTimeout.Std(),
	})

	windows := make(map[string]ratelimit.Window, len(cfg.Channels.Channels))
	for name, ch := range cfg.Channels.Channels {
		windows[name] = ratelimit.Window{
			Capacity: ch.RateLimit.Capacity,
			Duration: ch.RateLimit.Window.Std(),
		}
	}
	limiter := ratelimit.NewLimiter(logger, windows)

	// Recovery strategies are bound per fault type from the configured
	// strategy names, all executing through the platform client.
	plat := platform.NewClient(logger)
	strategies := recovery.NewRegistry(logger)
	for faultType, ft := range cfg.Alerting.FaultTypes {
		if ft.Recovery == nil {
			continue
		}
		switch ft.Recovery.Strategy {
		case "cache_refresh":
			strategies.Register(faultType, recovery.CacheRefresh(plat))
		case "service_restart":
			strategies.Register(faultType, recovery.ServiceRestart(plat))
		case "fallback_content":
			strategies.Register(faultType, recovery.FallbackContent(plat))
		case "connection_reset":
			strategies.Register(faultType, recovery.ConnectionReset(plat))
		default:
			logger.Warn().
				Str("fault_type", faultType).
				Str("strategy", ft.Recovery.Strategy).
				Msg("Unknown recovery strategy, fault type will alert without recovery")
		}
	}

	store := alerter.NewStore(logger, m)
	adapters := notifier.BuildAdapters(logger, cfg.Channels)
	dispatcher := notifier.NewDispatcher(logger, cfg.Channels, adapters, limiter, store, auditWriter, m)

	opsChannel := cfg.Channels.OpsChannel
	if opsChannel == "" {
		if def := cfg.Channels.Routes["default"]; len(def) > 0 {
			opsChannel = def[0]
		}
	}
	opsNotify := func(ctx context.Context, subject, detail string) {
		if opsChannel == "" {
			return
		}
		err := dispatcher.SendDirect(ctx, opsChannel, notifier.Message{
			Title:    subject,
			Body:     detail,
			Severity: types.SeverityCritical,
			Category: types.CategorySystem,
		})
		if err != nil {
			logger.Error().Err(err).Str("channel", opsChannel).Msg("Ops notification failed")
		}
	}

	engine := alerter.NewEngine(logger, cfg.Alerting, breakers, strategies, store, auditWriter, m, opsNotify)
	engine.RegisterImmediateAction(types.CategoryMedical, func(ctx context.Context, alert *types.Alert) error {
		auditWriter.Record(ctx, audit.Record{
			Kind:   "patient_data_protection",
			RefID:  alert.ID,
			Actor:  "system",
			Detail: "patient-facing output locked down pending review",
		})
		return nil
	})
	engine.RegisterImmediateAction(types.CategoryCompliance, func(ctx context.Context, alert *types.Alert) error {
		auditWriter.Record(ctx, audit.Record{
			Kind:   "compliance_hold",
			RefID:  alert.ID,
			Actor:  "system",
			Detail: "affected content flagged for compliance review",
		})
		return nil
	})

	planner := escalation.NewPlanner(logger, cfg.Escalation)

	// The pipeline does not exist yet when the scheduler and orchestrator
	// are built; the closures dereference it at call time.
	var pipe *alerter.Pipeline
	scheduler := escalation.NewScheduler(logger, store, func(alert types.Alert, level escalation.Level) {
		pipe.NotifyEscalation(alert, level)
	}, m)
	orchestrator := incident.NewOrchestrator(logger, cfg.Incidents, func(inc types.Incident, subject, detail string) {
		pipe.NotifyIncidentTeam(inc, subject, detail)
	}, auditWriter, m)

	orchestrator.RegisterAction("capture_diagnostics", func(ctx context.Context, inc *types.Incident) error {
		logger.Info().Str("incident_id", inc.ID).Msg("Diagnostics snapshot captured")
		return nil
	})
	orchestrator.RegisterAction("reset_connections", func(ctx context.Context, inc *types.Incident) error {
		return plat.Reset(ctx, "default")
	})
	orchestrator.RegisterAction("activate_fallback", func(ctx context.Context, inc *types.Incident) error {
		return plat.Activate(ctx, "default")
	})

	pipe = alerter.NewPipeline(logger, engine, planner, scheduler, dispatcher, orchestrator, cfg.Channels, auditWriter)

	apiPort := os.Getenv("API_PORT")
	if apiPort == "" {
		apiPort = "8080"
	}
	apiServer := api.NewServer(logger, pipe, breakers, auditRing, registry, apiPort)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("API server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Str("port", apiPort).Msg("PulseGuard running, press Ctrl+C to stop")

	<-sigChan
	logger.Info().Msg("Shutting down...")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}

	logger.Info().Msg("PulseGuard stopped")
}
