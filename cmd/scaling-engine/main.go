package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arcadia-invest/scaling-engine/internal/api"
	"github.com/arcadia-invest/scaling-engine/internal/config"
	"github.com/arcadia-invest/scaling-engine/internal/controller"
	"github.com/arcadia-invest/scaling-engine/internal/database"
	"github.com/arcadia-invest/scaling-engine/internal/telemetry"
	"github.com/arcadia-invest/scaling-engine/pkg/collector"
	"github.com/arcadia-invest/scaling-engine/pkg/engine"
	"github.com/arcadia-invest/scaling-engine/pkg/events"
	"github.com/arcadia-invest/scaling-engine/pkg/executor"
	"github.com/arcadia-invest/scaling-engine/pkg/forecast"
	"github.com/arcadia-invest/scaling-engine/pkg/models"
	"github.com/arcadia-invest/scaling-engine/pkg/provider"
)

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func buildRegistry(cfg *config.Config, logger *zap.SugaredLogger) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	if cfg.Providers.Kubernetes != nil {
		p := provider.NewKubernetesProvider(cfg.Providers.Kubernetes.BaseURL,
			cfg.Providers.Kubernetes.Namespace, cfg.Executor.ProviderTimeout())
		if err := registry.Register(p); err != nil {
			return nil, err
		}
		logger.Infow("registered kubernetes provider", "url", cfg.Providers.Kubernetes.BaseURL)
	}
	if cfg.Providers.Nomad != nil {
		p := provider.NewNomadProvider(cfg.Providers.Nomad.BaseURL,
			cfg.Providers.Nomad.Token, cfg.Executor.ProviderTimeout())
		if err := registry.Register(p); err != nil {
			return nil, err
		}
		logger.Infow("registered nomad provider", "url", cfg.Providers.Nomad.BaseURL)
	}
	if cfg.Providers.Simulated {
		initial := make(map[string]int)
		limits := make(map[string]models.InstanceLimits)
		for _, svc := range cfg.Services {
			initial[svc.Name] = svc.MinInstances
			limits[svc.Name] = models.InstanceLimits{Min: svc.MinInstances, Max: svc.MaxInstances}
		}
		if err := registry.Register(provider.NewSimulatedProvider(initial, limits)); err != nil {
			return nil, err
		}
		logger.Infow("registered simulated provider")
	}

	return registry, nil
}

func run() error {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Infow("starting scaling engine",
		"services", len(cfg.Services), "rules", len(cfg.Rules))

	db, err := database.NewDatabase(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer db.Close()
	repo := database.NewRepository(db)

	bus := events.NewBus(0)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	metricsSub := bus.Subscribe()

	recorder := database.NewRecorder(repo, logger)
	recorder.Start(bus.Subscribe())

	source := collector.NewHTTPSource(cfg.Collector.MetricsURL, cfg.Collector.FetchTimeout())
	col := collector.New(source, cfg.ServiceNames(), collector.Config{
		Interval:            cfg.Collector.Interval(),
		FetchTimeout:        cfg.Collector.FetchTimeout(),
		StaleAfterIntervals: cfg.Collector.StaleAfterIntervals,
	}, bus, logger)

	forecaster := forecast.NewForecaster()

	rules := make([]models.ScalingRule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, *r)
	}
	eng, err := engine.New(rules, cfg.Profiles, engine.Config{
		Cooldowns: engine.CooldownConfig{
			ScaleUp:   cfg.Engine.ScaleUpCooldown(),
			ScaleDown: cfg.Engine.ScaleDownCooldown(),
		},
		Limits:      cfg.Limits(),
		HistorySize: cfg.Engine.HistorySize,
	}, forecaster, bus, logger)
	if err != nil {
		return fmt.Errorf("init decision engine: %w", err)
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("init providers: %w", err)
	}

	exe, err := executor.New(registry, executor.Config{
		ProviderTimeout: cfg.Executor.ProviderTimeout(),
		HistorySize:     cfg.Executor.HistorySize,
		Platforms:       cfg.Platforms(),
	}, nil, bus, logger)
	if err != nil {
		return fmt.Errorf("init executor: %w", err)
	}

	metrics := telemetry.New(promRegistry, bus, func() int { return len(exe.ActiveScaling()) })
	go metrics.ObserveEvents(metricsSub)

	ctrl := controller.New(col, eng, exe, cfg.ServiceNames(), cfg.Engine.DecisionInterval(), logger)
	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("start control loop: %w", err)
	}

	server := api.NewServer(col, eng, exe, repo, bus, promRegistry, cfg.Server.Addr())
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	logger.Infow("api server listening", "addr", cfg.Server.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infow("shutting down", "signal", sig.String())
	case err := <-serverErr:
		logger.Errorw("api server exited", "error", err)
	}

	ctrl.Stop()
	bus.Close()
	recorder.Wait()
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scaling-engine: %v\n", err)
		os.Exit(1)
	}
}
