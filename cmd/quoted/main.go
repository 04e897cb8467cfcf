// Package main is the entry point for the quote engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/quote-engine/business/quoting"
	"github.com/fd1az/quote-engine/business/quoting/app"
	quotingDI "github.com/fd1az/quote-engine/business/quoting/di"
	"github.com/fd1az/quote-engine/business/quoting/infra/report"
	"github.com/fd1az/quote-engine/internal/apm"
	"github.com/fd1az/quote-engine/internal/config"
	"github.com/fd1az/quote-engine/internal/health"
	"github.com/fd1az/quote-engine/internal/logger"
	"github.com/fd1az/quote-engine/internal/metrics"
	"github.com/fd1az/quote-engine/internal/monolith"
	"github.com/fd1az/quote-engine/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs and one line per quote (no TUI)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("quoted %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	tuiMode := !*cliMode

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The dashboard owns the terminal, so logs are dropped in TUI mode.
	var out io.Writer = os.Stderr
	if tuiMode {
		out = io.Discard
	}
	log := logger.New(out, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	defer log.Sync()

	log.Info(ctx, "starting quote engine",
		"version", version,
		"environment", cfg.App.Environment,
		"venues", len(cfg.Venues),
	)

	shutdownTelemetry, err := setupTelemetry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	healthServer := health.NewServer(cfg.Health.Port, version, log)
	healthServer.Start()
	defer healthServer.Stop(context.Background())
	log.Info(ctx, "health server started", "port", cfg.Health.Port)

	mono, err := monolith.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	var (
		dashboard  *ui.Dashboard
		publishers []app.QuotePublisher
	)
	if tuiMode {
		dashboard = ui.NewDashboard("Quote Engine", tea.WithAltScreen())
		publishers = append(publishers, report.NewDashboardPublisher(dashboard))
	} else {
		publishers = append(publishers, report.NewConsolePublisher(os.Stdout))
	}

	quotingModule := &quoting.Module{Publishers: publishers, Health: healthServer}
	modules := []monolith.Module{quotingModule}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mono.StopModules(stopCtx, modules...); err != nil {
			log.Error(stopCtx, "error stopping modules", "error", err)
		}
	}()
	healthServer.MarkReady()

	watcher := quotingDI.GetWatcher(mono.Services())
	if !tuiMode {
		log.Info(ctx, "watching pairs", "count", len(cfg.Watch.Pairs), "use_blocks", cfg.Watch.UseBlocks)
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watcher: %w", err)
		}
		log.Info(ctx, "shutting down")
		return nil
	}

	var status report.StatusSource
	if head := quotingDI.GetHeadTrigger(mono.Services()); head != nil {
		status = head
	}
	return runTUI(ctx, dashboard, watcher, status)
}

func runTUI(ctx context.Context, dashboard *ui.Dashboard, watcher *app.Watcher, status report.StatusSource) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		err := watcher.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			dashboard.Send(ui.ErrorMsg{Error: err})
		}
		errCh <- err
	}()

	if status != nil {
		go report.NewStatusForwarder("ethereum", status, dashboard).Run(ctx, time.Second)
	}

	// A signal closes the dashboard the same way the quit key does.
	go func() {
		<-ctx.Done()
		dashboard.Quit()
	}()

	if err := dashboard.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	cancel()

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watcher: %w", err)
	}
	return nil
}

// setupTelemetry installs the tracer and meter providers and returns their shutdown.
func setupTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (func(), error) {
	if !cfg.Telemetry.Enabled {
		return func() {}, nil
	}

	headers, err := apm.ParseHeaders(cfg.Telemetry.OTLPHeaders)
	if err != nil {
		return nil, fmt.Errorf("telemetry.otlp_headers: %w", err)
	}

	traceProvider, err := apm.NewTraceProvider(apm.Config{
		Provider:    apm.Provider(cfg.Telemetry.Tracer),
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Headers:     headers,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	opts := []metrics.OptionFn{metrics.WithServiceName(cfg.Telemetry.ServiceName)}
	switch cfg.Telemetry.Metrics {
	case "prometheus":
		opts = append(opts, metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}))
	case "otlp":
		opts = append(opts, metrics.WithProviderConfig(metrics.ProviderCfg{
			Provider: metrics.OtelCollector,
			Endpoint: cfg.Telemetry.OTLPEndpoint,
			Headers:  headers,
		}))
	}
	meterProvider, err := metrics.NewMetricProvider(ctx, opts...)
	if err != nil {
		_ = traceProvider.Stop(context.Background())
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	log.Info(ctx, "metrics initialized", "exporter", cfg.Telemetry.Metrics)

	return func() {
		if meterProvider != nil {
			_ = meterProvider.Shutdown(context.Background())
		}
		_ = traceProvider.Stop(context.Background())
	}, nil
}
