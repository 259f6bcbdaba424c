package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aschepis/backscratcher/counsel/config"
	"github.com/aschepis/backscratcher/counsel/counsel"
	"github.com/aschepis/backscratcher/counsel/crisis"
	"github.com/aschepis/backscratcher/counsel/emotion"
	"github.com/aschepis/backscratcher/counsel/generation"
	"github.com/aschepis/backscratcher/counsel/llm"
	counsellogger "github.com/aschepis/backscratcher/counsel/logger"
	"github.com/aschepis/backscratcher/counsel/outreach"
	"github.com/aschepis/backscratcher/counsel/pii"
	"github.com/aschepis/backscratcher/counsel/runtime"
	"github.com/aschepis/backscratcher/counsel/server"
	"github.com/aschepis/backscratcher/counsel/storage"
	"github.com/aschepis/backscratcher/counsel/storage/memstore"
	storeredis "github.com/aschepis/backscratcher/counsel/storage/redis"
	"github.com/aschepis/backscratcher/counsel/storage/sqlite"
)

const (
	defaultSocketPath = "/tmp/counseld.sock"
	sweepTimeout      = 5 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command-line flags
	var (
		configPath  = flag.String("config", config.GetServerConfigPath(), "Path to server config file")
		socketPath  = flag.String("socket", defaultSocketPath, "Unix socket path for gRPC server")
		tcpAddress  = flag.String("tcp", "", "TCP address to listen on (e.g., localhost:50051). If set, disables Unix socket")
		logFile     = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty      = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		dbPath      = flag.String("db", "", "Path to SQLite database file (overrides storage.sqlite.path)")
		metricsAddr = flag.String("metrics", "", "Prometheus listen address (overrides metrics.addr)")
	)
	flag.Parse()

	// Validate that --logfile and --pretty are mutually exclusive
	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, closer, err := counsellogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closer.Close() //nolint:errcheck // Nothing useful to do on log close failure

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}

	// Command line flags win over the config file
	if *socketPath != defaultSocketPath {
		cfg.Server.Socket = *socketPath
	}
	if *tcpAddress != "" {
		cfg.Server.TCP = *tcpAddress
	}
	if *dbPath != "" {
		cfg.Storage.SQLite.Path = *dbPath
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	logger.Info().
		Str("config", *configPath).
		Str("socket", cfg.Server.Socket).
		Str("tcp", cfg.Server.TCP).
		Str("storage", cfg.Storage.Driver).
		Msg("counseld starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // No remedy for close errors at shutdown

	orchestrator, generator, err := buildOrchestrator(cfg, store, logger)
	if err != nil {
		return err
	}

	var (
		inbox     *outreach.Inbox
		scheduler *runtime.Scheduler
	)
	if cfg.Outreach.Enabled {
		inbox = outreach.NewInbox(cfg.Outreach.InboxSize, cfg.Outreach.Cooldown)
		sweeper := outreach.NewSweeper(store, inbox, cfg.Outreach, logger)
		scheduler, err = runtime.NewScheduler(sweeper, cfg.Outreach.Schedule, sweepTimeout, logger)
		if err != nil {
			return fmt.Errorf("failed to create outreach scheduler: %w", err)
		}
	}

	var limit server.RateLimit
	if !cfg.RateLimit.Disabled {
		limit = server.RateLimit{
			PerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:     cfg.RateLimit.Burst,
			IdleTTL:   cfg.RateLimit.IdleTTL,
		}
	}

	grpcServer := server.New(server.Config{
		SocketPath: cfg.Server.Socket,
		RateLimit:  limit,
		Info: server.Info{
			Provider:        generator.Provider(),
			Model:           generator.Model(),
			Storage:         cfg.Storage.Driver,
			OutreachEnabled: cfg.Outreach.Enabled,
		},
		Logger: logger,
	}, orchestrator, inbox)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if cfg.Server.TCP != "" {
			logger.Info().Str("address", cfg.Server.TCP).Msg("Listening on TCP")
			return grpcServer.ServeTCP(cfg.Server.TCP)
		}
		logger.Info().Str("socket", cfg.Server.Socket).Msg("Listening on Unix socket")
		err := grpcServer.ServeUnix(cfg.Server.Socket)
		_ = os.Remove(cfg.Server.Socket)
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		return nil
	})

	if scheduler != nil {
		g.Go(func() error {
			logger.Info().Str("schedule", cfg.Outreach.Schedule).Msg("Starting outreach scheduler")
			return scheduler.Start(gctx)
		})
	}

	if cfg.Metrics.Addr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("address", cfg.Metrics.Addr).Msg("Serving metrics")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info().Msg("counseld stopped")
	return err
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// openStore opens the configured storage driver.
func openStore(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		logger.Info().Str("path", cfg.SQLite.Path).Msg("Opening SQLite store")
		store, err := sqlite.Open(cfg.SQLite.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	case config.DriverRedis:
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connecting to Redis store")
		store, err := storeredis.Open(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}
		return store, nil
	case config.DriverMemory:
		logger.Warn().Msg("Using in-memory store; state is lost on exit")
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// buildOrchestrator wires the detection components and the generator.
func buildOrchestrator(cfg *config.ServerConfig, store storage.Store, logger zerolog.Logger) (*counsel.Orchestrator, *generation.LLMGenerator, error) {
	anonymizer, err := pii.NewDefault()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load PII patterns: %w", err)
	}
	detector, err := crisis.NewDefaultDetector()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load crisis lexicon: %w", err)
	}
	analyzer, err := emotion.NewDefaultAnalyzer(detector)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load emotion lexicon: %w", err)
	}
	hotlines, err := cfg.Hotlines()
	if err != nil {
		return nil, nil, err
	}

	registry := llm.NewProviderRegistry(cfg.ProviderConfig(), cfg.LLMProviders)
	generator, err := generation.FromRegistry(registry, cfg.Preferences(), cfg.Generation, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure generator: %w", err)
	}

	orchestrator, err := counsel.New(counsel.Dependencies{
		Store:      store,
		Generator:  generator,
		Anonymizer: anonymizer,
		Analyzer:   analyzer,
		Hotlines:   hotlines,
	}, cfg.CounselConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return orchestrator, generator, nil
}
