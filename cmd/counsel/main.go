package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/client"
	"github.com/aschepis/backscratcher/counsel/config"
	counsellogger "github.com/aschepis/backscratcher/counsel/logger"
)

const (
	defaultSocketPath = client.DefaultSocketPath
)

const usage = `Usage: counsel [flags] <command> [command flags]

Commands:
  chat          Start an interactive session
  erase         Delete every record of a user
  relationship  Show the relationship summary of a user
  outreach      Drain pending check-ins
  status        Show daemon status

Flags:
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command-line flags
	var (
		socketPath = flag.String("socket", defaultSocketPath, "Unix socket path for daemon connection")
		tcpAddress = flag.String("tcp", "", "TCP address to connect to (e.g., localhost:50051). If set, disables Unix socket")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, warnings go to stderr")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return fmt.Errorf("missing command")
	}

	// Validate that --logfile and --pretty are mutually exclusive
	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, closer, err := counsellogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closer.Close() //nolint:errcheck // Nothing useful to do on log close failure
	if *logFile == "" {
		// Keep the terminal readable while chatting.
		logger = logger.Level(zerolog.WarnLevel)
	}

	// Load client configuration
	configPath := config.GetClientConfigPath()
	clientConfig, err := config.LoadClientConfig(configPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load client configuration, using defaults")
		clientConfig = &config.ClientConfig{
			Daemon:      config.DaemonConfig{Socket: defaultSocketPath},
			Locale:      "ja",
			ChatTimeout: 60,
		}
	}

	address := daemonAddress(*tcpAddress, *socketPath, clientConfig, logger)
	conn, err := client.Connect(address)
	if err != nil {
		logger.Error().Err(err).Str("address", address).Msg("Failed to connect to daemon")
		return fmt.Errorf("cannot connect to counseld at %s (is the daemon running?)", address)
	}
	defer conn.Close() //nolint:errcheck // No remedy for client close errors

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := &command{
		conn:    conn,
		config:  clientConfig,
		timeout: chatTimeout(clientConfig),
		logger:  logger,
		out:     os.Stdout,
	}
	return cmd.dispatch(ctx, flag.Arg(0), flag.Args()[1:])
}

// daemonAddress picks the daemon address. Command line flags override config.
func daemonAddress(tcpAddress, socketPath string, cfg *config.ClientConfig, logger zerolog.Logger) string {
	var address string
	switch {
	case tcpAddress != "":
		address = tcpAddress
		logger.Info().Str("address", address).Msg("Connecting to daemon via TCP")
	case cfg.Daemon.TCP != "":
		address = cfg.Daemon.TCP
		logger.Info().Str("address", address).Msg("Connecting to daemon via TCP (from config)")
	case socketPath != defaultSocketPath:
		address = socketPath
		logger.Info().Str("socket", address).Msg("Connecting to daemon via Unix socket")
	case cfg.Daemon.Socket != "":
		address = cfg.Daemon.Socket
		logger.Info().Str("socket", address).Msg("Connecting to daemon via Unix socket (from config)")
	default:
		address = defaultSocketPath
		logger.Info().Str("socket", address).Msg("Connecting to daemon via Unix socket (default)")
	}
	return address
}

// chatTimeout: env var takes precedence, then config file, then default (60s).
func chatTimeout(cfg *config.ClientConfig) time.Duration {
	timeout := 60 * time.Second
	if envTimeout := os.Getenv("COUNSEL_CHAT_TIMEOUT"); envTimeout != "" {
		if parsed, err := strconv.Atoi(envTimeout); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	} else if cfg.ChatTimeout > 0 {
		timeout = time.Duration(cfg.ChatTimeout) * time.Second
	}
	return timeout
}
