package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/namsral/flag"
	"github.com/rs/zerolog"

	"github.com/geiri-is/geiri"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("geiri %s\n", version)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSetWithEnvPrefix("serve", "GEIRI", flag.ExitOnError)
	// not "config": that name makes the flag package parse the file itself
	configPath := fs.String("config-file", "", "path to TOML configuration file (GEIRI_CONFIG_FILE)")
	debug := fs.Bool("debug", false, "log at debug level (GEIRI_DEBUG)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := geiri.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *debug {
		cfg.LogLevel = zerolog.LevelDebugValue
	}
	log, err := newLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			Release:     "geiri@" + version,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	app := geiri.New(cfg, geiri.WithLogger(log))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		_ = app.Close()
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	return nil
}

func newLogger(format, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level %q: %w", level, err)
	}
	var out io.Writer = os.Stdout
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "geiri").Logger(), nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `geiri - personal CV and blog with LinkedIn cross-posting

Usage:
  geiri <command> [flags]

Commands:
  serve         Run the web server
  version       Print the geiri version
  help          Show this help message

Serve flags:
  -config-file path  TOML configuration file (env GEIRI_CONFIG_FILE)
  -debug             Log at debug level (env GEIRI_DEBUG)

Examples:
  geiri serve -config-file geiri.toml
  SITE_URL=https://geiri.is DOCSTORE_URL=data/geiri.db geiri serve`)
}
