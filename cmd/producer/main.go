package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/me/capsim/internal/config"
	"github.com/me/capsim/internal/dispatch"
	"github.com/me/capsim/internal/logging"
	"github.com/me/capsim/internal/store"
)

// The dispatch producer runs against the same database as the server. It
// claims due datapoints each cycle and delivers them to student apps.
func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	logFormat := flag.String("log-format", "", "Log format: text, json (overrides config)")
	dbPath := flag.String("db", "", "Database path (overrides config, default ~/.capsim/capsim.db)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	path := cfg.DBPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		path = filepath.Join(home, ".capsim", "capsim.db")
	}

	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := dispatch.NewProducer(st, cfg.Dispatch, logger)
	if err := p.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("producer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("producer stopped")
}
