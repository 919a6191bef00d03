package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polydesk/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one scheduler tick, print the signals and exit")
	serveOnly := flag.Bool("serve", false, "serve the tool API without the scheduler loop")
	summary := flag.Bool("summary", false, "print the portfolio summary and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("polydesk starting",
		"config", *configPath,
		"storage", cfg.Storage.Backend,
		"interval", cfg.TickInterval(),
		"once", *once,
		"serve", *serveOnly,
		"summary", *summary,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := build(ctx, cfg)
	if err != nil {
		slog.Error("failed to start desk", "err", err)
		os.Exit(1)
	}
	defer d.Close()

	switch {
	case *summary:
		err = d.printSummary(ctx)
	case *once:
		err = d.tickOnce(ctx)
	default:
		err = d.serve(ctx, cfg.Server.Listen, !*serveOnly)
	}
	if err != nil {
		slog.Error("desk exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polydesk stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
