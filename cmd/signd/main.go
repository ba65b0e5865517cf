package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "signstream.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, nil))
		bootstrap.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Telemetry.LogLevel)}))

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
