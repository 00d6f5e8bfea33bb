package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"PatchRadar/internal/app"
	"PatchRadar/internal/config"
	"PatchRadar/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single scheduler cycle, print its report and exit")
	ticker := flag.Bool("ticker", true, "trigger cycles from the internal ticker in addition to HTTP")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if err := application.Bootstrap(ctx); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	if *once {
		report := application.RunOnce(ctx)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Error("encode report", "error", err)
		}
		if len(report.Errors) > 0 {
			os.Exit(2)
		}
		return
	}

	if err := application.Serve(ctx, *ticker); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
