package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/madpools/calcutta/calcutta"
	"github.com/madpools/calcutta/calcutta/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler("Calcutta")
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting Calcutta auction engine",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := calcutta.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := calcutta.New(cfg)

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	setupCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := app.SetupDB(setupCtx); err != nil {
		slog.Error("Database setup failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	slog.Info("Database ready",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if err := app.SetupEngines(); err != nil {
		slog.Error("Engine setup failed",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	if err := app.Start(setupCtx); err != nil {
		slog.Error("Startup recovery failed",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Server.Listen()
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...", slog.String("type", "sys"))
		app.Close(context.Background())
		return nil
	})

	slog.Info("Engine is running. Press CTRL-C to exit.", slog.String("type", "sys"))
	if err := g.Wait(); err != nil {
		slog.Error("Engine exited with error",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}
}
