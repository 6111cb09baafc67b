package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trunov/webpbucket/internal/app"
	"github.com/trunov/webpbucket/internal/config"
	"github.com/trunov/webpbucket/internal/report"
)

const version = "v1"

func initLogger(cfg *config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	file := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.Load(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	initLogger(&cfg.Log)

	if err := report.Init(&cfg.Sentry, version); err != nil {
		log.Fatal().Err(err).Msg("sentry.Init")
	}
	// Flush buffered events before the program terminates.
	defer report.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app")
	}

	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
		report.Flush()
		os.Exit(1)
	}
}
