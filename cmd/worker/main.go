package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"infoset_conversion/config"
	"infoset_conversion/internal/worker"
)

var cli struct {
	Config string `env:"CONFIG_PATH" default:"config/config.yml" help:"Path to the YAML config file; environment variables override it"`
}

func main() {
	kong.Parse(&cli, kong.Description("Consumes object events and runs infoset transforms."))

	// Configuration
	cfg, err := config.NewConfig(cli.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Config error")
	}

	// Run
	ctx := context.Background()
	w, err := worker.NewWorker(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init telemetry")
	}
	if err := w.Run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Worker stopped with error")
	}
}
