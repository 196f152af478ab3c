package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"infoset_conversion/config"
	"infoset_conversion/internal/server"
)

var cli struct {
	Config string `env:"CONFIG_PATH" default:"config/config.yml" help:"Path to the YAML config file; environment variables override it"`
}

func main() {
	kong.Parse(&cli, kong.Description("Manual transform trigger, health and metrics endpoints."))

	// Configuration
	cfg, err := config.NewConfig(cli.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Config error")
	}

	// Run
	ctx := context.Background()
	s, err := server.NewServer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init telemetry")
	}
	if err := s.Run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}
}
