package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"infoset_conversion/config"
	"infoset_conversion/internal/contenttype"
	"infoset_conversion/internal/processor"
	"infoset_conversion/internal/storage"
	"infoset_conversion/pkg/codec/xmlwrap"
	"infoset_conversion/pkg/logger"
)

var cli struct {
	Config  string   `env:"CONFIG_PATH" default:"config/config.yml" help:"Path to the YAML config file; environment variables override it"`
	Schemas []string `arg:"" help:"Schema source keys in the schema bucket to compile"`
}

func main() {
	kong.Parse(&cli, kong.Description("Compiles schema sources and uploads the precompiled artifacts next to them."))

	cfg, err := config.NewConfig(cli.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Config error")
	}
	l := logger.New(cfg.Log.Level)

	ctx := context.Background()
	store, err := storage.GetStorageBackend(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initiate storage backend")
	}

	resolver := contenttype.NewStoreResolver(store, cfg.Transform.SchemaBucket, cfg.Transform.ContentTypesFile,
		cfg.Cache.ContentTypeTTL, l)
	repo := processor.NewStoreRepository(store, resolver, xmlwrap.New(), cfg.Transform.SchemaBucket,
		cfg.Transform.PrecompiledExtension, cfg.Transform.ScratchDir, l)

	failed := 0
	for _, schema := range cli.Schemas {
		key, err := repo.Precompile(ctx, schema, store)
		if err != nil {
			failed++
			log.Error().Err(err).Str("schema", schema).Msg("Precompile failed")
			continue
		}
		log.Info().Str("schema", schema).Str("artifact", key).Msg("Precompiled")
	}
	if failed > 0 {
		log.Fatal().Int("failed", failed).Msg("Some schemas could not be precompiled")
	}
}
