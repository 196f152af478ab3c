package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"infoset_conversion/config"
	ttrace "infoset_conversion/internal/telemetry/trace"
	traceExporter "infoset_conversion/internal/telemetry/trace/exporter"
)

// InitGlobalProvider installs the process tracer provider. The returned
// CloseFunc flushes pending spans.
func InitGlobalProvider(ctx context.Context, name string, cfg *config.Config) (ttrace.CloseFunc, error) {
	spanExporter, err := traceExporter.New(ctx, cfg.OTEL)
	if err != nil {
		return nil, err
	}
	if spanExporter == nil {
		log.Info().Msg("trace export disabled")
	}

	tracerProvider, closeFn, err := ttrace.NewTraceProviderBuilder(name).
		SetVersion(cfg.App.Version).
		SetExporter(spanExporter).
		Build()
	if err != nil {
		return nil, err
	}

	ttrace.InitGlobal(tracerProvider)
	return closeFn, nil
}
