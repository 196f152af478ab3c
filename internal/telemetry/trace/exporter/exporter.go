package exporter

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"infoset_conversion/config"
)

var ErrUnknownExporter = errors.New("unknown trace exporter")

// New returns the span exporter named by cfg, or nil when tracing export
// is switched off.
func New(ctx context.Context, cfg config.OTEL) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Exporter)) {
	case "", "none":
		return nil, nil
	case "jaeger":
		exp, err := NewJaeger(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		return exp, nil
	case "otlp":
		exp, err := NewOTLP(ctx, cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		return exp, nil
	default:
		return nil, errors.Wrapf(ErrUnknownExporter, "%q", cfg.Exporter)
	}
}
