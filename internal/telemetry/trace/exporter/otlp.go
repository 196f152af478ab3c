package exporter

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"google.golang.org/grpc"
)

const otlpDialTimeout = 10 * time.Second

func NewOTLP(ctx context.Context, endpoint string) (*otlptrace.Exporter, error) {
	log.Info().Msgf("creating otlp grpc exporter for %s", endpoint)
	traceClient := otlptracegrpc.NewClient(
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithBlock()))

	ctx, cancel := context.WithTimeout(ctx, otlpDialTimeout)
	defer cancel()

	traceExp, err := otlptrace.New(ctx, traceClient)
	if err != nil {
		return nil, errors.Wrap(err, "otlp exporter")
	}
	return traceExp, nil
}
