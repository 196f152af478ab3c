package worker

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"infoset_conversion/config"
	"infoset_conversion/internal/app"
	"infoset_conversion/internal/controller/rmq"
	"infoset_conversion/internal/telemetry/metric"
	"infoset_conversion/pkg/logger"

	ttrace "infoset_conversion/internal/telemetry/trace"
)

var name = "infoset-conversion-worker"

// NewWorker ...
func NewWorker(ctx context.Context, cfg *config.Config) (*Worker, error) {
	worker := &Worker{}

	closeFn, err := app.InitGlobalProvider(ctx, name, cfg)
	if err != nil {
		return nil, err
	}
	worker.traceProviderCloseFn = append(worker.traceProviderCloseFn, closeFn)

	return worker, nil
}

type Worker struct {
	traceProviderCloseFn []ttrace.CloseFunc
}

// Run consumes object events until a signal arrives or the broker closes
// the channel.
func (s *Worker) Run(ctx context.Context, cfg *config.Config) error {
	l := logger.New(cfg.Log.Level)

	deps, err := app.Build(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("app - Run - app.Build: %w", err)
	}
	defer deps.Close()

	if deps.AMQP == nil {
		return fmt.Errorf("app - Run - worker needs RMQ_URL")
	}

	go metric.Server(net.JoinHostPort("", cfg.Metrics.PrometheusPort), deps.Registry)

	amqpWorker, err := rmq.NewAMQPWorker(deps.AMQP, cfg.RMQ, l, deps.Dispatcher)
	if err != nil {
		return fmt.Errorf("app - Run - rmq.NewAMQPWorker: %w", err)
	}

	consumeCtx, stopConsuming := context.WithCancel(ctx)
	defer stopConsuming()

	closed := amqpWorker.Notify()
	if err := amqpWorker.StartConsumer(consumeCtx); err != nil {
		return fmt.Errorf("app - Run - amqpWorker.StartConsumer: %w", err)
	}

	l.Info("infoset worker started")

	// Waiting signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: " + s.String())
	case amqpErr := <-closed:
		if amqpErr != nil {
			err = fmt.Errorf("app - Run - amqpWorker.Notify: %w", amqpErr)
			l.Error(err)
		}
	}

	log.Printf("worker stopping")

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown
	if cerr := amqpWorker.CloseChan(); cerr != nil {
		l.Error(fmt.Errorf("app - Run - amqpWorker.CloseChan: %w", cerr))
	}

	select {
	case <-amqpWorker.Done():
	case <-ctxShutDown.Done():
		l.Warn("in-flight events did not finish before shutdown")
	}

	for _, closeFn := range s.traceProviderCloseFn {
		if cerr := closeFn(ctxShutDown); cerr != nil {
			log.Error().Err(cerr).Msgf("Unable to close trace provider")
		}
	}

	log.Printf("worker exited properly")
	return err
}
