// Package app wires the transform pipeline shared by the server and the
// worker processes.
package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"

	"infoset_conversion/config"
	"infoset_conversion/internal/contenttype"
	"infoset_conversion/internal/controller/rmq"
	"infoset_conversion/internal/db/gorm/mysql"
	"infoset_conversion/internal/processor"
	"infoset_conversion/internal/storage"
	"infoset_conversion/internal/telemetry/metric"
	"infoset_conversion/internal/transform"
	"infoset_conversion/pkg/codec/xmlwrap"
	"infoset_conversion/pkg/logger"
	"infoset_conversion/pkg/rabbitmq"
)

// Deps holds the long-lived components of one process.
type Deps struct {
	Usecase    *transform.TransformUsecase
	Dispatcher *transform.Dispatcher
	// Journal is nil when no journal DSN is configured.
	Journal  *transform.JournalRepository
	Registry *prometheus.Registry
	// AMQP is nil when no broker URL is configured.
	AMQP *amqp.Connection

	l       logger.Interface
	closers []func() error
}

// Build connects storage, the broker and the journal and assembles the
// transform usecase. Close releases whatever was opened, also on error.
func Build(ctx context.Context, cfg *config.Config, l logger.Interface) (_ *Deps, err error) {
	d := &Deps{l: l, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if !cfg.Transform.OutputEnabled() {
		l.Warn("no output bucket defined, transform output is written to the source bucket; " +
			"if that bucket also triggers transforms every object is transformed back and forth")
	}

	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := metric.New(cfg.Metrics.Namespace, cfg.Metrics.Detailed, d.Registry)
	if err != nil {
		return nil, err
	}

	store, err := storage.GetStorageBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	resolver := contenttype.NewStoreResolver(store, cfg.Transform.SchemaBucket, cfg.Transform.ContentTypesFile,
		cfg.Cache.ContentTypeTTL, l)
	processors := processor.NewCachedRepository(
		processor.NewStoreRepository(store, resolver, xmlwrap.New(), cfg.Transform.SchemaBucket,
			cfg.Transform.PrecompiledExtension, cfg.Transform.ScratchDir, l),
		cfg.Cache.DataProcessorTTL, cfg.Cache.DataProcessorLimit, l)

	var opts []transform.Option

	if cfg.RMQ.URL != "" {
		conn, err := rabbitmq.NewRabbitMQConn(cfg.RMQ)
		if err != nil {
			return nil, err
		}
		d.AMQP = conn
		d.closers = append(d.closers, conn.Close)

		if cfg.RMQ.AlertingEnabled() {
			notifier, err := rmq.NewAMQPNotifier(conn, cfg.RMQ, l)
			if err != nil {
				return nil, errors.Wrap(err, "alert notifier")
			}
			opts = append(opts, transform.WithNotifier(notifier))
		}
	}

	if cfg.Journal.Enabled() {
		db, err := mysql.NewDB(cfg.Journal)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() error { return mysql.Close(db) })

		journal, err := transform.NewJournalRepository(db, l)
		if err != nil {
			return nil, err
		}
		d.Journal = journal
		opts = append(opts, transform.WithJournal(journal))
	}

	d.Usecase = transform.NewTransformUsecase(store, resolver, processors, cfg.Transform, metrics, l, opts...)
	d.Dispatcher = transform.NewDispatcher(d.Usecase, l)
	return d, nil
}

// Close releases connections in reverse order of opening.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.l.Warn("close: %v", err)
		}
	}
	d.closers = nil
}
