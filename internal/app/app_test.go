package app

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infoset_conversion/config"
	"infoset_conversion/internal/storage"
	"infoset_conversion/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		App:     config.App{Name: "infoset-conversion", Version: "test"},
		Storage: config.Storage{Backend: "minio", Endpoint: "localhost:9000", Region: "us-east-1"},
		Transform: config.Transform{
			SchemaBucket:         "schemas",
			ContentTypesFile:     "content-types.yaml",
			InfosetExtension:     ".infoset.xml",
			PrecompiledExtension: ".dp",
			PartSize:             1 << 20,
		},
		Cache: config.Cache{
			ContentTypeTTL:     time.Minute,
			DataProcessorTTL:   15 * time.Minute,
			DataProcessorLimit: 10,
		},
		Metrics: config.Metrics{Namespace: "infoset"},
	}
}

func TestBuildWithoutBrokerOrJournal(t *testing.T) {
	d, err := Build(context.Background(), testConfig(), logger.NewWithWriter("debug", io.Discard))
	require.NoError(t, err)
	defer d.Close()

	assert.NotNil(t, d.Usecase)
	assert.NotNil(t, d.Dispatcher)
	assert.Nil(t, d.Journal)
	assert.Nil(t, d.AMQP)

	families, err := d.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "gcs"

	d, err := Build(context.Background(), cfg, logger.NewWithWriter("debug", io.Discard))
	assert.ErrorIs(t, err, storage.ErrInvalidBackend)
	assert.Nil(t, d)
}

func TestBuildFailsOnBadBrokerURL(t *testing.T) {
	cfg := testConfig()
	cfg.RMQ.URL = "http://not-a-broker"

	var d *Deps
	var err error
	require.NotPanics(t, func() {
		d, err = Build(context.Background(), cfg, logger.NewWithWriter("debug", io.Discard))
	})
	assert.Error(t, err)
	assert.Nil(t, d)
}

func TestBuildWarnsWithoutOutputBucket(t *testing.T) {
	var logs bytes.Buffer
	d, err := Build(context.Background(), testConfig(), logger.NewWithWriter("debug", &logs))
	require.NoError(t, err)
	d.Close()
	assert.Contains(t, logs.String(), "no output bucket defined")

	logs.Reset()
	cfg := testConfig()
	cfg.Transform.OutputBucket = "infosets"
	d, err = Build(context.Background(), cfg, logger.NewWithWriter("debug", &logs))
	require.NoError(t, err)
	d.Close()
	assert.NotContains(t, logs.String(), "no output bucket defined")
}

func TestInitGlobalProviderWithoutExporter(t *testing.T) {
	closeFn, err := InitGlobalProvider(context.Background(), "infoset-test", testConfig())
	require.NoError(t, err)
	assert.NoError(t, closeFn(context.Background()))
}
