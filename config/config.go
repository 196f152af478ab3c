package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	// Config -.
	Config struct {
		App       `yaml:"app"`
		Log       `yaml:"logger"`
		Storage   `yaml:"storage"`
		Transform `yaml:"transform"`
		Cache     `yaml:"cache"`
		RMQ       `yaml:"rabbitmq"`
		HTTP      `yaml:"http"`
		Metrics   `yaml:"metrics"`
		OTEL      `yaml:"otel"`
		Journal   `yaml:"journal"`
	}

	// App -.
	App struct {
		Name    string `env-required:"true" yaml:"name"    env:"APP_NAME"`
		Version string `env-required:"true" yaml:"version" env:"APP_VERSION"`
	}

	// Log -.
	Log struct {
		Level string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	}

	// Storage selects and configures the object store backend.
	Storage struct {
		Backend   string `yaml:"backend"    env:"STORAGE_BACKEND" env-default:"s3"`
		Endpoint  string `yaml:"endpoint"   env:"STORAGE_ENDPOINT"`
		Region    string `yaml:"region"     env:"AWS_REGION" env-default:"us-east-1"`
		AccessKey string `yaml:"access_key" env:"STORAGE_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"STORAGE_SECRET_KEY"`
		UseSSL    bool   `yaml:"use_ssl"    env:"STORAGE_USE_SSL" env-default:"true"`
	}

	// Transform -.
	Transform struct {
		SchemaBucket         string `env-required:"true" yaml:"schema_bucket" env:"SCHEMA_BUCKET"`
		ContentTypesFile     string `yaml:"content_types_file"    env:"CONTENT_TYPES_FILE"    env-default:"content-types.yaml"`
		InfosetExtension     string `yaml:"infoset_extension"     env:"INFOSET_EXTENSION"     env-default:".infoset.xml"`
		PrecompiledExtension string `yaml:"precompiled_extension" env:"PRECOMPILED_EXTENSION" env-default:".dp"`
		OutputBucket         string `yaml:"output_bucket"         env:"OUTPUT_BUCKET"`
		ArchiveBucket        string `yaml:"archive_bucket"        env:"ARCHIVE_BUCKET"`
		DeadLetterBucket     string `yaml:"dead_letter_bucket"    env:"DEAD_LETTER_BUCKET"`
		PartSize             int    `yaml:"part_size"             env:"PART_SIZE"             env-default:"10000000"`
		ScratchDir           string `yaml:"scratch_dir"           env:"SCRATCH_DIR"`
	}

	// Cache -.
	Cache struct {
		ContentTypeTTL     time.Duration `yaml:"content_type_ttl"     env:"CONTENT_TYPE_CACHE_TTL"     env-default:"1m"`
		DataProcessorTTL   time.Duration `yaml:"data_processor_ttl"   env:"DATA_PROCESSOR_CACHE_TTL"   env-default:"15m"`
		DataProcessorLimit int           `yaml:"data_processor_limit" env:"DATA_PROCESSOR_CACHE_SIZE" env-default:"100"`
	}

	// RMQ -.
	RMQ struct {
		URL             string `yaml:"url"               env:"RMQ_URL"`
		Exchange        string `yaml:"exchange"          env:"RMQ_EXCHANGE"          env-default:"infoset_conversion"`
		Queue           string `yaml:"queue"             env:"RMQ_QUEUE"             env-default:"object_created"`
		BindingKey      string `yaml:"binding_key"       env:"RMQ_BINDING_KEY"       env-default:"object.created"`
		AlertExchange   string `yaml:"alert_exchange"    env:"ALERT_EXCHANGE"`
		AlertRoutingKey string `yaml:"alert_routing_key" env:"ALERT_ROUTING_KEY"`
	}

	// HTTP -.
	HTTP struct {
		Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	}

	// Metrics -.
	Metrics struct {
		Namespace      string `yaml:"namespace"        env:"METRICS_NAMESPACE"`
		Detailed       bool   `yaml:"detailed"         env:"ENABLE_DETAILED_METRICS" env-default:"false"`
		PrometheusPort string `yaml:"prometheus_port"  env:"PROMETHEUS_PORT"         env-default:"9102"`
	}

	// OTEL -.
	OTEL struct {
		Exporter string `yaml:"exporter" env:"OTEL_EXPORTER" env-default:"none"`
		Endpoint string `yaml:"endpoint" env:"OTEL_ENDPOINT"`
	}

	// Journal -.
	Journal struct {
		DSN string `yaml:"dsn" env:"JOURNAL_DSN"`
	}
)

// NewConfig returns app config. Environment variables override the file;
// a missing file means environment only.
func NewConfig(path string) (*Config, error) {
	cfg := &Config{}

	var err error
	if _, statErr := os.Stat(path); path != "" && statErr == nil {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	if cfg.Transform.PartSize <= 0 {
		return nil, fmt.Errorf("config error: part_size must be positive, got %d", cfg.Transform.PartSize)
	}
	if strings.TrimSpace(cfg.Transform.InfosetExtension) == "" {
		return nil, fmt.Errorf("config error: infoset_extension must not be blank")
	}

	return cfg, nil
}

func isSet(s string) bool {
	return strings.TrimSpace(s) != ""
}

func (t Transform) ArchiveEnabled() bool {
	return isSet(t.ArchiveBucket)
}

func (t Transform) DeadLetterEnabled() bool {
	return isSet(t.DeadLetterBucket)
}

// OutputEnabled reports whether output goes to a dedicated bucket.
func (t Transform) OutputEnabled() bool {
	return isSet(t.OutputBucket)
}

// DestinationBucket is where transform output for an object in source goes.
func (t Transform) DestinationBucket(source string) string {
	if isSet(t.OutputBucket) {
		return t.OutputBucket
	}
	return source
}

func (r RMQ) AlertingEnabled() bool {
	return isSet(r.URL) && isSet(r.AlertExchange)
}

func (j Journal) Enabled() bool {
	return isSet(j.DSN)
}
