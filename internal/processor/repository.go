package processor

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"infoset_conversion/entity"
	"infoset_conversion/pkg/cache"
	"infoset_conversion/pkg/logger"
)

const traceName = "Processor-Repo"

// Repository hands out a ready processor for a content type.
type Repository interface {
	Get(ctx context.Context, contentType string) (entity.Processor, error)
}

type SchemaResolver interface {
	Resolve(ctx context.Context, contentType string) (string, bool)
}

// StoreRepository builds processors from the schema bucket. A precompiled
// artifact stored next to the schema is preferred; the schema source is
// compiled when the artifact is missing or cannot be loaded.
type StoreRepository struct {
	store          entity.ObjectReader
	resolver       SchemaResolver
	engine         entity.CodecEngine
	bucket         string
	precompiledExt string
	scratchDir     string
	l              logger.Interface
}

func NewStoreRepository(store entity.ObjectReader, resolver SchemaResolver, engine entity.CodecEngine,
	bucket, precompiledExt, scratchDir string, l logger.Interface,
) *StoreRepository {
	return &StoreRepository{
		store:          store,
		resolver:       resolver,
		engine:         engine,
		bucket:         bucket,
		precompiledExt: precompiledExt,
		scratchDir:     scratchDir,
		l:              l,
	}
}

func (r *StoreRepository) Get(ctx context.Context, contentType string) (entity.Processor, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "Get")
	defer span.End()
	span.SetAttributes(attribute.String("content_type", contentType))

	schema, ok := r.resolver.Resolve(ctx, contentType)
	if !ok {
		return nil, errors.Wrapf(entity.ErrSchemaUnavailable, "no schema mapped for content-type %s", contentType)
	}
	span.SetAttributes(attribute.String("schema", schema))

	p, err := r.reload(ctx, schema)
	if err == nil {
		return p, nil
	}

	r.l.Warn("couldn't get precompiled schema %s%s, will attempt to compile schema: %v", schema, r.precompiledExt, err)
	span.AddEvent("compiling schema source")
	return r.compile(ctx, schema)
}

func (r *StoreRepository) reload(ctx context.Context, schema string) (entity.Processor, error) {
	body, err := r.store.GetObject(ctx, r.bucket, schema+r.precompiledExt)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	p, err := r.engine.Reload(body)
	if err != nil {
		return nil, errors.Wrap(err, "reload precompiled schema")
	}
	return p, nil
}

func (r *StoreRepository) compile(ctx context.Context, schema string) (entity.Processor, error) {
	fail := func(msg string, err error) error {
		return &entity.DiagnosticsError{
			Kind:        entity.ErrSchemaUnavailable,
			Msg:         msg,
			Diagnostics: []entity.Diagnostic{{Message: err.Error(), Cause: err}},
		}
	}

	f, err := os.CreateTemp(r.scratchDir, "schema-*")
	if err != nil {
		return nil, fail("create scratch file", err)
	}
	defer os.Remove(f.Name())

	_, err = r.store.DownloadObject(ctx, r.bucket, schema, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fail("fetch schema "+schema, err)
	}

	r.l.Info("compiling schema %s", schema)
	p, diags := r.engine.Compile(f.Name())
	if p == nil {
		for _, d := range diags {
			r.l.Error("schema %s: %s", schema, d.Message)
		}
		if len(diags) == 0 {
			diags = []entity.Diagnostic{{Message: "compiler returned no processor"}}
		}
		return nil, &entity.DiagnosticsError{
			Kind:        entity.ErrSchemaUnavailable,
			Msg:         "compile schema " + schema,
			Diagnostics: diags,
		}
	}
	for _, d := range diags {
		r.l.Warn("schema %s: %s", schema, d.Message)
	}
	return p, nil
}

// CachedRepository keeps processors per content type. Past ttl the cached
// processor is still served while one background reload replaces it; a
// failed reload keeps the old one.
type CachedRepository struct {
	c *cache.Cache[entity.Processor]
}

func NewCachedRepository(inner Repository, ttl time.Duration, size int, l logger.Interface, opts ...cache.Option) *CachedRepository {
	opts = append([]cache.Option{
		cache.WithSize(size),
		cache.WithTTL(ttl),
		cache.WithPolicy(cache.RefreshAfterWrite),
		cache.WithReloadErrorHandler(func(contentType string, err error) {
			l.Warn("could not refresh data processor for %s, keeping the cached one: %v", contentType, err)
		}),
	}, opts...)

	return &CachedRepository{c: cache.New[entity.Processor](inner.Get, opts...)}
}

func (r *CachedRepository) Get(ctx context.Context, contentType string) (entity.Processor, error) {
	return r.c.Get(ctx, contentType)
}
