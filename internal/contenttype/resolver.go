package contenttype

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"infoset_conversion/entity"
	"infoset_conversion/pkg/logger"
)

const traceName = "ContentType-Resolver"

// Resolver maps content types to schema identifiers. Each call works on
// a single snapshot.
type Resolver struct {
	loader Loader
}

func NewResolver(loader Loader) *Resolver {
	return &Resolver{loader: loader}
}

// NewStoreResolver reads the mapping from bucket/key, matches content
// types case-insensitively and keeps the mapping for ttl.
func NewStoreResolver(store entity.ObjectReader, bucket, key string, ttl time.Duration, l logger.Interface) *Resolver {
	return NewResolver(Cached(CaseInsensitive(NewStoreLoader(store, bucket, key, l)), ttl))
}

// Resolve returns the schema identifier mapped to contentType.
func (r *Resolver) Resolve(ctx context.Context, contentType string) (string, bool) {
	return r.loader.Load(ctx).Get(contentType)
}

func (r *Resolver) Contains(ctx context.Context, contentType string) bool {
	return r.loader.Load(ctx).Contains(contentType)
}

// DeriveFromKey finds the content type named by a storage key. The
// filename's dot-separated tokens are tried first, left to right, then
// each enclosing prefix segment from the innermost out. The matching
// token is returned as written in the key.
func (r *Resolver) DeriveFromKey(ctx context.Context, key string) (string, bool) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "DeriveFromKey")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	snap := r.loader.Load(ctx)

	segments := strings.Split(key, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if i == len(segments)-1 {
			for _, token := range strings.Split(segments[i], ".") {
				if token != "" && snap.Contains(token) {
					return token, true
				}
			}
			continue
		}
		if segments[i] != "" && snap.Contains(segments[i]) {
			return segments[i], true
		}
	}
	return "", false
}
