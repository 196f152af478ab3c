package contenttype

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"infoset_conversion/entity"
	"infoset_conversion/pkg/cache"
	"infoset_conversion/pkg/logger"
)

// Snapshot is one complete content-type to schema mapping. The zero value
// is an empty mapping.
type Snapshot struct {
	entries map[string]string
	fold    bool
}

func NewSnapshot(entries map[string]string) Snapshot {
	return Snapshot{entries: entries}
}

func (s Snapshot) normalize(contentType string) string {
	if s.fold {
		return strings.ToUpper(contentType)
	}
	return contentType
}

func (s Snapshot) Get(contentType string) (string, bool) {
	schema, ok := s.entries[s.normalize(contentType)]
	return schema, ok
}

func (s Snapshot) Contains(contentType string) bool {
	_, ok := s.entries[s.normalize(contentType)]
	return ok
}

func (s Snapshot) Len() int {
	return len(s.entries)
}

// Loader produces a snapshot. Loaders never fail; a mapping that cannot be
// read is empty.
type Loader interface {
	Load(ctx context.Context) Snapshot
}

type LoaderFunc func(ctx context.Context) Snapshot

func (f LoaderFunc) Load(ctx context.Context) Snapshot {
	return f(ctx)
}

// StoreLoader reads the mapping from a YAML object in the schema bucket.
type StoreLoader struct {
	store  entity.ObjectReader
	bucket string
	key    string
	l      logger.Interface
}

func NewStoreLoader(store entity.ObjectReader, bucket, key string, l logger.Interface) *StoreLoader {
	return &StoreLoader{store: store, bucket: bucket, key: key, l: l}
}

func (s *StoreLoader) Load(ctx context.Context) Snapshot {
	entries, err := s.read(ctx)
	if err != nil {
		s.l.Warn("could not load content types map s3://%s/%s, using an empty map: %v", s.bucket, s.key, err)
		return Snapshot{}
	}
	return Snapshot{entries: entries}
}

func (s *StoreLoader) read(ctx context.Context) (map[string]string, error) {
	body, err := s.store.GetObject(ctx, s.bucket, s.key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var raw map[string]interface{}
	if err := yaml.NewDecoder(body).Decode(&raw); err != nil {
		return nil, err
	}

	entries := make(map[string]string, len(raw))
	for k, v := range raw {
		entries[k] = fmt.Sprint(v)
	}
	return entries, nil
}

type caseInsensitive struct {
	inner Loader
}

// CaseInsensitive upper-cases every key of the inner snapshot and every
// lookup made against it.
func CaseInsensitive(inner Loader) Loader {
	return caseInsensitive{inner: inner}
}

func (c caseInsensitive) Load(ctx context.Context) Snapshot {
	snap := c.inner.Load(ctx)
	entries := make(map[string]string, len(snap.entries))
	for k, v := range snap.entries {
		entries[strings.ToUpper(k)] = v
	}
	return Snapshot{entries: entries, fold: true}
}

const snapshotKey = "SINGLETON"

type cached struct {
	c *cache.Cache[Snapshot]
}

// Cached keeps the whole inner snapshot for ttl. Concurrent loads are
// coalesced into one.
func Cached(inner Loader, ttl time.Duration, opts ...cache.Option) Loader {
	opts = append([]cache.Option{
		cache.WithSize(1),
		cache.WithTTL(ttl),
		cache.WithPolicy(cache.ExpireAfterWrite),
	}, opts...)

	return cached{c: cache.New[Snapshot](func(ctx context.Context, _ string) (Snapshot, error) {
		return inner.Load(ctx), nil
	}, opts...)}
}

func (c cached) Load(ctx context.Context) Snapshot {
	snap, _ := c.c.Get(ctx, snapshotKey)
	return snap
}
