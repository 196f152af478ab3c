package transform

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"infoset_conversion/config"
	"infoset_conversion/entity"
	"infoset_conversion/internal/processor"
	"infoset_conversion/internal/telemetry/metric"
	"infoset_conversion/pkg/chunkedwriter"
	"infoset_conversion/pkg/join"
	"infoset_conversion/pkg/logger"
	"infoset_conversion/pkg/tagcodec"
)

const traceName = "Transform-Usecase"

// KeyResolver derives a content type from a storage key.
type KeyResolver interface {
	DeriveFromKey(ctx context.Context, key string) (string, bool)
}

type TransformUsecase struct {
	StorageRepo entity.StorageRepository
	resolver    KeyResolver
	processors  processor.Repository
	cfg         config.Transform
	metrics     *metric.Metrics
	notifier    entity.Notifier
	journal     entity.Journal
	l           logger.Interface
}

var _ entity.TransformUsecase = (*TransformUsecase)(nil)

type Option func(*TransformUsecase)

// WithNotifier publishes an alert for every failed request.
func WithNotifier(n entity.Notifier) Option {
	return func(u *TransformUsecase) { u.notifier = n }
}

// WithJournal records every settled request.
func WithJournal(j entity.Journal) Option {
	return func(u *TransformUsecase) { u.journal = j }
}

func NewTransformUsecase(store entity.StorageRepository, resolver KeyResolver, processors processor.Repository,
	cfg config.Transform, metrics *metric.Metrics, l logger.Interface, opts ...Option,
) *TransformUsecase {
	u := &TransformUsecase{
		StorageRepo: store,
		resolver:    resolver,
		processors:  processors,
		cfg:         cfg,
		metrics:     metrics,
		l:           l,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Request builds the request for an object. Keys carrying the infoset
// extension are unparsed, everything else is parsed.
func (u *TransformUsecase) Request(bucket, key string) entity.TransformRequest {
	direction := entity.Forward
	if strings.HasSuffix(key, u.cfg.InfosetExtension) {
		direction = entity.Reverse
	}
	return entity.TransformRequest{
		Source:    entity.Location{Bucket: bucket, Key: key},
		Direction: direction,
	}
}

// Process runs one request to completion, then archives or quarantines
// the source object. Housekeeping failures are logged and never change
// the returned error.
func (u *TransformUsecase) Process(ctx context.Context, req entity.TransformRequest) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("bucket", req.Source.Bucket),
		attribute.String("key", req.Source.Key),
		attribute.String("action", req.Direction.String()),
	)

	started := time.Now()
	scope := u.metrics.Scope(req.Direction.String())

	var err error
	if req.Direction == entity.Reverse {
		err = u.unparse(ctx, req.Source, scope)
	} else {
		err = u.parse(ctx, req.Source, scope)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		u.l.Error("%s of %s failed: %v", req.Direction, req.Source, err)
		scope.Failed(errorType(err))
		u.onFailure(ctx, req.Source, err)
	} else {
		scope.Succeeded()
		u.onSuccess(ctx, req.Source)
	}

	u.record(ctx, req, scope.ContentType(), err, time.Since(started))
	return err
}

func (u *TransformUsecase) parse(ctx context.Context, src entity.Location, scope *metric.Scope) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "Parse")
	defer span.End()

	contentType, ok := u.resolver.DeriveFromKey(ctx, src.Key)
	if !ok {
		return errors.Wrapf(entity.ErrContentTypeUnresolved, "key %s does not name a mapped content type", src.Key)
	}
	scope.SetContentType(contentType)
	span.SetAttributes(attribute.String("content_type", contentType))

	var (
		p       entity.Processor
		metaTag entity.Tag
		tags    []entity.Tag
		body    io.ReadCloser
	)

	g := join.New()
	g.Go(func() (err error) {
		p, err = u.processors.Get(ctx, contentType)
		return err
	})
	g.Go(func() error {
		head, err := u.StorageRepo.HeadObject(ctx, src.Bucket, src.Key)
		if err != nil {
			return err
		}
		metaTag = tagcodec.Tag(tagcodec.OriginalMetadata{ContentType: contentType, ETag: head.ETag})
		return nil
	})
	g.Go(func() (err error) {
		tags, err = u.StorageRepo.GetObjectTagging(ctx, src.Bucket, src.Key)
		return err
	})
	g.Go(func() (err error) {
		body, err = u.StorageRepo.GetObject(ctx, src.Bucket, src.Key)
		return err
	})

	if err := g.Wait(); err != nil {
		g.AfterAll(func() {
			if body != nil {
				body.Close()
			}
		})
		return err
	}
	defer body.Close()

	dest := entity.Location{
		Bucket: u.cfg.DestinationBucket(src.Bucket),
		Key:    src.Key + u.cfg.InfosetExtension,
	}
	outTags := append(tagcodec.Without(tags), metaTag)

	return u.transform(ctx, scope, p.Parse, body, dest, outTags, nil)
}

func (u *TransformUsecase) unparse(ctx context.Context, src entity.Location, scope *metric.Scope) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "Unparse")
	defer span.End()

	outKey := strings.TrimSuffix(src.Key, u.cfg.InfosetExtension)

	tags, err := u.StorageRepo.GetObjectTagging(ctx, src.Bucket, src.Key)
	if err != nil {
		return err
	}
	meta := u.originalMetadata(src, tags)

	contentType := meta.ContentType
	if contentType == "" {
		derived, ok := u.resolver.DeriveFromKey(ctx, outKey)
		if !ok {
			return errors.Wrapf(entity.ErrContentTypeUnresolved,
				"%s has no %s content type and key %s does not name a mapped content type", src, tagcodec.TagName, outKey)
		}
		contentType = derived
	}
	scope.SetContentType(contentType)
	span.SetAttributes(attribute.String("content_type", contentType))

	var (
		p    entity.Processor
		body io.ReadCloser
	)

	g := join.New()
	g.Go(func() (err error) {
		p, err = u.processors.Get(ctx, contentType)
		return err
	})
	g.Go(func() (err error) {
		body, err = u.StorageRepo.GetObject(ctx, src.Bucket, src.Key)
		return err
	})

	if err := g.Wait(); err != nil {
		g.AfterAll(func() {
			if body != nil {
				body.Close()
			}
		})
		return err
	}
	defer body.Close()

	dest := entity.Location{Bucket: u.cfg.DestinationBucket(src.Bucket), Key: outKey}

	var validator chunkedwriter.Validator
	if meta.ETag != "" {
		validator = func(etag string) {
			match := etag == meta.ETag
			scope.Checksum(match)
			if !match {
				u.l.Warn("%s etag [%s] did not validate with original checksum [%s]", dest, etag, meta.ETag)
				return
			}
			u.l.Debug("%s etag matches original checksum", dest)
		}
	}

	return u.transform(ctx, scope, p.Unparse, body, dest, tagcodec.Without(tags), validator)
}

// originalMetadata reads the metadata tag. An undecodable tag counts as
// absent.
func (u *TransformUsecase) originalMetadata(src entity.Location, tags []entity.Tag) tagcodec.OriginalMetadata {
	meta, found, err := tagcodec.FromTags(tags)
	if err != nil {
		u.l.Warn("ignoring %s tag on %s: %v", tagcodec.TagName, src, err)
		return tagcodec.OriginalMetadata{}
	}
	if !found {
		u.l.Info("%s has no %s tag", src, tagcodec.TagName)
	}
	return meta
}

type codecFunc func(in io.Reader, out io.Writer) entity.Result

// transform streams in through run into dest. On any failure the partial
// destination is removed before the error is returned.
func (u *TransformUsecase) transform(ctx context.Context, scope *metric.Scope, run codecFunc, in io.Reader,
	dest entity.Location, tags []entity.Tag, validator chunkedwriter.Validator,
) (err error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "Transform")
	defer span.End()
	span.SetAttributes(attribute.String("destination", dest.String()))

	opts := []chunkedwriter.Option{
		chunkedwriter.WithPartSize(u.cfg.PartSize),
		chunkedwriter.WithTags(tags),
	}
	if validator != nil {
		opts = append(opts, chunkedwriter.WithValidator(validator))
	}
	w := chunkedwriter.New(ctx, u.StorageRepo, dest.Bucket, dest.Key, opts...)

	defer func() {
		if err == nil {
			return
		}
		if cancelErr := w.Cancel(); cancelErr != nil && !errors.Is(cancelErr, chunkedwriter.ErrNoUploadSession) {
			u.l.Warn("could not abort upload to %s: %v", dest, cancelErr)
		}
		if delErr := u.StorageRepo.DeleteObject(ctx, dest.Bucket, dest.Key); delErr != nil {
			u.l.Warn("could not remove partial output %s: %v", dest, delErr)
		}
	}()

	started := time.Now()
	res := run(in, w)
	elapsed := time.Since(started)

	if res.IsError() {
		for _, d := range res.Diagnostics {
			u.l.Error("%s: %s", dest, d.Message)
		}
		return &entity.DiagnosticsError{
			Kind:        entity.ErrTransformFailure,
			Msg:         fmt.Sprintf("there was an error with the codec for %s", scope.ContentType()),
			Diagnostics: res.Diagnostics,
		}
	}

	if err := w.Close(); err != nil {
		return err
	}
	scope.ObserveLatency(elapsed)
	return nil
}

func (u *TransformUsecase) record(ctx context.Context, req entity.TransformRequest, contentType string, err error, d time.Duration) {
	if u.journal == nil {
		return
	}

	rec := entity.TransformRecord{
		Bucket:      req.Source.Bucket,
		Key:         req.Source.Key,
		Direction:   req.Direction.String(),
		ContentType: contentType,
		Status:      entity.StatusSucceeded,
		DurationMs:  d.Milliseconds(),
	}
	if err != nil {
		rec.Status = entity.StatusFailed
		rec.Error = err.Error()
	}
	if jerr := u.journal.Record(ctx, rec); jerr != nil {
		u.l.Warn("could not journal %s of %s: %v", req.Direction, req.Source, jerr)
	}
}

// errorType names the failure class of err for metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, entity.ErrContentTypeUnresolved):
		return "ContentTypeUnresolved"
	case errors.Is(err, entity.ErrSchemaUnavailable):
		return "SchemaUnavailable"
	case errors.Is(err, entity.ErrTransformFailure):
		return "TransformFailure"
	case errors.Is(err, entity.ErrStorageIO):
		return "StorageIOFailure"
	default:
		return "Unknown"
	}
}
