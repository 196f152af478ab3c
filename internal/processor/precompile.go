package processor

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"infoset_conversion/entity"
)

const artifactContentType = "application/octet-stream"

// Precompile compiles the schema source and stores the artifact next to
// it, so later lookups take the fast path. It returns the artifact key.
func (r *StoreRepository) Precompile(ctx context.Context, schema string, out entity.MultipartUploader) (string, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "Precompile")
	defer span.End()
	span.SetAttributes(attribute.String("schema", schema))

	p, err := r.compile(ctx, schema)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := r.engine.Save(p, &buf); err != nil {
		return "", errors.Wrapf(err, "save compiled schema %s", schema)
	}

	key := schema + r.precompiledExt
	if _, err := out.PutObject(ctx, r.bucket, key, &buf, int64(buf.Len()),
		entity.PutOptions{ContentType: artifactContentType}); err != nil {
		return "", err
	}
	r.l.Info("stored precompiled schema s3://%s/%s", r.bucket, key)
	return key, nil
}
