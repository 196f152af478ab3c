package miniorepo

import (
	"context"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"infoset_conversion/config"
	"infoset_conversion/entity"
)

const traceName = "Minio-Repo"

// MinioRepository talks to MinIO through the low level Core API, which
// exposes multipart calls directly.
type MinioRepository struct {
	core *minio.Core
}

var _ entity.StorageRepository = (*MinioRepository)(nil)

func NewMinioRepository(cfg config.Storage) (*MinioRepository, error) {
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &MinioRepository{core: core}, nil
}

func (m *MinioRepository) HeadObject(ctx context.Context, bucket, key string) (entity.ObjectHead, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "HeadObject")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	info, err := m.core.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return entity.ObjectHead{}, entity.NewStorageError("HeadObject", bucket, key, err)
	}
	return entity.ObjectHead{ETag: quote(info.ETag), ContentType: info.ContentType, ContentLength: info.Size}, nil
}

func (m *MinioRepository) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "GetObject")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	body, _, _, err := m.core.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, entity.NewStorageError("GetObject", bucket, key, err)
	}
	return body, nil
}

// GetObjectTagging returns tags sorted by key; MinIO hands them back as a map.
func (m *MinioRepository) GetObjectTagging(ctx context.Context, bucket, key string) ([]entity.Tag, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "GetObjectTagging")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	t, err := m.core.Client.GetObjectTagging(ctx, bucket, key, minio.GetObjectTaggingOptions{})
	if err != nil {
		return nil, entity.NewStorageError("GetObjectTagging", bucket, key, err)
	}

	kv := t.ToMap()
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]entity.Tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, entity.Tag{Key: k, Value: kv[k]})
	}
	return tags, nil
}

func (m *MinioRepository) DownloadObject(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "DownloadObject")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	body, _, _, err := m.core.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, entity.NewStorageError("DownloadObject", bucket, key, err)
	}
	defer body.Close()

	n, err := io.Copy(io.NewOffsetWriter(w, 0), body)
	if err != nil {
		return n, entity.NewStorageError("DownloadObject", bucket, key, err)
	}
	return n, nil
}

func (m *MinioRepository) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts entity.PutOptions) (string, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "PutObject")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key), attribute.Int64("size", size))

	info, err := m.core.PutObject(ctx, bucket, key, body, size, "", "", putOptions(opts))
	if err != nil {
		return "", entity.NewStorageError("PutObject", bucket, key, err)
	}
	return quote(info.ETag), nil
}

func (m *MinioRepository) CreateMultipartUpload(ctx context.Context, bucket, key string, opts entity.PutOptions) (string, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "CreateMultipartUpload")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	id, err := m.core.NewMultipartUpload(ctx, bucket, key, putOptions(opts))
	if err != nil {
		return "", entity.NewStorageError("CreateMultipartUpload", bucket, key, err)
	}
	return id, nil
}

func (m *MinioRepository) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "UploadPart")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key), attribute.Int("part", int(partNumber)))

	part, err := m.core.PutObjectPart(ctx, bucket, key, uploadID, int(partNumber), body, size, minio.PutObjectPartOptions{})
	if err != nil {
		return "", entity.NewStorageError("UploadPart", bucket, key, err)
	}
	return quote(part.ETag), nil
}

func (m *MinioRepository) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []entity.CompletedPart) (string, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "CompleteMultipartUpload")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key), attribute.Int("parts", len(parts)))

	completed := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, minio.CompletePart{PartNumber: int(p.PartNumber), ETag: p.ETag})
	}

	info, err := m.core.CompleteMultipartUpload(ctx, bucket, key, uploadID, completed, minio.PutObjectOptions{})
	if err != nil {
		return "", entity.NewStorageError("CompleteMultipartUpload", bucket, key, err)
	}
	return quote(info.ETag), nil
}

func (m *MinioRepository) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "AbortMultipartUpload")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	err := m.core.AbortMultipartUpload(ctx, bucket, key, uploadID)
	return entity.NewStorageError("AbortMultipartUpload", bucket, key, err)
}

func (m *MinioRepository) CopyObject(ctx context.Context, src, dst entity.Location) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "CopyObject")
	defer span.End()
	span.SetAttributes(attribute.String("source", src.String()), attribute.String("destination", dst.String()))

	_, err := m.core.Client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dst.Bucket, Object: dst.Key},
		minio.CopySrcOptions{Bucket: src.Bucket, Object: src.Key},
	)
	return entity.NewStorageError("CopyObject", src.Bucket, src.Key, err)
}

func (m *MinioRepository) DeleteObject(ctx context.Context, bucket, key string) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "DeleteObject")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	err := m.core.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	return entity.NewStorageError("DeleteObject", bucket, key, err)
}

func putOptions(opts entity.PutOptions) minio.PutObjectOptions {
	out := minio.PutObjectOptions{ContentType: opts.ContentType}
	if len(opts.Tags) > 0 {
		out.UserTags = make(map[string]string, len(opts.Tags))
		for _, t := range opts.Tags {
			out.UserTags[t.Key] = t.Value
		}
	}
	return out
}

// quote returns etag in the quoted form S3 uses, so checksums compare
// equal whichever backend produced them.
func quote(etag string) string {
	if etag == "" || etag[0] == '"' {
		return etag
	}
	return `"` + etag + `"`
}
