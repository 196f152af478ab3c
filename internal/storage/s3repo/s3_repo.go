package s3repo

import (
	"context"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"infoset_conversion/config"
	"infoset_conversion/entity"
)

const traceName = "S3-Repo"

type S3Repository struct {
	sess *s3.Client
}

var _ entity.StorageRepository = (*S3Repository)(nil)

// NewS3Repository builds a client from the default AWS credential chain.
// Static keys and a custom endpoint (path-style, for S3 compatible
// stores) are used when configured.
func NewS3Repository(ctx context.Context, cfg config.Storage) (*S3Repository, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Repository{s3Client}, nil
}

func (s3Repo *S3Repository) HeadObject(ctx context.Context, bucket, key string) (entity.ObjectHead, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "HeadObject")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	out, err := s3Repo.sess.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return entity.ObjectHead{}, entity.NewStorageError("HeadObject", bucket, key, err)
	}

	return entity.ObjectHead{
		ETag:          aws.ToString(out.ETag),
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: aws.ToInt64(out.ContentLength),
	}, nil
}

func (s3Repo *S3Repository) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "GetObject")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	out, err := s3Repo.sess.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, entity.NewStorageError("GetObject", bucket, key, err)
	}
	return out.Body, nil
}

func (s3Repo *S3Repository) GetObjectTagging(ctx context.Context, bucket, key string) ([]entity.Tag, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "GetObjectTagging")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	out, err := s3Repo.sess.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, entity.NewStorageError("GetObjectTagging", bucket, key, err)
	}

	tags := make([]entity.Tag, 0, len(out.TagSet))
	for _, t := range out.TagSet {
		tags = append(tags, entity.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return tags, nil
}

func (s3Repo *S3Repository) DownloadObject(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "DownloadObject")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	downloader := manager.NewDownloader(s3Repo.sess)

	numBytes, err := downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, entity.NewStorageError("DownloadObject", bucket, key, err)
	}
	return numBytes, nil
}

func (s3Repo *S3Repository) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts entity.PutOptions) (string, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "PutObject")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key), attribute.Int64("size", size))

	out, err := s3Repo.sess.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   optional(opts.ContentType),
		Tagging:       encodeTagging(opts.Tags),
	})
	if err != nil {
		return "", entity.NewStorageError("PutObject", bucket, key, err)
	}
	return aws.ToString(out.ETag), nil
}

func (s3Repo *S3Repository) CreateMultipartUpload(ctx context.Context, bucket, key string, opts entity.PutOptions) (string, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "CreateMultipartUpload")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	out, err := s3Repo.sess.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: optional(opts.ContentType),
		Tagging:     encodeTagging(opts.Tags),
	})
	if err != nil {
		return "", entity.NewStorageError("CreateMultipartUpload", bucket, key, err)
	}
	return aws.ToString(out.UploadId), nil
}

func (s3Repo *S3Repository) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "UploadPart")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key), attribute.Int("part", int(partNumber)))

	out, err := s3Repo.sess.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", entity.NewStorageError("UploadPart", bucket, key, err)
	}
	return aws.ToString(out.ETag), nil
}

func (s3Repo *S3Repository) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []entity.CompletedPart) (string, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "CompleteMultipartUpload")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key), attribute.Int("parts", len(parts)))

	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		})
	}

	out, err := s3Repo.sess.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", entity.NewStorageError("CompleteMultipartUpload", bucket, key, err)
	}
	return aws.ToString(out.ETag), nil
}

func (s3Repo *S3Repository) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "AbortMultipartUpload")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	_, err := s3Repo.sess.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	return entity.NewStorageError("AbortMultipartUpload", bucket, key, err)
}

func (s3Repo *S3Repository) CopyObject(ctx context.Context, src, dst entity.Location) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "CopyObject")
	defer span.End()
	span.SetAttributes(attribute.String("source", src.String()), attribute.String("destination", dst.String()))

	_, err := s3Repo.sess.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dst.Bucket),
		Key:        aws.String(dst.Key),
		CopySource: aws.String(src.Bucket + "/" + url.PathEscape(src.Key)),
	})
	return entity.NewStorageError("CopyObject", src.Bucket, src.Key, err)
}

func (s3Repo *S3Repository) DeleteObject(ctx context.Context, bucket, key string) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "DeleteObject")
	defer span.End()
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("key", key))

	_, err := s3Repo.sess.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return entity.NewStorageError("DeleteObject", bucket, key, err)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// encodeTagging renders tags as the URL query string S3 expects on
// put and create-multipart requests. Order is preserved.
func encodeTagging(tags []entity.Tag) *string {
	if len(tags) == 0 {
		return nil
	}
	var buf []byte
	for i, t := range tags {
		if i > 0 {
			buf = append(buf, '&')
		}
		buf = append(buf, url.QueryEscape(t.Key)...)
		buf = append(buf, '=')
		buf = append(buf, url.QueryEscape(t.Value)...)
	}
	return aws.String(string(buf))
}
