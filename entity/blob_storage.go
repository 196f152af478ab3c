package entity

import (
	"context"
	"io"
)

// Location addresses one object in a bucket.
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// Tag is a single object tag. Tag sets are ordered slices so that the
// order read from the store is the order written back.
type Tag struct {
	Key   string
	Value string
}

type ObjectHead struct {
	ETag          string
	ContentType   string
	ContentLength int64
}

// PutOptions carries what is attached to a new object at creation time.
type PutOptions struct {
	ContentType string
	Tags        []Tag
}

type CompletedPart struct {
	PartNumber int32
	ETag       string
}

type ObjectReader interface {
	HeadObject(ctx context.Context, bucket, key string) (ObjectHead, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	GetObjectTagging(ctx context.Context, bucket, key string) ([]Tag, error)
	// DownloadObject writes the whole object into w and returns the byte count.
	DownloadObject(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}

// MultipartUploader is the write surface used by the chunked writer.
type MultipartUploader interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts PutOptions) (string, error)
	CreateMultipartUpload(ctx context.Context, bucket, key string, opts PutOptions) (string, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (string, error)
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error
}

type StorageRepository interface {
	ObjectReader
	MultipartUploader
	CopyObject(ctx context.Context, src, dst Location) error
	DeleteObject(ctx context.Context, bucket, key string) error
}
