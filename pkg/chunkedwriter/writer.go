// Package chunkedwriter streams an object of unknown size into a bucket
// through a fixed memory buffer.
//
// An object that fits in the buffer is stored with a single put on Close.
// Once the buffer overflows the writer opens a multipart upload and sends
// each full buffer as the next part; Close sends the remainder and
// completes the upload.
package chunkedwriter

import (
	"bytes"
	"context"

	"github.com/pkg/errors"

	"infoset_conversion/entity"
)

// DefaultPartSize is the buffer capacity when none is given.
const DefaultPartSize = 10000000

var (
	ErrWriterClosed    = errors.New("chunked writer is closed")
	ErrNoUploadSession = errors.New("no multipart upload in progress")
)

type state int

const (
	notStarted state = iota
	multipart
	done
)

// Validator receives the integrity token of the stored object after a
// successful Close.
type Validator func(etag string)

type options struct {
	partSize  int
	put       entity.PutOptions
	validator Validator
}

type Option func(*options)

func WithPartSize(n int) Option {
	return func(o *options) { o.partSize = n }
}

func WithContentType(ct string) Option {
	return func(o *options) { o.put.ContentType = ct }
}

// WithTags attaches tags to the stored object.
func WithTags(tags []entity.Tag) Option {
	return func(o *options) { o.put.Tags = tags }
}

func WithValidator(v Validator) Option {
	return func(o *options) { o.validator = v }
}

// Writer is an io.WriteCloser. It is not safe for concurrent use.
type Writer struct {
	ctx    context.Context
	client entity.MultipartUploader
	bucket string
	key    string
	opts   options

	buf      []byte
	pos      int
	uploadID string
	parts    []entity.CompletedPart
	state    state
}

// New returns a writer for bucket/key. Nothing is sent until the buffer
// overflows or the writer is closed. ctx is used for every remote call.
func New(ctx context.Context, client entity.MultipartUploader, bucket, key string, opts ...Option) *Writer {
	o := options{partSize: DefaultPartSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.partSize <= 0 {
		o.partSize = DefaultPartSize
	}

	return &Writer{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		key:    key,
		opts:   o,
		buf:    make([]byte, o.partSize),
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.state == done {
		return 0, ErrWriterClosed
	}

	n := 0
	for len(p) > 0 {
		if w.pos == len(w.buf) {
			if err := w.spill(); err != nil {
				return n, err
			}
		}
		c := copy(w.buf[w.pos:], p)
		w.pos += c
		n += c
		p = p[c:]
	}
	return n, nil
}

// Flush only checks the writer is open. Data is durable after Close.
func (w *Writer) Flush() error {
	if w.state == done {
		return ErrWriterClosed
	}
	return nil
}

// Close stores the object. Calling Close again does nothing.
func (w *Writer) Close() error {
	if w.state == done {
		return nil
	}
	prev := w.state
	w.state = done

	var (
		etag string
		err  error
	)
	if prev == multipart {
		etag, err = w.complete()
	} else {
		etag, err = w.client.PutObject(w.ctx, w.bucket, w.key, bytes.NewReader(w.buf[:w.pos]), int64(w.pos), w.opts.put)
		err = errors.Wrap(err, "chunkedwriter: put object")
	}
	w.buf = nil
	if err != nil {
		return err
	}

	if w.opts.validator != nil {
		w.opts.validator(etag)
	}
	return nil
}

// Cancel aborts the multipart upload and closes the writer. Without an
// upload in progress it only closes the writer and reports
// ErrNoUploadSession.
func (w *Writer) Cancel() error {
	switch w.state {
	case done:
		return nil
	case notStarted:
		w.state = done
		w.buf = nil
		return ErrNoUploadSession
	}

	w.state = done
	w.buf = nil
	err := w.client.AbortMultipartUpload(w.ctx, w.bucket, w.key, w.uploadID)
	return errors.Wrap(err, "chunkedwriter: abort multipart upload")
}

// Parts is the number of parts uploaded so far.
func (w *Writer) Parts() int {
	return len(w.parts)
}

func (w *Writer) spill() error {
	if w.uploadID == "" {
		id, err := w.client.CreateMultipartUpload(w.ctx, w.bucket, w.key, w.opts.put)
		if err != nil {
			return errors.Wrap(err, "chunkedwriter: create multipart upload")
		}
		w.uploadID = id
		w.state = multipart
	}
	if err := w.uploadPart(); err != nil {
		return err
	}
	w.pos = 0
	return nil
}

func (w *Writer) uploadPart() error {
	number := int32(len(w.parts) + 1)
	etag, err := w.client.UploadPart(w.ctx, w.bucket, w.key, w.uploadID, number, bytes.NewReader(w.buf[:w.pos]), int64(w.pos))
	if err != nil {
		return errors.Wrapf(err, "chunkedwriter: upload part %d", number)
	}
	w.parts = append(w.parts, entity.CompletedPart{PartNumber: number, ETag: etag})
	return nil
}

// complete returns the etag of the last part.
func (w *Writer) complete() (string, error) {
	err := func() error {
		if w.pos > 0 {
			if err := w.uploadPart(); err != nil {
				return err
			}
			w.pos = 0
		}
		_, err := w.client.CompleteMultipartUpload(w.ctx, w.bucket, w.key, w.uploadID, w.parts)
		return errors.Wrap(err, "chunkedwriter: complete multipart upload")
	}()
	if err != nil {
		if abortErr := w.client.AbortMultipartUpload(w.ctx, w.bucket, w.key, w.uploadID); abortErr != nil {
			return "", errors.Wrapf(err, "abort also failed: %v", abortErr)
		}
		return "", err
	}
	return w.parts[len(w.parts)-1].ETag, nil
}
