// Package memstore is an in-memory object store used by tests. It records
// every call and can be told to fail any operation.
package memstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"infoset_conversion/entity"
)

const (
	OpHead     = "HeadObject"
	OpGet      = "GetObject"
	OpTagging  = "GetObjectTagging"
	OpDownload = "DownloadObject"
	OpPut      = "PutObject"
	OpCreate   = "CreateMultipartUpload"
	OpPart     = "UploadPart"
	OpComplete = "CompleteMultipartUpload"
	OpAbort    = "AbortMultipartUpload"
	OpCopy     = "CopyObject"
	OpDelete   = "DeleteObject"
)

var (
	ErrNotFound      = errors.New("no such key")
	ErrNoSuchUpload  = errors.New("no such upload")
	ErrInvalidPartID = errors.New("invalid part")
)

type Call struct {
	Op         string
	Bucket     string
	Key        string
	PartNumber int32
	Size       int64
}

// Object is a stored object as seen by tests.
type Object struct {
	Data        []byte
	ContentType string
	Tags        []entity.Tag
	ETag        string
}

type upload struct {
	bucket string
	key    string
	opts   entity.PutOptions
	parts  map[int32][]byte
}

type Store struct {
	mu       sync.Mutex
	objects  map[string]Object
	uploads  map[string]*upload
	calls    []Call
	failures map[string]error
	hooks    map[string]func(Call)
	nextID   int
}

var _ entity.StorageRepository = (*Store)(nil)

func New() *Store {
	return &Store{
		objects:  make(map[string]Object),
		uploads:  make(map[string]*upload),
		failures: make(map[string]error),
		hooks:    make(map[string]func(Call)),
	}
}

func path(bucket, key string) string {
	return bucket + "/" + key
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// Seed stores an object directly, without recording a call.
func (s *Store) Seed(bucket, key string, data []byte, contentType string, tags ...entity.Tag) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := Object{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
		Tags:        append([]entity.Tag(nil), tags...),
		ETag:        etagOf(data),
	}
	s.objects[path(bucket, key)] = obj
	return obj.ETag
}

func (s *Store) Object(bucket, key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path(bucket, key)]
	return obj, ok
}

func (s *Store) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	prefix := bucket + "/"
	for p := range s.objects {
		if len(p) > len(prefix) && p[:len(prefix)] == prefix {
			keys = append(keys, p[len(prefix):])
		}
	}
	sort.Strings(keys)
	return keys
}

// Fail makes every later call of op return err.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// FailKey makes later calls of op on one object return err.
func (s *Store) FailKey(op, bucket, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op+" "+path(bucket, key)] = err
}

// OnCall runs fn at the start of every call of op, before any failure is
// injected. fn may block.
func (s *Store) OnCall(op string, fn func(Call)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[op] = fn
}

func (s *Store) Calls(op string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Call
	for _, c := range s.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// record logs the call and returns the injected failure, if any.
func (s *Store) record(c Call) error {
	s.mu.Lock()
	hook := s.hooks[c.Op]
	s.mu.Unlock()
	if hook != nil {
		hook(c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	if err, ok := s.failures[c.Op+" "+path(c.Bucket, c.Key)]; ok {
		return entity.NewStorageError(c.Op, c.Bucket, c.Key, err)
	}
	if err, ok := s.failures[c.Op]; ok {
		return entity.NewStorageError(c.Op, c.Bucket, c.Key, err)
	}
	return nil
}

func (s *Store) lookup(op, bucket, key string) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path(bucket, key)]
	if !ok {
		return Object{}, entity.NewStorageError(op, bucket, key, ErrNotFound)
	}
	return obj, nil
}

func (s *Store) HeadObject(ctx context.Context, bucket, key string) (entity.ObjectHead, error) {
	if err := s.record(Call{Op: OpHead, Bucket: bucket, Key: key}); err != nil {
		return entity.ObjectHead{}, err
	}
	obj, err := s.lookup(OpHead, bucket, key)
	if err != nil {
		return entity.ObjectHead{}, err
	}
	return entity.ObjectHead{ETag: obj.ETag, ContentType: obj.ContentType, ContentLength: int64(len(obj.Data))}, nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := s.record(Call{Op: OpGet, Bucket: bucket, Key: key}); err != nil {
		return nil, err
	}
	obj, err := s.lookup(OpGet, bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

func (s *Store) GetObjectTagging(ctx context.Context, bucket, key string) ([]entity.Tag, error) {
	if err := s.record(Call{Op: OpTagging, Bucket: bucket, Key: key}); err != nil {
		return nil, err
	}
	obj, err := s.lookup(OpTagging, bucket, key)
	if err != nil {
		return nil, err
	}
	return append([]entity.Tag(nil), obj.Tags...), nil
}

func (s *Store) DownloadObject(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	if err := s.record(Call{Op: OpDownload, Bucket: bucket, Key: key}); err != nil {
		return 0, err
	}
	obj, err := s.lookup(OpDownload, bucket, key)
	if err != nil {
		return 0, err
	}
	n, err := w.WriteAt(obj.Data, 0)
	return int64(n), err
}

func (s *Store) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts entity.PutOptions) (string, error) {
	if err := s.record(Call{Op: OpPut, Bucket: bucket, Key: key, Size: size}); err != nil {
		return "", err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", entity.NewStorageError(OpPut, bucket, key, err)
	}

	obj := Object{
		Data:        data,
		ContentType: opts.ContentType,
		Tags:        append([]entity.Tag(nil), opts.Tags...),
		ETag:        etagOf(data),
	}
	s.mu.Lock()
	s.objects[path(bucket, key)] = obj
	s.mu.Unlock()
	return obj.ETag, nil
}

func (s *Store) CreateMultipartUpload(ctx context.Context, bucket, key string, opts entity.PutOptions) (string, error) {
	if err := s.record(Call{Op: OpCreate, Bucket: bucket, Key: key}); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("upload-%d", s.nextID)
	s.uploads[id] = &upload{bucket: bucket, key: key, opts: opts, parts: make(map[int32][]byte)}
	return id, nil
}

func (s *Store) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	if err := s.record(Call{Op: OpPart, Bucket: bucket, Key: key, PartNumber: partNumber, Size: size}); err != nil {
		return "", err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", entity.NewStorageError(OpPart, bucket, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok {
		return "", entity.NewStorageError(OpPart, bucket, key, ErrNoSuchUpload)
	}
	u.parts[partNumber] = data
	return etagOf(data), nil
}

func (s *Store) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []entity.CompletedPart) (string, error) {
	if err := s.record(Call{Op: OpComplete, Bucket: bucket, Key: key, PartNumber: int32(len(parts))}); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok {
		return "", entity.NewStorageError(OpComplete, bucket, key, ErrNoSuchUpload)
	}

	var (
		data []byte
		sums []byte
		last int32
	)
	for _, p := range parts {
		part, ok := u.parts[p.PartNumber]
		if !ok || p.PartNumber <= last || p.ETag != etagOf(part) {
			return "", entity.NewStorageError(OpComplete, bucket, key, errors.Wrapf(ErrInvalidPartID, "part %d", p.PartNumber))
		}
		last = p.PartNumber
		data = append(data, part...)
		sum := md5.Sum(part)
		sums = append(sums, sum[:]...)
	}

	total := md5.Sum(sums)
	etag := fmt.Sprintf(`"%s-%d"`, hex.EncodeToString(total[:]), len(parts))
	s.objects[path(bucket, key)] = Object{
		Data:        data,
		ContentType: u.opts.ContentType,
		Tags:        append([]entity.Tag(nil), u.opts.Tags...),
		ETag:        etag,
	}
	delete(s.uploads, uploadID)
	return etag, nil
}

func (s *Store) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	if err := s.record(Call{Op: OpAbort, Bucket: bucket, Key: key}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[uploadID]; !ok {
		return entity.NewStorageError(OpAbort, bucket, key, ErrNoSuchUpload)
	}
	delete(s.uploads, uploadID)
	return nil
}

// PendingUploads counts multipart uploads neither completed nor aborted.
func (s *Store) PendingUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

func (s *Store) CopyObject(ctx context.Context, src, dst entity.Location) error {
	if err := s.record(Call{Op: OpCopy, Bucket: src.Bucket, Key: src.Key}); err != nil {
		return err
	}
	obj, err := s.lookup(OpCopy, src.Bucket, src.Key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[path(dst.Bucket, dst.Key)] = obj
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := s.record(Call{Op: OpDelete, Bucket: bucket, Key: key}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path(bucket, key))
	return nil
}
