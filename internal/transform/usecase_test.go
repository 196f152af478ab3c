package transform

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infoset_conversion/config"
	"infoset_conversion/entity"
	"infoset_conversion/internal/contenttype"
	"infoset_conversion/internal/processor"
	"infoset_conversion/internal/storage/memstore"
	"infoset_conversion/internal/telemetry/metric"
	"infoset_conversion/pkg/codec/xmlwrap"
	"infoset_conversion/pkg/logger"
	"infoset_conversion/pkg/tagcodec"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// countingResolver counts key derivations.
type countingResolver struct {
	inner   KeyResolver
	derives int32
}

func (r *countingResolver) DeriveFromKey(ctx context.Context, key string) (string, bool) {
	atomic.AddInt32(&r.derives, 1)
	return r.inner.DeriveFromKey(ctx, key)
}

type codecProcessor struct {
	parse   func(io.Reader, io.Writer) entity.Result
	unparse func(io.Reader, io.Writer) entity.Result
}

func copyCodec(in io.Reader, out io.Writer) entity.Result {
	if _, err := io.Copy(out, in); err != nil {
		return entity.Result{Failed: true, Diagnostics: []entity.Diagnostic{{Message: err.Error(), Cause: err}}}
	}
	return entity.Result{}
}

func (p codecProcessor) Parse(in io.Reader, out io.Writer) entity.Result {
	if p.parse == nil {
		return copyCodec(in, out)
	}
	return p.parse(in, out)
}

func (p codecProcessor) Unparse(in io.Reader, out io.Writer) entity.Result {
	if p.unparse == nil {
		return copyCodec(in, out)
	}
	return p.unparse(in, out)
}

type fakeRepo struct {
	mu      sync.Mutex
	proc    entity.Processor
	err     error
	release chan struct{}
	asked   []string
}

func (r *fakeRepo) Get(_ context.Context, ct string) (entity.Processor, error) {
	r.mu.Lock()
	r.asked = append(r.asked, ct)
	release := r.release
	r.mu.Unlock()
	if release != nil {
		<-release
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.proc, nil
}

func (r *fakeRepo) contentTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.asked...)
}

type alert struct{ subject, message string }

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []alert
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, subject, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert{subject, message})
	return n.err
}

type fakeJournal struct {
	mu   sync.Mutex
	recs []entity.TransformRecord
}

func (j *fakeJournal) Record(_ context.Context, rec entity.TransformRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, rec)
	return nil
}

type fixture struct {
	store    *memstore.Store
	repo     *fakeRepo
	resolver *countingResolver
	reg      *prometheus.Registry
	notifier *fakeNotifier
	journal  *fakeJournal
	logs     *lockedBuffer
	uc       *TransformUsecase
}

func baseConfig() config.Transform {
	return config.Transform{
		SchemaBucket:     "schemas",
		InfosetExtension: ".infoset.xml",
		PartSize:         1024,
	}
}

func staticResolver() *contenttype.Resolver {
	return contenttype.NewResolver(contenttype.CaseInsensitive(contenttype.LoaderFunc(func(context.Context) contenttype.Snapshot {
		return contenttype.NewSnapshot(map[string]string{"orders": "orders-schema", "csv": "csv-schema"})
	})))
}

func newFixture(t *testing.T, cfg config.Transform) *fixture {
	f := &fixture{
		store:    memstore.New(),
		repo:     &fakeRepo{proc: codecProcessor{}},
		resolver: &countingResolver{inner: staticResolver()},
		reg:      prometheus.NewRegistry(),
		notifier: &fakeNotifier{},
		journal:  &fakeJournal{},
		logs:     &lockedBuffer{},
	}
	m, err := metric.New("test", true, f.reg)
	require.NoError(t, err)

	f.uc = NewTransformUsecase(f.store, f.resolver, f.repo, cfg, m, logger.NewWithWriter("debug", f.logs),
		WithNotifier(f.notifier), WithJournal(f.journal))
	return f
}

func counter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func metaValue(etag, contentType string) string {
	return base64.StdEncoding.EncodeToString([]byte("ETag=" + etag + "&ContentType=" + contentType))
}

func TestRequestDirection(t *testing.T) {
	f := newFixture(t, baseConfig())

	req := f.uc.Request("b", "in/orders/a.dat")
	assert.Equal(t, entity.Forward, req.Direction)
	assert.Equal(t, entity.Location{Bucket: "b", Key: "in/orders/a.dat"}, req.Source)

	assert.Equal(t, entity.Reverse, f.uc.Request("b", "in/orders/a.dat.infoset.xml").Direction)
	assert.Equal(t, entity.Forward, f.uc.Request("b", "in/orders/a.infoset.xml.bak").Direction)
}

func TestEndToEndRoundTrip(t *testing.T) {
	store := memstore.New()
	logs := &lockedBuffer{}
	l := logger.NewWithWriter("debug", logs)

	store.Seed("schemas", "content-types.yaml", []byte("orders: orders-schema\n"), "")
	store.Seed("schemas", "orders-schema", []byte(`<schema root="orders" chunk="5"/>`), "")

	original := []byte("order-1,widget,3\norder-2,gadget,7\n")
	srcETag := store.Seed("data", "incoming/orders/2024.dat", original, "", entity.Tag{Key: "team", Value: "ingest"})

	cfg := baseConfig()
	cfg.PartSize = 64
	cfg.ArchiveBucket = "archive"
	cfg.PrecompiledExtension = ".dp"

	ctResolver := contenttype.NewStoreResolver(store, "schemas", "content-types.yaml", time.Minute, l)
	resolver := &countingResolver{inner: ctResolver}
	repo := processor.NewCachedRepository(
		processor.NewStoreRepository(store, ctResolver, xmlwrap.New(), "schemas", ".dp", t.TempDir(), l),
		15*time.Minute, 100, l)

	reg := prometheus.NewRegistry()
	m, err := metric.New("test", true, reg)
	require.NoError(t, err)
	uc := NewTransformUsecase(store, resolver, repo, cfg, m, l)
	ctx := context.Background()

	// Forward.
	require.NoError(t, uc.Process(ctx, uc.Request("data", "incoming/orders/2024.dat")))

	infoset, ok := store.Object("data", "incoming/orders/2024.dat.infoset.xml")
	require.True(t, ok)
	assert.Contains(t, string(infoset.Data), "<orders>")
	assert.Equal(t, []entity.Tag{
		{Key: "team", Value: "ingest"},
		{Key: tagcodec.TagName, Value: metaValue(srcETag, "orders")},
	}, infoset.Tags)
	assert.NotEmpty(t, store.Calls(memstore.OpPart), "infoset is larger than one part")

	_, stillThere := store.Object("data", "incoming/orders/2024.dat")
	assert.False(t, stillThere, "source moved to the archive")
	archived, ok := store.Object("archive", "incoming/orders/2024.dat")
	require.True(t, ok)
	assert.Equal(t, original, archived.Data)

	// Reverse.
	derivesBefore := atomic.LoadInt32(&resolver.derives)
	require.NoError(t, uc.Process(ctx, uc.Request("data", "incoming/orders/2024.dat.infoset.xml")))
	assert.Equal(t, derivesBefore, atomic.LoadInt32(&resolver.derives), "content type comes from the tag")

	restored, ok := store.Object("data", "incoming/orders/2024.dat")
	require.True(t, ok)
	assert.Equal(t, original, restored.Data)
	assert.Equal(t, []entity.Tag{{Key: "team", Value: "ingest"}}, restored.Tags)

	assert.Equal(t, 1.0, counter(t, reg, "test_transform_checksum_validations_total",
		map[string]string{"content_type": "orders", "result": "match"}))
	assert.Equal(t, 1.0, counter(t, reg, "test_transform_requests_total",
		map[string]string{"content_type": "orders", "action": "Unparse"}))
	assert.NotContains(t, logs.String(), "did not validate")
}

func TestForwardWritesToOutputBucket(t *testing.T) {
	cfg := baseConfig()
	cfg.OutputBucket = "out"
	f := newFixture(t, cfg)
	f.store.Seed("in", "csv/a.txt", []byte("a,b"), "")

	require.NoError(t, f.uc.Process(context.Background(), f.uc.Request("in", "csv/a.txt")))

	_, ok := f.store.Object("out", "csv/a.txt.infoset.xml")
	assert.True(t, ok)
	assert.Equal(t, []string{"csv"}, f.repo.contentTypes())
	_, ok = f.store.Object("in", "csv/a.txt")
	assert.False(t, ok, "source deleted without an archive bucket")
}

func TestForwardReplacesStaleMetadataTag(t *testing.T) {
	f := newFixture(t, baseConfig())
	etag := f.store.Seed("b", "x/a.csv", []byte("1"), "",
		entity.Tag{Key: "OriginalContentTypeAndEtag", Value: "old"})

	require.NoError(t, f.uc.Process(context.Background(), f.uc.Request("b", "x/a.csv")))

	out, ok := f.store.Object("b", "x/a.csv.infoset.xml")
	require.True(t, ok)
	assert.Equal(t, []entity.Tag{{Key: tagcodec.TagName, Value: metaValue(etag, "csv")}}, out.Tags)
}

func TestForwardUnresolvedContentType(t *testing.T) {
	cfg := baseConfig()
	cfg.DeadLetterBucket = "dlq"
	f := newFixture(t, cfg)
	f.store.Seed("b", "misc/file.bin", []byte("?"), "")

	err := f.uc.Process(context.Background(), f.uc.Request("b", "misc/file.bin"))
	assert.ErrorIs(t, err, entity.ErrContentTypeUnresolved)
	assert.Empty(t, f.repo.contentTypes())
	assert.Empty(t, f.store.Calls(memstore.OpGet))

	_, ok := f.store.Object("dlq", "misc/file.bin")
	assert.True(t, ok)
	assert.Equal(t, 1.0, counter(t, f.reg, "test_transform_errors_total",
		map[string]string{"content_type": metric.UnknownContentType, "error_type": "ContentTypeUnresolved"}))
}

func TestFailFastOnTagFetch(t *testing.T) {
	cfg := baseConfig()
	cfg.DeadLetterBucket = "dlq"
	f := newFixture(t, cfg)
	f.store.Seed("b", "in/orders/1.dat", []byte("payload"), "")
	boom := errors.New("tagging access denied")
	f.store.Fail(memstore.OpTagging, boom)

	err := f.uc.Process(context.Background(), f.uc.Request("b", "in/orders/1.dat"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, entity.ErrStorageIO)

	assert.Empty(t, f.store.Calls(memstore.OpPut))
	assert.Empty(t, f.store.Calls(memstore.OpCreate))
	assert.Empty(t, f.store.Calls(memstore.OpPart))
	_, ok := f.store.Object("b", "in/orders/1.dat.infoset.xml")
	assert.False(t, ok)

	_, ok = f.store.Object("dlq", "in/orders/1.dat")
	assert.True(t, ok, "source quarantined")
	_, ok = f.store.Object("b", "in/orders/1.dat")
	assert.False(t, ok)

	require.Len(t, f.notifier.alerts, 1)
	msg := f.notifier.alerts[0].message
	assert.Equal(t, alertSubject, f.notifier.alerts[0].subject)
	assert.Contains(t, msg, "s3://b/in/orders/1.dat")
	assert.Contains(t, msg, "moved to s3://dlq/in/orders/1.dat")
	assert.Contains(t, msg, "tagging access denied")

	require.Len(t, f.journal.recs, 1)
	assert.Equal(t, entity.StatusFailed, f.journal.recs[0].Status)
	assert.Equal(t, "orders", f.journal.recs[0].ContentType)
}

func TestFailFastDoesNotWaitForSlowLookups(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.store.Seed("b", "in/orders/1.dat", []byte("payload"), "")
	f.store.Fail(memstore.OpHead, errors.New("head failed"))
	f.repo.release = make(chan struct{})
	defer close(f.repo.release)

	done := make(chan error, 1)
	go func() {
		done <- f.uc.Process(context.Background(), f.uc.Request("b", "in/orders/1.dat"))
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Process waited for the codec lookup after a failure")
	}
}

func TestSchemaUnavailable(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.store.Seed("b", "in/orders/1.dat", []byte("payload"), "")
	f.repo.err = errors.Wrap(entity.ErrSchemaUnavailable, "no schema mapped for content-type orders")

	err := f.uc.Process(context.Background(), f.uc.Request("b", "in/orders/1.dat"))
	assert.ErrorIs(t, err, entity.ErrSchemaUnavailable)
	assert.Equal(t, 1.0, counter(t, f.reg, "test_transform_errors_total",
		map[string]string{"content_type": "orders", "error_type": "SchemaUnavailable"}))

	_, ok := f.store.Object("b", "in/orders/1.dat")
	assert.True(t, ok, "source is left in place without a dead-letter bucket")
}

func TestTransformFailureCleansUp(t *testing.T) {
	cfg := baseConfig()
	cfg.PartSize = 8
	f := newFixture(t, cfg)
	f.store.Seed("b", "in/orders/1.dat", []byte("payload"), "")

	cause := errors.New("unexpected end of data")
	f.repo.proc = codecProcessor{parse: func(in io.Reader, out io.Writer) entity.Result {
		_, _ = out.Write(bytes.Repeat([]byte("x"), 20))
		return entity.Result{Failed: true, Diagnostics: []entity.Diagnostic{
			{Message: "unexpected end of data at byte 7", Cause: cause},
			{Message: "element line incomplete"},
		}}
	}}

	err := f.uc.Process(context.Background(), f.uc.Request("b", "in/orders/1.dat"))
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrTransformFailure)
	assert.ErrorIs(t, err, cause)

	var diagErr *entity.DiagnosticsError
	require.ErrorAs(t, err, &diagErr)
	assert.Len(t, diagErr.Diagnostics, 2)

	assert.NotEmpty(t, f.store.Calls(memstore.OpPart))
	assert.Len(t, f.store.Calls(memstore.OpAbort), 1)
	assert.Equal(t, 0, f.store.PendingUploads())

	var deletedDest bool
	for _, c := range f.store.Calls(memstore.OpDelete) {
		if c.Key == "in/orders/1.dat.infoset.xml" {
			deletedDest = true
		}
	}
	assert.True(t, deletedDest)
	_, ok := f.store.Object("b", "in/orders/1.dat.infoset.xml")
	assert.False(t, ok)

	logs := f.logs.String()
	assert.Contains(t, logs, "unexpected end of data at byte 7")
	assert.Contains(t, logs, "element line incomplete")
}

func TestWriteFailureCleansUp(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.store.Seed("b", "in/orders/1.dat", []byte("payload"), "")
	f.store.FailKey(memstore.OpPut, "b", "in/orders/1.dat.infoset.xml", errors.New("slow down"))

	err := f.uc.Process(context.Background(), f.uc.Request("b", "in/orders/1.dat"))
	assert.ErrorIs(t, err, entity.ErrStorageIO)
	assert.Equal(t, 1.0, counter(t, f.reg, "test_transform_errors_total",
		map[string]string{"error_type": "StorageIOFailure"}))
}

func TestReverseFallsBackToKey(t *testing.T) {
	for name, tags := range map[string][]entity.Tag{
		"no tag":         nil,
		"undecodable":    {{Key: tagcodec.TagName, Value: "%%%"}},
		"no contenttype": {{Key: tagcodec.TagName, Value: base64.StdEncoding.EncodeToString([]byte("ETag=\"x\""))}},
	} {
		f := newFixture(t, baseConfig())
		f.store.Seed("b", "in/orders/1.dat.infoset.xml", []byte("<orders/>"), "", tags...)

		err := f.uc.Process(context.Background(), f.uc.Request("b", "in/orders/1.dat.infoset.xml"))
		require.NoError(t, err, name)
		assert.Equal(t, []string{"orders"}, f.repo.contentTypes(), name)

		out, ok := f.store.Object("b", "in/orders/1.dat")
		require.True(t, ok, name)
		assert.Empty(t, out.Tags, name)
	}
}

func TestReverseUnresolved(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.store.Seed("b", "misc/1.dat.infoset.xml", []byte("<x/>"), "")

	err := f.uc.Process(context.Background(), f.uc.Request("b", "misc/1.dat.infoset.xml"))
	assert.ErrorIs(t, err, entity.ErrContentTypeUnresolved)
	assert.Empty(t, f.store.Calls(memstore.OpGet))
}

func TestReverseChecksumMismatchIsNotFatal(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.store.Seed("b", "x/1.dat.infoset.xml", []byte("<orders/>"), "",
		tagcodec.Tag(tagcodec.OriginalMetadata{ContentType: "orders", ETag: `"not-the-etag"`}))

	require.NoError(t, f.uc.Process(context.Background(), f.uc.Request("b", "x/1.dat.infoset.xml")))
	assert.Equal(t, []string{"orders"}, f.repo.contentTypes())
	assert.Equal(t, 1.0, counter(t, f.reg, "test_transform_checksum_validations_total",
		map[string]string{"content_type": "orders", "result": "mismatch"}))
	assert.Contains(t, f.logs.String(), "did not validate")
}

func TestReverseWithoutChecksumSkipsValidation(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.store.Seed("b", "x/1.dat.infoset.xml", []byte("<orders/>"), "",
		tagcodec.Tag(tagcodec.OriginalMetadata{ContentType: "orders"}))

	require.NoError(t, f.uc.Process(context.Background(), f.uc.Request("b", "x/1.dat.infoset.xml")))
	assert.Equal(t, 0.0, counter(t, f.reg, "test_transform_checksum_validations_total", nil))
}

func TestHousekeepingFailuresAreNotEscalated(t *testing.T) {
	cfg := baseConfig()
	cfg.ArchiveBucket = "archive"
	f := newFixture(t, cfg)
	f.store.Seed("b", "in/orders/1.dat", []byte("payload"), "")
	f.store.Fail(memstore.OpCopy, errors.New("archive bucket missing"))

	require.NoError(t, f.uc.Process(context.Background(), f.uc.Request("b", "in/orders/1.dat")))
	_, ok := f.store.Object("b", "in/orders/1.dat")
	assert.True(t, ok, "source kept when the archive copy fails")
	assert.Contains(t, f.logs.String(), "archive bucket missing")

	require.Len(t, f.journal.recs, 1)
	assert.Equal(t, entity.StatusSucceeded, f.journal.recs[0].Status)
}

func TestNotifyFailureIsLogged(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.notifier.err = errors.New("broker down")
	f.store.Seed("b", "misc/1.dat", []byte("?"), "")

	err := f.uc.Process(context.Background(), f.uc.Request("b", "misc/1.dat"))
	assert.ErrorIs(t, err, entity.ErrContentTypeUnresolved)
	require.Len(t, f.notifier.alerts, 1)
	assert.NotContains(t, f.notifier.alerts[0].message, "moved to")
	assert.True(t, strings.Contains(f.logs.String(), "broker down"))
}
