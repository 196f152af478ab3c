package v1

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infoset_conversion/entity"
	"infoset_conversion/pkg/logger"
)

type stubUsecase struct {
	err  error
	seen []entity.TransformRequest
}

func (s *stubUsecase) Request(bucket, key string) entity.TransformRequest {
	d := entity.Forward
	if strings.HasSuffix(key, ".infoset.xml") {
		d = entity.Reverse
	}
	return entity.TransformRequest{Source: entity.Location{Bucket: bucket, Key: key}, Direction: d}
}

func (s *stubUsecase) Process(_ context.Context, req entity.TransformRequest) error {
	s.seen = append(s.seen, req)
	return s.err
}

type stubHistory struct {
	bucket, key string
	limit       int
}

func (h *stubHistory) History(_ context.Context, bucket, key string, limit int) ([]entity.TransformRecord, error) {
	h.bucket, h.key, h.limit = bucket, key, limit
	return []entity.TransformRecord{{Bucket: bucket, Key: key, Status: entity.StatusFailed}}, nil
}

func newTestRouter(uc entity.TransformUsecase, opts ...RouterOption) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := gin.New()
	NewRouter(handler, logger.NewWithWriter("debug", io.Discard), uc, opts...)
	return handler
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHealthz(t *testing.T) {
	w := serve(newTestRouter(&stubUsecase{}), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTransformRoute(t *testing.T) {
	uc := &stubUsecase{}
	h := newTestRouter(uc)

	w := serve(h, http.MethodPost, "/v1/transform/data/incoming/orders/2024.dat.infoset.xml")
	require.Equal(t, http.StatusOK, w.Code)

	var body transformResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, transformResponse{
		Status: entity.StatusSucceeded,
		Source: "s3://data/incoming/orders/2024.dat.infoset.xml",
		Action: "Unparse",
	}, body)
	require.Len(t, uc.seen, 1)
	assert.Equal(t, "incoming/orders/2024.dat.infoset.xml", uc.seen[0].Source.Key)
}

func TestTransformRouteErrors(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{errors.Wrap(entity.ErrContentTypeUnresolved, "key"), http.StatusUnprocessableEntity},
		{&entity.DiagnosticsError{Kind: entity.ErrTransformFailure, Msg: "codec"}, http.StatusUnprocessableEntity},
		{entity.NewStorageError("GetObject", "b", "k", errors.New("denied")), http.StatusBadGateway},
		{errors.New("surprise"), http.StatusInternalServerError},
	} {
		h := newTestRouter(&stubUsecase{err: tc.err})
		w := serve(h, http.MethodPost, "/v1/transform/b/k.dat")
		assert.Equal(t, tc.code, w.Code, tc.err.Error())

		var body response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.err.Error(), body.Error)
	}
}

func TestTransformRouteNeedsKey(t *testing.T) {
	uc := &stubUsecase{}
	w := serve(newTestRouter(uc), http.MethodPost, "/v1/transform/b/")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, uc.seen)
}

func TestHistoryRoute(t *testing.T) {
	hist := &stubHistory{}
	h := newTestRouter(&stubUsecase{}, WithHistory(hist))

	w := serve(h, http.MethodGet, "/v1/history/b/x/a.dat?limit=5000")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b", hist.bucket)
	assert.Equal(t, "x/a.dat", hist.key)
	assert.Equal(t, maxHistoryLimit, hist.limit)

	w = serve(h, http.MethodGet, "/v1/history/b/x/a.dat?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryRouteDisabled(t *testing.T) {
	w := serve(newTestRouter(&stubUsecase{}), http.MethodGet, "/v1/history/b/x")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"})
	reg.MustRegister(c)
	c.Inc()

	w := serve(newTestRouter(&stubUsecase{}, WithMetrics(reg)), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "probe_total 1")
}
