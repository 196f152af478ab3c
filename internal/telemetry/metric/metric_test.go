package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeLabelsStartUnknown(t *testing.T) {
	m, err := New("test", true, prometheus.NewRegistry())
	require.NoError(t, err)

	s := m.Scope("Parse")
	assert.Equal(t, UnknownContentType, s.ContentType())
	s.Failed("ContentTypeUnresolved")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(UnknownContentType, "Parse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues(UnknownContentType, "Parse", "ContentTypeUnresolved")))

	s = m.Scope("Parse")
	s.SetContentType("orders")
	s.SetContentType("")
	s.Succeeded()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("orders", "Parse")))
}

func TestCountsNeedDetailedMetrics(t *testing.T) {
	m, err := New("test", false, prometheus.NewRegistry())
	require.NoError(t, err)

	s := m.Scope("Unparse")
	s.SetContentType("orders")
	s.Succeeded()
	s.Failed("TransformFailure")
	s.ObserveLatency(20 * time.Millisecond)
	s.Checksum(true)
	s.Checksum(false)

	assert.Equal(t, 0, testutil.CollectAndCount(m.requests))
	assert.Equal(t, 0, testutil.CollectAndCount(m.failures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksum.WithLabelValues("orders", "match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksum.WithLabelValues("orders", "mismatch")))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New("test", false, reg)
	require.NoError(t, err)
	_, err = New("test", false, reg)
	assert.Error(t, err)
}
