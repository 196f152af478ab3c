package metric

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// UnknownContentType labels a request until its content type is resolved.
const UnknownContentType = "UNKNOWN"

type Metrics struct {
	detailed bool
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	checksum *prometheus.CounterVec
}

// New registers the transform collectors with reg. Request and failure
// counts are only recorded when detailed is set.
func New(namespace string, detailed bool, reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		detailed: detailed,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "requests_total",
			Help:      "Transform requests processed.",
		}, []string{"content_type", "action"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "errors_total",
			Help:      "Transform requests that failed.",
		}, []string{"content_type", "action", "error_type"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "codec_duration_seconds",
			Help:      "Time spent inside the codec.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"content_type", "action"}),
		checksum: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "checksum_validations_total",
			Help:      "Reverse transforms checked against the original checksum.",
		}, []string{"content_type", "result"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.failures, m.latency, m.checksum} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register transform metrics")
		}
	}
	return m, nil
}

// Scope starts the metric dimensions of one request.
func (m *Metrics) Scope(action string) *Scope {
	return &Scope{m: m, action: action, contentType: UnknownContentType}
}

// Scope is owned by a single request.
type Scope struct {
	m           *Metrics
	action      string
	contentType string
}

func (s *Scope) SetContentType(ct string) {
	if ct != "" {
		s.contentType = ct
	}
}

func (s *Scope) ContentType() string {
	return s.contentType
}

func (s *Scope) ObserveLatency(d time.Duration) {
	s.m.latency.WithLabelValues(s.contentType, s.action).Observe(d.Seconds())
}

func (s *Scope) Succeeded() {
	if s.m.detailed {
		s.m.requests.WithLabelValues(s.contentType, s.action).Inc()
	}
}

func (s *Scope) Failed(errorType string) {
	if s.m.detailed {
		s.m.requests.WithLabelValues(s.contentType, s.action).Inc()
		s.m.failures.WithLabelValues(s.contentType, s.action, errorType).Inc()
	}
}

func (s *Scope) Checksum(match bool) {
	result := "match"
	if !match {
		result = "mismatch"
	}
	s.m.checksum.WithLabelValues(s.contentType, result).Inc()
}

// Server serves reg on /metrics until the listener fails.
func Server(listenAddr string, reg prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info().Msgf("Serving metrics on %s", listenAddr)
	if err := http.ListenAndServe(listenAddr, mux); err != nil {
		log.Error().Err(err).Msg("Caught error listening for metrics")
	} else {
		log.Info().Msg("Finished listening for metrics")
	}
}
