// Package v1 implements routing paths. Each services in own file.
package v1

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"infoset_conversion/entity"
	"infoset_conversion/pkg/logger"
)

const traceName = "HTTP-Controller"

// HistoryReader lists journal records for an object.
type HistoryReader interface {
	History(ctx context.Context, bucket, key string, limit int) ([]entity.TransformRecord, error)
}

type RouterOption func(*routerOptions)

type routerOptions struct {
	history  HistoryReader
	gatherer prometheus.Gatherer
}

// WithHistory serves the journal under /v1/history.
func WithHistory(h HistoryReader) RouterOption {
	return func(o *routerOptions) { o.history = h }
}

// WithMetrics serves g under /metrics.
func WithMetrics(g prometheus.Gatherer) RouterOption {
	return func(o *routerOptions) { o.gatherer = g }
}

// NewRouter -.
func NewRouter(handler *gin.Engine, l logger.Interface, uc entity.TransformUsecase, opts ...RouterOption) {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	handler.Use(gin.Recovery())

	handler.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	if o.gatherer != nil {
		handler.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	}

	h := handler.Group("/v1")
	{
		newTransformRoutes(h, uc, o.history, l)
	}
}
