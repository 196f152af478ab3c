package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"infoset_conversion/entity"
	"infoset_conversion/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

type transformRoutes struct {
	uc      entity.TransformUsecase
	history HistoryReader
	l       logger.Interface
}

type transformResponse struct {
	Status string `json:"status"`
	Source string `json:"source"`
	Action string `json:"action"`
}

func newTransformRoutes(handler *gin.RouterGroup, uc entity.TransformUsecase, history HistoryReader, l logger.Interface) {
	r := &transformRoutes{uc: uc, history: history, l: l}

	handler.POST("/transform/:bucket/*key", r.transform)
	if history != nil {
		handler.GET("/history/:bucket/*key", r.listHistory)
	}
}

func objectKey(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("key"), "/")
}

// transform runs one request synchronously. The object's suffix decides
// between parse and unparse, exactly as for queued events.
func (r *transformRoutes) transform(c *gin.Context) {
	ctx, span := otel.Tracer(traceName).Start(c.Request.Context(), "transform-api")
	defer span.End()

	bucket := c.Param("bucket")
	key := objectKey(c)
	if key == "" {
		errorResponse(c, http.StatusBadRequest, "object key is required")
		return
	}

	req := r.uc.Request(bucket, key)
	if err := r.uc.Process(ctx, req); err != nil {
		r.l.Error("http - v1 - transform: %v", err)
		errorResponse(c, statusFor(err), err.Error())
		return
	}

	c.JSON(http.StatusOK, transformResponse{
		Status: entity.StatusSucceeded,
		Source: req.Source.String(),
		Action: req.Direction.String(),
	})
}

func (r *transformRoutes) listHistory(c *gin.Context) {
	ctx, span := otel.Tracer(traceName).Start(c.Request.Context(), "history-api")
	defer span.End()

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	recs, err := r.history.History(ctx, c.Param("bucket"), objectKey(c), limit)
	if err != nil {
		r.l.Error("http - v1 - history: %v", err)
		errorResponse(c, http.StatusInternalServerError, "failed to read history")
		return
	}
	c.JSON(http.StatusOK, recs)
}
