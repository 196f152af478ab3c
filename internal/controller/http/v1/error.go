package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"infoset_conversion/entity"
)

type response struct {
	Error string `json:"error" example:"message"`
}

func errorResponse(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, response{msg})
}

// statusFor maps a transform error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrContentTypeUnresolved),
		errors.Is(err, entity.ErrSchemaUnavailable),
		errors.Is(err, entity.ErrTransformFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrStorageIO):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
