package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/domain/policy"
)

// statusFor maps the service error taxonomy to an HTTP status and a
// client-safe message
func statusFor(err error) (int, string) {
	if reason, ok := service.IsDenied(err); ok {
		if reason == policy.ReasonStaleStage {
			return http.StatusConflict, reason
		}
		return http.StatusForbidden, reason
	}
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "request not found"
	case errors.Is(err, service.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable"
	case errors.As(err, new(*service.SideEffectError)):
		return http.StatusBadGateway, "side-effect failed; retry reconciliation later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func respondError(c *gin.Context, logger Logger, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "operation", op, "error", err)
	}
	c.JSON(status, Response{Success: false, Error: msg})
}
