package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-session-service/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindSessionEnded:
		return http.StatusGone
	case domain.KindInvalidTransition, domain.KindNotJoined, domain.KindAlreadySubmitted,
		domain.KindNotFinished, domain.KindNotStarted:
		return http.StatusConflict
	case domain.KindInvalid:
		return http.StatusBadRequest
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error to its HTTP status. Server-side failures are
// attached to the context so the request logger reports them.
func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: string(domain.KindInvalid)})
}
