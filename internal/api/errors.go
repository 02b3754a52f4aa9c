package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wppgw/internal/wa"
)

// ErrorKind is the closed set of failure classes reported to callers.
type ErrorKind string

const (
	KindInvalidRequest ErrorKind = "invalid_request"
	KindNotConnected   ErrorKind = "not_connected"
	KindAdapterError   ErrorKind = "adapter_error"
	KindTimeout        ErrorKind = "timeout"
	KindInternal       ErrorKind = "internal"
)

// HTTPStatus returns the status code for k.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotConnected:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   string    `json:"error"`
	Code    ErrorKind `json:"code"`
}

func abort(c *gin.Context, kind ErrorKind, msg string) {
	c.AbortWithStatusJSON(kind.HTTPStatus(), ErrorResponse{Success: false, Error: msg, Code: kind})
}

// classify maps an adapter error to its kind.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, wa.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, wa.ErrNotReady):
		return KindNotConnected
	default:
		return KindAdapterError
	}
}

func abortAdapter(c *gin.Context, err error) {
	_ = c.Error(err)
	abort(c, classify(err), err.Error())
}
