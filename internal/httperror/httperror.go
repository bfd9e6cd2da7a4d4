// Package httperror maps domain errors to HTTP statuses and a stable JSON
// error body.
package httperror

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/ai-gateway/internal/credential"
	"github.com/aman-churiwal/ai-gateway/internal/provider"
	"github.com/aman-churiwal/ai-gateway/internal/quota"
	"github.com/aman-churiwal/ai-gateway/internal/service"
)

// StatusClientClosedRequest is the nginx convention for a caller that went away.
const StatusClientClosedRequest = 499

const (
	CodeQuotaExceeded      = "QUOTA_EXCEEDED"
	CodeNotConfigured      = "NOT_CONFIGURED"
	CodeAllProvidersFailed = "ALL_PROVIDERS_FAILED"
	CodeCanceled           = "CANCELED"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeThrottled          = "THROTTLED"
	CodeInternal           = "INTERNAL"
)

const upgradeHint = "Daily free limit reached. Upgrade to premium for unlimited access."

type Detail struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Remaining *int               `json:"remaining,omitempty"`
	Upgrade   string             `json:"upgrade,omitempty"`
	Failures  []provider.Failure `json:"failures,omitempty"`
}

type Body struct {
	Error Detail `json:"error"`
}

// FromError classifies err. Unknown errors become a generic 500 so internal
// detail never reaches the caller.
func FromError(err error) (int, Detail) {
	var all *provider.AllProvidersFailedError

	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		zero := 0
		return http.StatusTooManyRequests, Detail{
			Code:      CodeQuotaExceeded,
			Message:   err.Error(),
			Remaining: &zero,
			Upgrade:   upgradeHint,
		}
	case errors.Is(err, credential.ErrNotConfigured):
		return http.StatusServiceUnavailable, Detail{
			Code:    CodeNotConfigured,
			Message: "no AI provider is configured",
		}
	case errors.As(err, &all):
		return http.StatusBadGateway, Detail{
			Code:     CodeAllProvidersFailed,
			Message:  "every AI provider failed",
			Failures: all.Failures,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusClientClosedRequest, Detail{
			Code:    CodeCanceled,
			Message: "request canceled",
		}
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, Detail{
			Code:    CodeInvalidRequest,
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, Detail{
			Code:    CodeInternal,
			Message: "internal server error",
		}
	}
}

// Abort writes the body for err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	status, detail := FromError(err)
	detail.RequestID = c.GetString("request_id")
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, Body{Error: detail})
}

// Write sends an error that did not originate from a domain error.
func Write(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Body{Error: Detail{
		Code:      code,
		Message:   message,
		RequestID: c.GetString("request_id"),
	}})
}
