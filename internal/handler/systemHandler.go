package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/ai-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/ai-gateway/internal/httperror"
)

type BreakerSource interface {
	Providers() []string
	Breaker(id string) *circuitbreaker.CircuitBreaker
}

type CredentialInvalidator interface {
	Invalidate()
}

// Handles provider and credential administration
type SystemHandler struct {
	providers BreakerSource
	creds     CredentialInvalidator
}

func NewSystemHandler(providers BreakerSource, creds CredentialInvalidator) *SystemHandler {
	return &SystemHandler{
		providers: providers,
		creds:     creds,
	}
}

// Returns the circuit breaker status of every provider, in fallback order
func (h *SystemHandler) CircuitBreakerStatus(c *gin.Context) {
	statuses := make([]gin.H, 0)

	for i, id := range h.providers.Providers() {
		entry := gin.H{"provider": id, "priority": i + 1}

		if cb := h.providers.Breaker(id); cb != nil {
			metrics := cb.Metrics()
			entry["state"] = metrics.State.String()
			entry["failure_count"] = metrics.FailureCount
			entry["success_count"] = metrics.SuccessCount
			entry["last_failure_time"] = metrics.LastFailureTime
			entry["last_state_change"] = metrics.LastStateChange
		} else {
			entry["state"] = "none"
		}

		statuses = append(statuses, entry)
	}

	c.JSON(http.StatusOK, gin.H{"providers": statuses})
}

// Manually resets a circuit breaker
func (h *SystemHandler) ResetCircuitBreaker(c *gin.Context) {
	id := c.Param("id")

	cb := h.providers.Breaker(id)
	if cb == nil {
		httperror.Write(c, http.StatusNotFound, httperror.CodeNotFound, "Provider not found")
		return
	}

	cb.Reset()

	c.JSON(http.StatusOK, gin.H{
		"message":  "Circuit breaker reset successfully",
		"provider": id,
	})
}

// Drops cached provider secrets so the next request re-reads the secret record
func (h *SystemHandler) InvalidateCredentials(c *gin.Context) {
	h.creds.Invalidate()

	c.JSON(http.StatusOK, gin.H{
		"message": "Credentials will be reloaded on next use",
	})
}
