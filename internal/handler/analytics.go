package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/ai-gateway/internal/httperror"
	"github.com/aman-churiwal/ai-gateway/internal/models"
	"github.com/aman-churiwal/ai-gateway/internal/repository"
	"github.com/aman-churiwal/ai-gateway/internal/service"
	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	service *service.AnalyticsService
}

func NewAnalyticsHandler(service *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// Handles GET /admin/usage/summary
func (h *AnalyticsHandler) GetSummary(c *gin.Context) {
	// Parse time range
	from, to, err := parseTimeRange(c)
	if err != nil {
		httperror.Write(c, http.StatusBadRequest, httperror.CodeInvalidRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	summary, err := h.service.GetSummary(ctx, from, to)
	if err != nil {
		httperror.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Handles GET /admin/usage/logs
func (h *AnalyticsHandler) GetLogs(c *gin.Context) {
	// Parse time range
	from, to, err := parseTimeRange(c)
	if err != nil {
		httperror.Write(c, http.StatusBadRequest, httperror.CodeInvalidRequest, err.Error())
		return
	}

	// Parse pagination
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	filter := repository.UsageLogFilter{
		From:        from,
		To:          to,
		PrincipalID: c.Query("principal"),
		Operation:   models.Operation(c.Query("operation")),
		Outcome:     models.Outcome(c.Query("outcome")),
	}

	ctx := c.Request.Context()
	logs, total, err := h.service.GetLogs(ctx, filter, limit, offset)
	if err != nil {
		httperror.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Parses 'from' and 'to' query parameters
func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	// Default: last 24 hours
	to := time.Now()
	from := to.Add(-24 * time.Hour)

	if fromStr := c.Query("from"); fromStr != "" {
		parsedFrom, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			// Try Unix timestamp
			if timestamp, err := strconv.ParseInt(fromStr, 10, 64); err == nil {
				parsedFrom = time.Unix(timestamp, 0)
			} else {
				return time.Time{}, time.Time{}, err
			}
		}
		from = parsedFrom
	}

	if toStr := c.Query("to"); toStr != "" {
		parsedTo, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			// Try Unix timestamp
			if timestamp, err := strconv.ParseInt(toStr, 10, 64); err == nil {
				parsedTo = time.Unix(timestamp, 0)
			} else {
				return time.Time{}, time.Time{}, err
			}
		}
		to = parsedTo
	}

	return from, to, nil
}
