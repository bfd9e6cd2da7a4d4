package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aman-churiwal/ai-gateway/internal/httperror"
	"github.com/aman-churiwal/ai-gateway/internal/models"
	"github.com/gin-gonic/gin"
)

type PrincipalAdmin interface {
	List(ctx context.Context, search string, limit, offset int) ([]models.Principal, int64, error)
	SetTier(ctx context.Context, id string, tier models.Tier) (models.Principal, error)
}

type PrincipalHandler struct {
	service PrincipalAdmin
}

func NewPrincipalHandler(service PrincipalAdmin) *PrincipalHandler {
	return &PrincipalHandler{service: service}
}

// Handles GET /admin/principals
func (h *PrincipalHandler) List(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	principals, total, err := h.service.List(c.Request.Context(), c.Query("q"), limit, offset)
	if err != nil {
		httperror.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"principals": principals,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

// Handles PUT /admin/principals/:id/tier
func (h *PrincipalHandler) UpdateTier(c *gin.Context) {
	var req struct {
		Tier string `json:"tier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httperror.Write(c, http.StatusBadRequest, httperror.CodeInvalidRequest, err.Error())
		return
	}

	p, err := h.service.SetTier(c.Request.Context(), c.Param("id"), models.Tier(req.Tier))
	if err != nil {
		httperror.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}
