package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/ai-gateway/internal/httperror"
	"github.com/aman-churiwal/ai-gateway/internal/middleware"
	"github.com/aman-churiwal/ai-gateway/internal/provider"
	"github.com/aman-churiwal/ai-gateway/internal/quota"
	"github.com/aman-churiwal/ai-gateway/internal/service"
)

type GatewayAPI interface {
	ChatCompletion(ctx context.Context, principalID, message string, history []provider.Message) (service.ChatResult, error)
	DeterministicLookup(ctx context.Context, principalID, input string) (service.LookupResult, error)
	TriageSymptoms(ctx context.Context, principalID string, symptoms []string, petInfo string) (service.TriageOutcome, error)
	QuotaStatus(ctx context.Context, principalID string) (quota.Decision, error)
}

type GatewayHandler struct {
	gateway GatewayAPI
}

func NewGatewayHandler(gateway GatewayAPI) *GatewayHandler {
	return &GatewayHandler{gateway: gateway}
}

type turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type chatRequest struct {
	Message string `json:"message"`
	History []turn `json:"history"`
}

type lookupRequest struct {
	Input string `json:"input"`
}

type triageRequest struct {
	Symptoms []string `json:"symptoms"`
	PetInfo  string   `json:"pet_info"`
}

func quotaFields(d quota.Decision) gin.H {
	return gin.H{
		"remaining": d.Remaining,
		"unlimited": d.IsUnlimited(),
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		httperror.Write(c, http.StatusBadRequest, httperror.CodeInvalidRequest, "request body must be valid JSON")
		return false
	}
	return true
}

// Handles POST /v1/chat
func (h *GatewayHandler) Chat(c *gin.Context) {
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}

	history := make([]provider.Message, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, provider.Message{Role: t.Role, Text: t.Text})
	}

	res, err := h.gateway.ChatCompletion(c.Request.Context(), c.GetString(middleware.PrincipalKey), req.Message, history)
	if err != nil {
		httperror.Abort(c, err)
		return
	}

	body := quotaFields(res.Quota)
	body["text"] = res.Text
	c.JSON(http.StatusOK, body)
}

// Handles POST /v1/lookup/food
func (h *GatewayHandler) LookupFood(c *gin.Context) {
	var req lookupRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.gateway.DeterministicLookup(c.Request.Context(), c.GetString(middleware.PrincipalKey), req.Input)
	if err != nil {
		httperror.Abort(c, err)
		return
	}

	body := quotaFields(res.Quota)
	body["result"] = res.Result
	body["from_cache"] = res.FromCache
	c.JSON(http.StatusOK, body)
}

// Handles POST /v1/triage
func (h *GatewayHandler) Triage(c *gin.Context) {
	var req triageRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.gateway.TriageSymptoms(c.Request.Context(), c.GetString(middleware.PrincipalKey), req.Symptoms, req.PetInfo)
	if err != nil {
		httperror.Abort(c, err)
		return
	}

	body := quotaFields(res.Quota)
	body["result"] = res.Result
	c.JSON(http.StatusOK, body)
}

// Handles GET /v1/quota
func (h *GatewayHandler) Quota(c *gin.Context) {
	d, err := h.gateway.QuotaStatus(c.Request.Context(), c.GetString(middleware.PrincipalKey))
	if err != nil {
		httperror.Abort(c, err)
		return
	}

	body := quotaFields(d)
	body["limit"] = d.Limit
	c.JSON(http.StatusOK, body)
}
