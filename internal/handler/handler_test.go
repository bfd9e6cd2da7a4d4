package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/ai-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/ai-gateway/internal/judgment"
	"github.com/aman-churiwal/ai-gateway/internal/middleware"
	"github.com/aman-churiwal/ai-gateway/internal/models"
	"github.com/aman-churiwal/ai-gateway/internal/provider"
	"github.com/aman-churiwal/ai-gateway/internal/quota"
	"github.com/aman-churiwal/ai-gateway/internal/repository"
	"github.com/aman-churiwal/ai-gateway/internal/service"
	"github.com/aman-churiwal/ai-gateway/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGateway struct {
	principal string
	history   []provider.Message
	err       error
}

func (f *fakeGateway) ChatCompletion(ctx context.Context, principalID, message string, history []provider.Message) (service.ChatResult, error) {
	f.principal = principalID
	f.history = history
	if f.err != nil {
		return service.ChatResult{Quota: quota.Decision{Remaining: 0, Limit: 5}}, f.err
	}
	return service.ChatResult{Text: "echo: " + message, Provider: "deepseek", Quota: quota.Decision{Allowed: true, Remaining: 3, Limit: 5}}, nil
}

func (f *fakeGateway) DeterministicLookup(ctx context.Context, principalID, input string) (service.LookupResult, error) {
	return service.LookupResult{
		Result:    judgment.SafetyJudgment{FoodName: input, SafetyLevel: judgment.LevelToxic},
		FromCache: true,
		Quota:     quota.Decision{Allowed: true, Remaining: quota.Unlimited, Limit: 5},
	}, nil
}

func (f *fakeGateway) TriageSymptoms(ctx context.Context, principalID string, symptoms []string, petInfo string) (service.TriageOutcome, error) {
	return service.TriageOutcome{
		Result: judgment.TriageResult{Urgency: judgment.UrgencyImmediate},
		Quota:  quota.Decision{Allowed: true, Remaining: 2, Limit: 5},
	}, nil
}

func (f *fakeGateway) QuotaStatus(ctx context.Context, principalID string) (quota.Decision, error) {
	return quota.Decision{Allowed: true, Remaining: 5, Limit: 5}, nil
}

func gatewayRouter(gw GatewayAPI) *gin.Engine {
	h := NewGatewayHandler(gw)
	r := gin.New()
	v1 := r.Group("/v1", middleware.RequirePrincipal())
	v1.POST("/chat", h.Chat)
	v1.POST("/lookup/food", h.LookupFood)
	v1.POST("/triage", h.Triage)
	v1.GET("/quota", h.Quota)
	return r
}

func do(r *gin.Engine, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

var principal = map[string]string{middleware.PrincipalHeader: "user-1"}

func TestChatHandler(t *testing.T) {
	gw := &fakeGateway{}
	r := gatewayRouter(gw)

	w, body := do(r, http.MethodPost, "/v1/chat", gin.H{
		"message": "hi",
		"history": []gin.H{{"role": "user", "text": "earlier"}},
	}, principal)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "echo: hi", body["text"])
	assert.Equal(t, float64(3), body["remaining"])
	assert.Equal(t, false, body["unlimited"])
	assert.Equal(t, "user-1", gw.principal)
	assert.Equal(t, []provider.Message{{Role: "user", Text: "earlier"}}, gw.history)
}

func TestChatHandler_QuotaExceeded(t *testing.T) {
	r := gatewayRouter(&fakeGateway{err: quota.ErrQuotaExceeded})

	w, body := do(r, http.MethodPost, "/v1/chat", gin.H{"message": "hi"}, principal)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "QUOTA_EXCEEDED", errBody["code"])
	assert.Equal(t, float64(0), errBody["remaining"])
}

func TestChatHandler_RequiresPrincipalAndBody(t *testing.T) {
	r := gatewayRouter(&fakeGateway{})

	w, _ := do(r, http.MethodPost, "/v1/chat", gin.H{"message": "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString("{not json"))
	req.Header.Set(middleware.PrincipalHeader, "user-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookupAndTriageHandlers(t *testing.T) {
	r := gatewayRouter(&fakeGateway{})

	w, body := do(r, http.MethodPost, "/v1/lookup/food", gin.H{"input": "chocolate"}, principal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["from_cache"])
	assert.Equal(t, true, body["unlimited"])
	assert.Equal(t, "toxic", body["result"].(map[string]any)["safetyLevel"])

	w, body = do(r, http.MethodPost, "/v1/triage", gin.H{"symptoms": []string{"seizure"}}, principal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "immediate", body["result"].(map[string]any)["urgency"])

	w, body = do(r, http.MethodGet, "/v1/quota", nil, principal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(5), body["limit"])
}

type breakers map[string]*circuitbreaker.CircuitBreaker

func (b breakers) Providers() []string {
	return []string{"deepseek", "gemini"}
}

func (b breakers) Breaker(id string) *circuitbreaker.CircuitBreaker {
	return b[id]
}

type invalidator struct{ calls int }

func (i *invalidator) Invalidate() { i.calls++ }

func TestSystemHandler(t *testing.T) {
	cb := circuitbreaker.New("deepseek", circuitbreaker.Config{MaxFailures: 1, OpenTimeout: time.Minute})
	_ = cb.Call(func() error { return assert.AnError }, nil)
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	inv := &invalidator{}
	h := NewSystemHandler(breakers{"deepseek": cb}, inv)
	r := gin.New()
	r.GET("/admin/providers", h.CircuitBreakerStatus)
	r.POST("/admin/providers/:id/reset", h.ResetCircuitBreaker)
	r.POST("/admin/credentials/invalidate", h.InvalidateCredentials)

	w, body := do(r, http.MethodGet, "/admin/providers", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := body["providers"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "open", list[0].(map[string]any)["state"])
	assert.Equal(t, "none", list[1].(map[string]any)["state"])

	w, _ = do(r, http.MethodPost, "/admin/providers/deepseek/reset", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())

	w, _ = do(r, http.MethodPost, "/admin/providers/nope/reset", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(r, http.MethodPost, "/admin/credentials/invalidate", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, inv.calls)
}

type fakeAuth struct{}

func (fakeAuth) Login(ctx context.Context, email, password string) (string, error) {
	if password != "right" {
		return "", service.ErrInvalidCredentials
	}
	return "signed-token", nil
}

func TestAuthHandler(t *testing.T) {
	r := gin.New()
	r.POST("/admin/login", NewAuthHandler(fakeAuth{}).Login)

	w, body := do(r, http.MethodPost, "/admin/login", gin.H{"email": "ops@example.com", "password": "right"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "signed-token", body["token"])

	w, _ = do(r, http.MethodPost, "/admin/login", gin.H{"email": "ops@example.com", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(r, http.MethodPost, "/admin/login", gin.H{"email": "ops@example.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyticsHandler(t *testing.T) {
	repo := repository.NewUsageLogRepository(testutil.NewDB(t))
	now := time.Now().UTC()
	require.NoError(t, repo.CreateBatch(context.Background(), []models.UsageLogEntry{
		{PrincipalID: "p1", Operation: models.OperationChat, Outcome: models.OutcomeOK, Timestamp: now},
		{PrincipalID: "p2", Operation: models.OperationTriage, Outcome: models.OutcomeFailed, Timestamp: now},
	}))

	h := NewAnalyticsHandler(service.NewAnalyticsService(repo))
	r := gin.New()
	r.GET("/admin/usage/summary", h.GetSummary)
	r.GET("/admin/usage/logs", h.GetLogs)

	w, body := do(r, http.MethodGet, "/admin/usage/summary", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total_requests"])
	assert.Equal(t, float64(1), body["failed_requests"])

	w, body = do(r, http.MethodGet, "/admin/usage/logs?principal=p2&limit=10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["total"])

	w, _ = do(r, http.MethodGet, "/admin/usage/summary?from=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrincipalHandler(t *testing.T) {
	db := testutil.NewDB(t)
	cache, mini := testutil.NewRedis(t)
	svc := service.NewPrincipalService(repository.NewPrincipalRepository(db), cache, nil)
	require.NoError(t, db.DB.Create(&models.Principal{ID: "user-1", Tier: models.TierFree}).Error)
	require.NoError(t, db.DB.Create(&models.Principal{ID: "user-2", Tier: models.TierFree}).Error)

	_, err := svc.Resolve(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, mini.Exists("principal:cache:user-1"))

	h := NewPrincipalHandler(svc)
	r := gin.New()
	r.GET("/admin/principals", h.List)
	r.PUT("/admin/principals/:id/tier", h.UpdateTier)

	w, body := do(r, http.MethodGet, "/admin/principals?q=user&limit=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total"])
	assert.Len(t, body["principals"].([]any), 1)

	w, body = do(r, http.MethodPut, "/admin/principals/user-1/tier", gin.H{"tier": "premium"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "premium", body["tier"])
	assert.False(t, mini.Exists("principal:cache:user-1"))

	p, err := svc.Resolve(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, p.Tier.IsUnlimited())

	w, body = do(r, http.MethodPut, "/admin/principals/user-1/tier", gin.H{"tier": "platinum"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", body["error"].(map[string]any)["code"])

	w, _ = do(r, http.MethodPut, "/admin/principals/user-1/tier", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
