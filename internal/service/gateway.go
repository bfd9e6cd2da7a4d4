package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/aman-churiwal/ai-gateway/internal/config"
	"github.com/aman-churiwal/ai-gateway/internal/judgment"
	"github.com/aman-churiwal/ai-gateway/internal/models"
	"github.com/aman-churiwal/ai-gateway/internal/prompts"
	"github.com/aman-churiwal/ai-gateway/internal/provider"
	"github.com/aman-churiwal/ai-gateway/internal/quota"
	"github.com/aman-churiwal/ai-gateway/internal/respcache"
	"github.com/aman-churiwal/ai-gateway/internal/usage"
)

const maxHistoryTurns = 20

type PrincipalResolver interface {
	Resolve(ctx context.Context, id string) (models.Principal, error)
}

type Completer interface {
	Complete(ctx context.Context, req provider.Request) (provider.Result, error)
}

type UsageSink interface {
	Record(entry models.UsageLogEntry)
}

type GatewayOptions struct {
	Operations   map[string]config.OperationConfig
	DigestPrefix int
}

type ChatResult struct {
	Text     string
	Provider string
	Quota    quota.Decision
}

type LookupResult struct {
	Result    judgment.SafetyJudgment
	FromCache bool
	Quota     quota.Decision
}

type TriageOutcome struct {
	Result judgment.TriageResult
	Quota  quota.Decision
}

// Gateway runs every public operation through the same pipeline: resolve
// the principal, take a quota slot, optionally consult the response cache,
// call the provider chain, and queue a usage entry.
type Gateway struct {
	principals PrincipalResolver
	ledger     *quota.Ledger
	cache      *respcache.Cache
	router     Completer
	prompts    prompts.Catalog
	usage      UsageSink
	opts       GatewayOptions
	logger     *slog.Logger
}

func NewGateway(
	principals PrincipalResolver,
	ledger *quota.Ledger,
	cache *respcache.Cache,
	router Completer,
	catalog prompts.Catalog,
	sink UsageSink,
	opts GatewayOptions,
	logger *slog.Logger,
) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		principals: principals,
		ledger:     ledger,
		cache:      cache,
		router:     router,
		prompts:    catalog,
		usage:      sink,
		opts:       opts,
		logger:     logger,
	}
}

func (g *Gateway) operation(name string) config.OperationConfig {
	if op, ok := g.opts.Operations[name]; ok {
		return op
	}
	return config.Default().Operation(name)
}

// admit resolves the principal and consumes one quota slot. A denial is
// recorded and returned as quota.ErrQuotaExceeded alongside the decision.
func (g *Gateway) admit(ctx context.Context, principalID string, op models.Operation, digest string) (models.Principal, quota.Decision, error) {
	if err := ctx.Err(); err != nil {
		return models.Principal{}, quota.Decision{}, err
	}

	p, err := g.principals.Resolve(ctx, principalID)
	if err != nil {
		return models.Principal{}, quota.Decision{}, err
	}

	decision, err := g.ledger.CheckAndConsume(ctx, p)
	if err != nil {
		return p, quota.Decision{}, err
	}
	if !decision.Allowed {
		g.record(p.ID, op, digest, models.OutcomeQuotaExceeded, "", 0, false, 0)
		return p, decision, quota.ErrQuotaExceeded
	}
	return p, decision, nil
}

func (g *Gateway) record(principalID string, op models.Operation, digest string, outcome models.Outcome, providerID string, outputLen int, fromCache bool, latency time.Duration) {
	if g.usage == nil {
		return
	}
	g.usage.Record(models.UsageLogEntry{
		PrincipalID:  principalID,
		Operation:    op,
		InputDigest:  digest,
		OutputLength: outputLen,
		ProviderID:   providerID,
		FromCache:    fromCache,
		Outcome:      outcome,
		LatencyMs:    latency.Milliseconds(),
	})
}

func (g *Gateway) request(name string, messages []provider.Message) (provider.Request, error) {
	prompt, err := g.prompts.Get(name)
	if err != nil {
		return provider.Request{}, err
	}
	op := g.operation(name)
	return provider.Request{
		SystemPrompt: prompt.System,
		Messages:     messages,
		Temperature:  op.Temperature,
		MaxTokens:    op.MaxTokens,
	}, nil
}

func (g *Gateway) userMessage(name string, vars map[string]string) (provider.Message, error) {
	prompt, err := g.prompts.Get(name)
	if err != nil {
		return provider.Message{}, err
	}
	return provider.Message{Role: provider.RoleUser, Text: prompt.Render(vars)}, nil
}

// recentHistory keeps the last maxHistoryTurns user/assistant turns.
func recentHistory(history []provider.Message) []provider.Message {
	kept := make([]provider.Message, 0, len(history))
	for _, m := range history {
		if m.Role != provider.RoleUser && m.Role != provider.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) > maxHistoryTurns {
		kept = kept[len(kept)-maxHistoryTurns:]
	}
	return kept
}

// ChatCompletion answers a conversational message. It never touches the
// response cache because the answer depends on history.
func (g *Gateway) ChatCompletion(ctx context.Context, principalID, message string, history []provider.Message) (ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatResult{}, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	digest := usage.Digest(message, 0)
	p, decision, err := g.admit(ctx, principalID, models.OperationChat, digest)
	if err != nil {
		return ChatResult{Quota: decision}, err
	}

	start := time.Now()
	user, err := g.userMessage(config.OperationChat, map[string]string{"message": message})
	if err != nil {
		return ChatResult{}, err
	}
	req, err := g.request(config.OperationChat, append(recentHistory(history), user))
	if err != nil {
		return ChatResult{}, err
	}

	res, err := g.router.Complete(ctx, req)
	if err != nil {
		g.record(p.ID, models.OperationChat, digest, models.OutcomeFailed, "", 0, false, time.Since(start))
		return ChatResult{Quota: decision}, err
	}

	g.record(p.ID, models.OperationChat, digest, models.OutcomeOK, res.Provider, utf8.RuneCountInString(res.Text), false, time.Since(start))
	return ChatResult{Text: res.Text, Provider: res.Provider, Quota: decision}, nil
}

// DeterministicLookup answers "is this food safe". Answers are shared across
// principals through the response cache, but the quota slot is taken even
// when the cache already holds the answer.
func (g *Gateway) DeterministicLookup(ctx context.Context, principalID, input string) (LookupResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return LookupResult{}, fmt.Errorf("%w: input is required", ErrInvalidInput)
	}

	digest := usage.Digest(input, g.opts.DigestPrefix)
	p, decision, err := g.admit(ctx, principalID, models.OperationFoodSafety, digest)
	if err != nil {
		return LookupResult{Quota: decision}, err
	}

	start := time.Now()
	var providerID string
	var outputLen int
	compute := func(ctx context.Context) (json.RawMessage, error) {
		user, err := g.userMessage(config.OperationFoodSafety, map[string]string{"input": input})
		if err != nil {
			return nil, err
		}
		req, err := g.request(config.OperationFoodSafety, []provider.Message{user})
		if err != nil {
			return nil, err
		}

		res, err := g.router.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		providerID = res.Provider
		outputLen = utf8.RuneCountInString(res.Text)

		judged := judgment.DecodeSafety(res.Text)
		if judged.Heuristic {
			g.logger.Info("food_safety_heuristic_used", "provider", res.Provider, "level", judged.SafetyLevel)
		}
		return json.Marshal(judged)
	}

	payload, hit, err := g.cache.GetOrCompute(ctx, config.OperationFoodSafety, respcache.Normalize(input), compute)
	if err != nil {
		g.record(p.ID, models.OperationFoodSafety, digest, models.OutcomeFailed, "", 0, false, time.Since(start))
		return LookupResult{Quota: decision}, err
	}

	var result judgment.SafetyJudgment
	if err := json.Unmarshal(payload, &result); err != nil {
		return LookupResult{Quota: decision}, fmt.Errorf("decode cached judgment: %w", err)
	}
	result.FoodName = input

	g.record(p.ID, models.OperationFoodSafety, digest, models.OutcomeOK, providerID, outputLen, hit, time.Since(start))
	return LookupResult{Result: result, FromCache: hit, Quota: decision}, nil
}

// TriageSymptoms assesses urgency for a symptom list. Pet details make the
// answer caller specific, so it is never cached.
func (g *Gateway) TriageSymptoms(ctx context.Context, principalID string, symptoms []string, petInfo string) (TriageOutcome, error) {
	cleaned := make([]string, 0, len(symptoms))
	for _, s := range symptoms {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) == 0 {
		return TriageOutcome{}, fmt.Errorf("%w: at least one symptom is required", ErrInvalidInput)
	}

	petInfo = strings.TrimSpace(petInfo)
	if petInfo == "" {
		petInfo = "not provided"
	}

	joined := strings.Join(cleaned, ", ")
	digest := usage.Digest(joined, 0)
	p, decision, err := g.admit(ctx, principalID, models.OperationTriage, digest)
	if err != nil {
		return TriageOutcome{Quota: decision}, err
	}

	start := time.Now()
	user, err := g.userMessage(config.OperationTriage, map[string]string{"symptoms": joined, "pet_info": petInfo})
	if err != nil {
		return TriageOutcome{}, err
	}
	req, err := g.request(config.OperationTriage, []provider.Message{user})
	if err != nil {
		return TriageOutcome{}, err
	}

	res, err := g.router.Complete(ctx, req)
	if err != nil {
		g.record(p.ID, models.OperationTriage, digest, models.OutcomeFailed, "", 0, false, time.Since(start))
		return TriageOutcome{Quota: decision}, err
	}

	result := judgment.DecodeTriage(res.Text)
	if result.Heuristic {
		g.logger.Info("triage_heuristic_used", "provider", res.Provider, "urgency", result.Urgency)
	}

	g.record(p.ID, models.OperationTriage, digest, models.OutcomeOK, res.Provider, utf8.RuneCountInString(res.Text), false, time.Since(start))
	return TriageOutcome{Result: result, Quota: decision}, nil
}

// QuotaStatus reports remaining slots without consuming one.
func (g *Gateway) QuotaStatus(ctx context.Context, principalID string) (quota.Decision, error) {
	p, err := g.principals.Resolve(ctx, principalID)
	if err != nil {
		return quota.Decision{}, err
	}
	return g.ledger.Status(ctx, p)
}
