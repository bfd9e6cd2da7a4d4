package provider

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aman-churiwal/ai-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/ai-gateway/internal/config"
)

// BuildEntries turns the configured provider list into router entries,
// preserving order.
func BuildEntries(providers []config.ProviderConfig, client *http.Client, logger *slog.Logger) ([]Entry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	onChange := func(name string, from, to circuitbreaker.State) {
		logger.Warn("provider_breaker_state_changed", "provider", name, "from", from.String(), "to", to.String())
	}

	entries := make([]Entry, 0, len(providers))
	for _, p := range providers {
		var adapter Adapter
		switch p.Kind {
		case config.KindOpenAI:
			adapter = NewOpenAIAdapter(p.ID, p.Endpoint, p.Model, p.Headers, client)
		case config.KindAnthropic:
			adapter = NewAnthropicAdapter(p.ID, p.Endpoint, p.Model, p.Headers, client)
		case config.KindGemini:
			adapter = NewGeminiAdapter(p.ID, p.Model, p.Endpoint)
		default:
			return nil, fmt.Errorf("provider %s: unknown kind %q", p.ID, p.Kind)
		}

		entries = append(entries, Entry{
			Adapter: adapter,
			Timeout: p.Timeout.Std(),
			Breaker: circuitbreaker.New(p.ID, circuitbreaker.Config{
				MaxFailures:     p.Breaker.MaxFailures,
				OpenTimeout:     p.Breaker.OpenTimeout.Std(),
				HalfOpenSuccess: p.Breaker.HalfOpenSuccess,
				OnStateChange:   onChange,
			}),
		})
	}
	return entries, nil
}
