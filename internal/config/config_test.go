package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "server": {"port": "9000", "http2": true},
  "quota": {"daily_limit": 5},
  "providers": [
    {"id": "openrouter", "kind": "openai", "endpoint": "https://openrouter.ai/api/v1/chat/completions",
     "model": "anthropic/claude-3-haiku", "timeout": "8s",
     "headers": {"HTTP-Referer": "https://pawguard.app", "X-Title": "PawGuard"}},
    {"id": "deepseek", "kind": "openai", "endpoint": "https://api.deepseek.com/v1/chat/completions",
     "model": "deepseek-chat", "timeout": 12},
    {"id": "gemini", "kind": "gemini", "model": "gemini-2.5-flash"}
  ],
  "operations": {"chat": {"temperature": 0.5, "max_tokens": 400}}
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ParsesFileAndAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.True(t, cfg.Server.HTTP2)
	require.Len(t, cfg.Providers, 3)

	assert.Equal(t, []string{"openrouter", "deepseek", "gemini"},
		[]string{cfg.Providers[0].ID, cfg.Providers[1].ID, cfg.Providers[2].ID})
	assert.Equal(t, 8*time.Second, cfg.Providers[0].Timeout.Std())
	assert.Equal(t, 12*time.Second, cfg.Providers[1].Timeout.Std())
	assert.Equal(t, 20*time.Second, cfg.Providers[2].Timeout.Std())
	assert.Equal(t, "PawGuard", cfg.Providers[0].Headers["X-Title"])

	assert.Equal(t, OperationConfig{Temperature: 0.5, MaxTokens: 400}, cfg.Operation(OperationChat))
	assert.Equal(t, OperationConfig{Temperature: 0.3, MaxTokens: 500}, cfg.Operation(OperationFoodSafety))
	assert.Equal(t, OperationConfig{Temperature: 0.3, MaxTokens: 600}, cfg.Operation(OperationTriage))

	assert.Equal(t, 7, cfg.Quota.RetentionDays)
	assert.Equal(t, "apiKeys", cfg.Credentials.RecordID)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("PORT", "7777")
	t.Setenv("QUOTA_DAILY_LIMIT", "3")
	t.Setenv("REDIS_HOST", "cache.internal")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "7777", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Quota.DailyLimit)
	assert.Equal(t, "cache.internal:6379", cfg.Redis.GetRedisAddr())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"no providers", func(c *Config) { c.Providers = nil }, "at least one provider"},
		{"unknown kind", func(c *Config) { c.Providers[0].Kind = "cohere" }, "unknown kind"},
		{"duplicate id", func(c *Config) { c.Providers[1].ID = c.Providers[0].ID }, "duplicate id"},
		{"missing endpoint", func(c *Config) { c.Providers[0].Endpoint = "" }, "endpoint is required"},
		{"zero limit", func(c *Config) { c.Quota.DailyLimit = 0 }, "daily_limit"},
		{"write timeout shorter than provider walk", func(c *Config) {
			c.Server.WriteTimeout = Duration(45 * time.Second)
		}, "write_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleConfig))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecodedMasterKey(t *testing.T) {
	c := CredentialsConfig{MasterKey: "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="}
	key, err := c.DecodedMasterKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = CredentialsConfig{MasterKey: "c2hvcnQ="}.DecodedMasterKey()
	assert.Error(t, err)
}

func TestSummaryMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Admin.JWTSecret = "super-secret-signing-key"
	summary := cfg.Summary()
	assert.Equal(t, "supe...-key", summary["jwt_secret"])
	assert.NotContains(t, summary["jwt_secret"], "secret-signing")
}

func TestWriteTimeoutCoversProviderWalk(t *testing.T) {
	body := `{"providers": [
	  {"id": "a", "kind": "openai", "endpoint": "http://a", "model": "m"},
	  {"id": "b", "kind": "openai", "endpoint": "http://b", "model": "m"},
	  {"id": "c", "kind": "openai", "endpoint": "http://c", "model": "m"}
	]}`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.ProviderBudget())
	assert.Equal(t, 70*time.Second, cfg.Server.WriteTimeout.Std())

	_, err = Load(writeConfig(t, `{"server": {"write_timeout": "60s"}, "providers": [
	  {"id": "a", "kind": "openai", "endpoint": "http://a", "model": "m"},
	  {"id": "b", "kind": "openai", "endpoint": "http://b", "model": "m"},
	  {"id": "c", "kind": "openai", "endpoint": "http://c", "model": "m"}
	]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write_timeout")
}
