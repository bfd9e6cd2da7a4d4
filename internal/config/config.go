package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Provider kinds understood by the router.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
)

// Operation names used for per-operation generation settings.
const (
	OperationChat       = "chat"
	OperationFoodSafety = "food_safety"
	OperationTriage     = "triage"
)

// writeTimeoutMargin is the headroom a response needs after the slowest
// possible provider walk for the error body to still be written.
const writeTimeoutMargin = 10 * time.Second

type Config struct {
	Server      ServerConfig               `json:"server"`
	Redis       RedisConfig                `json:"redis"`
	Database    DatabaseConfig             `json:"database"`
	Quota       QuotaConfig                `json:"quota"`
	Cache       CacheConfig                `json:"cache"`
	Credentials CredentialsConfig          `json:"credentials"`
	Providers   []ProviderConfig           `json:"providers"`
	Operations  map[string]OperationConfig `json:"operations"`
	Usage       UsageConfig                `json:"usage"`
	Logging     LoggingConfig              `json:"logging"`
	Admin       AdminConfig                `json:"admin"`
}

type ServerConfig struct {
	Port          string   `json:"port"`
	Environment   string   `json:"environment"`
	HTTP2         bool     `json:"http2"`
	ReadTimeout   Duration `json:"read_timeout"`
	WriteTimeout  Duration `json:"write_timeout"`
	CORSOrigins   []string `json:"cors_origins"`
	ThrottleRPS   float64  `json:"throttle_rps"`
	ThrottleBurst int      `json:"throttle_burst"`
	// "local" keeps buckets in process; "redis" shares a fixed window across replicas.
	ThrottleBackend string `json:"throttle_backend"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type DatabaseConfig struct {
	DSN          string `json:"dsn"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxOpenConns int    `json:"max_open_conns"`
}

type QuotaConfig struct {
	DailyLimit    int `json:"daily_limit"`
	RetentionDays int `json:"retention_days"`
}

type CacheConfig struct {
	TTL    Duration `json:"ttl"`
	Prefix string   `json:"prefix"`
}

type CredentialsConfig struct {
	RecordID  string `json:"record_id"`
	MasterKey string `json:"master_key"`
}

// DecodedMasterKey returns the raw 32-byte key used to open sealed secrets.
func (c CredentialsConfig) DecodedMasterKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

type BreakerConfig struct {
	MaxFailures     int      `json:"max_failures"`
	OpenTimeout     Duration `json:"open_timeout"`
	HalfOpenSuccess int      `json:"half_open_success"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Kind     string            `json:"kind"`
	Endpoint string            `json:"endpoint"`
	Model    string            `json:"model"`
	Timeout  Duration          `json:"timeout"`
	Headers  map[string]string `json:"headers"`
	Breaker  BreakerConfig     `json:"breaker"`
}

type OperationConfig struct {
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type UsageConfig struct {
	BufferSize    int      `json:"buffer_size"`
	BatchSize     int      `json:"batch_size"`
	FlushInterval Duration `json:"flush_interval"`
	DigestPrefix  int      `json:"digest_prefix"`
	RetentionDays int      `json:"retention_days"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

type AdminConfig struct {
	JWTSecret         string `json:"jwt_secret"`
	JWTExpiryHours    int    `json:"jwt_expiry_hours"`
	BootstrapEmail    string `json:"bootstrap_email"`
	BootstrapPassword string `json:"bootstrap_password"`
}

// Duration accepts either a Go duration string ("5s") or a number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

// Load reads the JSON config at path, applies defaults and environment
// overrides, and validates the result. A missing file is not an error as
// long as the environment supplies what Validate needs.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config populated with the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvString("PORT", c.Server.Port)
	c.Server.Environment = getEnvString("ENVIRONMENT", c.Server.Environment)
	c.Server.HTTP2 = getEnvBool("HTTP2_ENABLED", c.Server.HTTP2)
	c.Server.ThrottleBackend = getEnvString("THROTTLE_BACKEND", c.Server.ThrottleBackend)

	c.Redis.Host = getEnvString("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnvString("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Database.DSN = getEnvString("DATABASE_URL", c.Database.DSN)

	c.Quota.DailyLimit = getEnvInt("QUOTA_DAILY_LIMIT", c.Quota.DailyLimit)

	c.Credentials.MasterKey = getEnvString("GATEWAY_MASTER_KEY", c.Credentials.MasterKey)
	c.Credentials.RecordID = getEnvString("CREDENTIAL_RECORD_ID", c.Credentials.RecordID)

	c.Admin.JWTSecret = getEnvString("JWT_SECRET", c.Admin.JWTSecret)
	c.Admin.BootstrapEmail = getEnvString("ADMIN_EMAIL", c.Admin.BootstrapEmail)
	c.Admin.BootstrapPassword = getEnvString("ADMIN_PASSWORD", c.Admin.BootstrapPassword)

	c.Logging.Level = getEnvString("LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnvString("LOG_FILE", c.Logging.File)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(15 * time.Second)
	}
	if c.Server.ThrottleRPS == 0 {
		c.Server.ThrottleRPS = 10
	}
	if c.Server.ThrottleBurst == 0 {
		c.Server.ThrottleBurst = 20
	}
	if c.Server.ThrottleBackend == "" {
		c.Server.ThrottleBackend = "local"
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}

	if c.Quota.DailyLimit == 0 {
		c.Quota.DailyLimit = 5
	}
	if c.Quota.RetentionDays == 0 {
		c.Quota.RetentionDays = 7
	}

	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "cache"
	}

	if c.Credentials.RecordID == "" {
		c.Credentials.RecordID = "apiKeys"
	}

	for i := range c.Providers {
		if c.Providers[i].Timeout == 0 {
			c.Providers[i].Timeout = Duration(20 * time.Second)
		}
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(max(60*time.Second, c.ProviderBudget()+writeTimeoutMargin))
	}

	if c.Operations == nil {
		c.Operations = make(map[string]OperationConfig)
	}
	defaults := map[string]OperationConfig{
		OperationChat:       {Temperature: 0.7, MaxTokens: 800},
		OperationFoodSafety: {Temperature: 0.3, MaxTokens: 500},
		OperationTriage:     {Temperature: 0.3, MaxTokens: 600},
	}
	for name, def := range defaults {
		if _, ok := c.Operations[name]; !ok {
			c.Operations[name] = def
		}
	}

	if c.Usage.BufferSize == 0 {
		c.Usage.BufferSize = 1000
	}
	if c.Usage.BatchSize == 0 {
		c.Usage.BatchSize = 100
	}
	if c.Usage.FlushInterval == 0 {
		c.Usage.FlushInterval = Duration(5 * time.Second)
	}
	if c.Usage.DigestPrefix == 0 {
		c.Usage.DigestPrefix = 32
	}
	if c.Usage.RetentionDays == 0 {
		c.Usage.RetentionDays = 30
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 14
	}

	if c.Admin.JWTExpiryHours == 0 {
		c.Admin.JWTExpiryHours = 24
	}
}

// Validate checks the invariants the rest of the gateway relies on.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	seen := make(map[string]struct{}, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("providers[%d]: id is required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("providers[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = struct{}{}

		switch p.Kind {
		case KindOpenAI, KindAnthropic:
			if p.Endpoint == "" {
				return fmt.Errorf("provider %s: endpoint is required", p.ID)
			}
		case KindGemini:
		default:
			return fmt.Errorf("provider %s: unknown kind %q", p.ID, p.Kind)
		}
		if p.Model == "" {
			return fmt.Errorf("provider %s: model is required", p.ID)
		}
		if p.Timeout <= 0 {
			return fmt.Errorf("provider %s: timeout must be positive", p.ID)
		}
	}

	if need := c.ProviderBudget() + writeTimeoutMargin; c.Server.WriteTimeout.Std() < need {
		return fmt.Errorf("server.write_timeout %s is shorter than the provider timeouts plus %s (%s)",
			c.Server.WriteTimeout.Std(), writeTimeoutMargin, need)
	}

	switch c.Server.ThrottleBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("server.throttle_backend: unknown backend %q", c.Server.ThrottleBackend)
	}

	if c.Quota.DailyLimit < 1 {
		return fmt.Errorf("quota.daily_limit must be >= 1, got %d", c.Quota.DailyLimit)
	}
	if c.IsProduction() && len(c.Admin.JWTSecret) < 16 {
		return errors.New("admin.jwt_secret must be at least 16 characters in production")
	}
	if c.Usage.BatchSize < 1 || c.Usage.BufferSize < 1 {
		return errors.New("usage buffer_size and batch_size must be positive")
	}
	return nil
}

// ProviderBudget is the longest a request can spend walking every provider.
func (c *Config) ProviderBudget() time.Duration {
	var total time.Duration
	for _, p := range c.Providers {
		total += p.Timeout.Std()
	}
	return total
}

// Operation returns the generation settings for name, falling back to chat.
func (c *Config) Operation(name string) OperationConfig {
	if op, ok := c.Operations[name]; ok {
		return op
	}
	return c.Operations[OperationChat]
}

// IsProduction reports whether gin should run in release mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Summary is a log-safe view of the config.
func (c *Config) Summary() map[string]string {
	return map[string]string{
		"port":              c.Server.Port,
		"environment":       c.Server.Environment,
		"redis":             c.Redis.GetRedisAddr(),
		"database":          maskSecret(c.Database.DSN),
		"master_key":        maskSecret(c.Credentials.MasterKey),
		"jwt_secret":        maskSecret(c.Admin.JWTSecret),
		"daily_limit":       strconv.Itoa(c.Quota.DailyLimit),
		"providers":         strconv.Itoa(len(c.Providers)),
		"log_level":         c.Logging.Level,
		"http2":             strconv.FormatBool(c.Server.HTTP2),
		"credential_record": c.Credentials.RecordID,
	}
}
