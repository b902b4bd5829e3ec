package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance. A non-empty path overrides the
// search locations.
func New(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/phishguard/")
		v.AddConfigPath("$HOME/.phishguard")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("PHISHGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	cfg := &Config{v: v}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Reputation service
	v.SetDefault("reputation.base_url", "https://www.virustotal.com/api/v3")
	v.SetDefault("reputation.api_keys", []string{})
	v.SetDefault("reputation.timeout", "30s")
	v.SetDefault("reputation.analysis_wait", "15s")
	v.SetDefault("reputation.window", "60s")
	v.SetDefault("reputation.requests_per_window", 4)

	// Fraud classification
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("fraud.threshold", 30)
	v.SetDefault("fraud.timeout", "45s")
	v.SetDefault("fraud.max_body_size", 4000)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.max_tokens", 2048)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.8)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.8)

	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.8)

	// Scanning
	v.SetDefault("scan.max_workers", 2)
	v.SetDefault("scan.url_workers", 2)
	v.SetDefault("scan.interval", "5m")
	v.SetDefault("scan.max_emails", 10)
	v.SetDefault("scan.exclude_labels", []string{})

	// Mailbox
	v.SetDefault("mailbox.credentials_file", "credentials.json")
	v.SetDefault("mailbox.token_file", "token.json")
	v.SetDefault("mailbox.user", "me")
	v.SetDefault("mailbox.phishing_label", "")
	v.SetDefault("mailbox.safe_label", "")

	// Server defaults
	v.SetDefault("server.filter_type", "postfix")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.reject_phishing", false)
	v.SetDefault("server.headers.status", "X-Phishing-Status")
	v.SetDefault("server.headers.stage", "X-Phishing-Stage")
	v.SetDefault("server.headers.threats", "X-Phishing-Threats")
	v.SetDefault("server.postfix.enabled", true)
	v.SetDefault("server.postfix.address", "localhost")
	v.SetDefault("server.postfix.port", 10026)
	v.SetDefault("server.modify_subject", false)
	v.SetDefault("server.subject_prefix", "[PHISHING] ")
	v.SetDefault("server.whitelisted_domains", []string{})

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_frequency", "1h")
	v.SetDefault("cache.capacity", 1000)
	v.SetDefault("cache.sqlite_path", "/data/phishguard_cache.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/phishguard")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the values no component can recover from
func (c *Config) Validate() error {
	for _, key := range []string{
		"reputation.timeout", "reputation.analysis_wait", "reputation.window",
		"fraud.timeout", "scan.interval", "cache.ttl", "cache.cleanup_frequency",
	} {
		if _, err := c.GetDuration(key); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
	}
	if t := c.GetInt("fraud.threshold"); t < 0 || t > 100 {
		return fmt.Errorf("fraud.threshold must be between 0 and 100, got %d", t)
	}
	if n := c.GetInt("reputation.requests_per_window"); n < 1 {
		return fmt.Errorf("reputation.requests_per_window must be positive, got %d", n)
	}
	if n := c.GetInt("scan.max_workers"); n < 1 {
		return fmt.Errorf("scan.max_workers must be positive, got %d", n)
	}
	return nil
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration. Comma
// separated values, as set from the environment, are split.
func (c *Config) GetStringSlice(key string) []string {
	var out []string
	for _, item := range c.v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// duration is GetDuration for values already checked by Validate
func (c *Config) duration(key string) time.Duration {
	d, _ := c.GetDuration(key)
	return d
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
