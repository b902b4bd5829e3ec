package config

import "time"

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	// Provider is one of gemini, openai, bedrock or none
	Provider string
}

// ReputationConfig represents the configuration for the reputation service
type ReputationConfig struct {
	BaseURL           string
	APIKeys           []string
	Timeout           time.Duration
	AnalysisWait      time.Duration
	Window            time.Duration
	RequestsPerWindow int
}

// FraudConfig represents the configuration for the CEO-fraud stage
type FraudConfig struct {
	Threshold   int
	Timeout     time.Duration
	MaxBodySize int
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// ScanConfig represents the configuration for batch and periodic scans
type ScanConfig struct {
	MaxWorkers    int
	URLWorkers    int
	Interval      time.Duration
	MaxEmails     int
	ExcludeLabels []string
}

// MailboxConfig represents the configuration for the Gmail mailbox
type MailboxConfig struct {
	CredentialsFile string
	TokenFile       string
	User            string
	PhishingLabel   string
	SafeLabel       string
}

// CacheConfig represents the configuration for the reputation cache
type CacheConfig struct {
	Type             string
	Enabled          bool
	TTL              time.Duration
	CleanupFrequency time.Duration
	Capacity         int
	SQLitePath       string
	MySQLDSN         string
	RedisURL         string
}

// HeaderConfig names the headers the SMTP filter adds
type HeaderConfig struct {
	Status  string
	Stage   string
	Threats string
}

// ServerConfig represents the configuration for the SMTP content filter
type ServerConfig struct {
	FilterType         string
	ListenAddress      string
	RejectPhishing     bool
	Headers            HeaderConfig
	PostfixEnabled     bool
	PostfixAddress     string
	PostfixPort        int
	ModifySubject      bool
	SubjectPrefix      string
	WhitelistedDomains []string
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetReputation returns the reputation service configuration
func (c *Config) GetReputation() ReputationConfig {
	return ReputationConfig{
		BaseURL:           c.GetString("reputation.base_url"),
		APIKeys:           c.GetStringSlice("reputation.api_keys"),
		Timeout:           c.duration("reputation.timeout"),
		AnalysisWait:      c.duration("reputation.analysis_wait"),
		Window:            c.duration("reputation.window"),
		RequestsPerWindow: c.GetInt("reputation.requests_per_window"),
	}
}

// GetFraud returns the CEO-fraud stage configuration
func (c *Config) GetFraud() FraudConfig {
	return FraudConfig{
		Threshold:   c.GetInt("fraud.threshold"),
		Timeout:     c.duration("fraud.timeout"),
		MaxBodySize: c.GetInt("fraud.max_body_size"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetScan returns the scan configuration
func (c *Config) GetScan() ScanConfig {
	return ScanConfig{
		MaxWorkers:    c.GetInt("scan.max_workers"),
		URLWorkers:    c.GetInt("scan.url_workers"),
		Interval:      c.duration("scan.interval"),
		MaxEmails:     c.GetInt("scan.max_emails"),
		ExcludeLabels: c.GetStringSlice("scan.exclude_labels"),
	}
}

// GetMailbox returns the mailbox configuration
func (c *Config) GetMailbox() MailboxConfig {
	return MailboxConfig{
		CredentialsFile: c.GetString("mailbox.credentials_file"),
		TokenFile:       c.GetString("mailbox.token_file"),
		User:            c.GetString("mailbox.user"),
		PhishingLabel:   c.GetString("mailbox.phishing_label"),
		SafeLabel:       c.GetString("mailbox.safe_label"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		Enabled:          c.GetBool("cache.enabled"),
		TTL:              c.duration("cache.ttl"),
		CleanupFrequency: c.duration("cache.cleanup_frequency"),
		Capacity:         c.GetInt("cache.capacity"),
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
		RedisURL:         c.GetString("cache.redis_url"),
	}
}

// GetServer returns the SMTP filter configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:     c.GetString("server.filter_type"),
		ListenAddress:  c.GetString("server.listen_address"),
		RejectPhishing: c.GetBool("server.reject_phishing"),
		Headers: HeaderConfig{
			Status:  c.GetString("server.headers.status"),
			Stage:   c.GetString("server.headers.stage"),
			Threats: c.GetString("server.headers.threats"),
		},
		PostfixEnabled:     c.GetBool("server.postfix.enabled"),
		PostfixAddress:     c.GetString("server.postfix.address"),
		PostfixPort:        c.GetInt("server.postfix.port"),
		ModifySubject:      c.GetBool("server.modify_subject"),
		SubjectPrefix:      c.GetString("server.subject_prefix"),
		WhitelistedDomains: c.GetStringSlice("server.whitelisted_domains"),
	}
}
