package di

import (
	"flag"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// LLM provider flags
	Provider  string
	MaxTokens int

	// Bedrock flags
	BedrockRegion  string
	BedrockModelID string

	// Gemini flags
	GeminiAPIKey    string
	GeminiModelName string

	// OpenAI flags
	OpenAIAPIKey    string
	OpenAIModelName string

	// Reputation flags
	APIKeys      string
	AnalysisWait string

	// Detection flags
	Threshold int
	NoCache   bool

	// Input flags
	InputFile  string
	URL        string
	IDs        string
	Scan       bool
	Stats      bool
	MaxEmails  int
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// LLM provider flags
	flag.StringVar(&flags.Provider, "provider", "", "LLM provider (gemini, openai, bedrock, none)")
	flag.IntVar(&flags.MaxTokens, "max-tokens", 0, "Maximum tokens for LLM response")

	// Bedrock flags
	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "", "AWS region for Bedrock")
	flag.StringVar(&flags.BedrockModelID, "bedrock-model", "", "Bedrock model ID")

	// Gemini flags
	flag.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	flag.StringVar(&flags.GeminiModelName, "gemini-model", "", "Gemini model name")

	// OpenAI flags
	flag.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	flag.StringVar(&flags.OpenAIModelName, "openai-model", "", "OpenAI model name")

	// Reputation flags
	flag.StringVar(&flags.APIKeys, "api-keys", "", "Comma-separated reputation service API keys")
	flag.StringVar(&flags.AnalysisWait, "analysis-wait", "", "Delay between URL submission and verdict poll, e.g. 15s")

	// Detection flags
	flag.IntVar(&flags.Threshold, "threshold", -1, "Minimum fraud confidence (0-100) for a CEO-fraud verdict")
	flag.BoolVar(&flags.NoCache, "no-cache", false, "Disable the reputation cache")

	// Input flags
	flag.StringVar(&flags.InputFile, "file", "", "Input .eml file (use stdin if not specified)")
	flag.StringVar(&flags.URL, "url", "", "Check a single URL instead of an email")
	flag.StringVar(&flags.IDs, "ids", "", "Comma-separated mailbox message ids to scan as a batch")
	flag.BoolVar(&flags.Scan, "scan", false, "Scan unread mailbox messages")
	flag.BoolVar(&flags.Stats, "stats", false, "Print mailbox label totals and reputation key usage")
	flag.IntVar(&flags.MaxEmails, "max-emails", 0, "Maximum messages to scan or count")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file")

	flag.Parse()
	return flags
}

// ItemIDs splits the -ids flag
func (f *CLIFlags) ItemIDs() []string {
	var ids []string
	for _, id := range strings.Split(f.IDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration: file and environment first, flags on top
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.New(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Info("Loaded configuration from file", zap.String("file", used))
		}
		applyFlags(cfg, flags)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := provideAnalysis(container); err != nil {
		return nil, err
	}
	return container, nil
}

// applyFlags overrides configuration with the flags that were set
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	v := cfg.GetViper()
	v.Set("server.filter_type", "cli")

	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("llm.provider", flags.Provider)
	set("bedrock.region", flags.BedrockRegion)
	set("bedrock.model_id", flags.BedrockModelID)
	set("gemini.api_key", flags.GeminiAPIKey)
	set("gemini.model_name", flags.GeminiModelName)
	set("openai.api_key", flags.OpenAIAPIKey)
	set("openai.model_name", flags.OpenAIModelName)
	set("reputation.api_keys", flags.APIKeys)
	set("reputation.analysis_wait", flags.AnalysisWait)

	if flags.MaxTokens > 0 {
		for _, provider := range []string{"bedrock", "gemini", "openai"} {
			v.Set(provider+".max_tokens", flags.MaxTokens)
		}
	}
	if flags.Threshold >= 0 {
		v.Set("fraud.threshold", flags.Threshold)
	}
	if flags.NoCache {
		v.Set("cache.enabled", false)
	}
}
