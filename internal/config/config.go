// Package config loads process-wide settings for the engine: which LLM
// provider to call, how to reach it, and where the KV store and event bus
// live. Values come from an optional YAML file with environment variables
// expanded in, then overlaid with the named env vars below, following the
// teacher's Load -> applyEnvOverrides -> applyDefaults -> validateConfig
// pipeline.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the engine's process-wide configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Store   StoreConfig   `yaml:"store"`
	Events  EventsConfig  `yaml:"events"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig selects and configures the LLM provider.
type LLMConfig struct {
	// Provider is "bedrock" or "anthropic".
	Provider string `yaml:"provider"`

	Anthropic AnthropicConfig `yaml:"anthropic"`
	Bedrock   BedrockConfig   `yaml:"bedrock"`
}

// AnthropicConfig configures direct calls to the Anthropic Messages API.
type AnthropicConfig struct {
	// APIKey is the literal key. Set directly or resolved via
	// APIKeyParameterName through the secrets.Reader at startup.
	APIKey string `yaml:"api_key"`

	// APIKeyParameterName names a secret to resolve APIKey from, when
	// APIKey itself is not set.
	APIKeyParameterName string `yaml:"api_key_parameter_name"`

	BaseURL string `yaml:"base_url"`
}

// BedrockConfig configures the Bedrock Converse provider's account pool.
type BedrockConfig struct {
	// Accounts is a comma list of AWS account ids to load-balance across.
	Accounts []string `yaml:"accounts"`

	// RoleName is the role assumed in each account. Defaults to
	// "bedrock-remote-swe-role".
	RoleName string `yaml:"role_name"`

	// CRIRegionOverride is one of global, us, eu, apac, jp, au.
	CRIRegionOverride string `yaml:"cri_region_override"`

	Region string `yaml:"region"`
}

// StoreConfig configures the DynamoDB-backed key-value store.
type StoreConfig struct {
	TableName string `yaml:"table_name"`
}

// EventsConfig configures the event bus the loop publishes progress to.
type EventsConfig struct {
	HTTPEndpoint string `yaml:"http_endpoint"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML config file at path (if it exists), applies
// environment variable overrides, fills defaults, and validates the
// result. An empty or missing path yields a config built from
// environment and defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			decoder := yaml.NewDecoder(strings.NewReader(expanded))
			decoder.KnownFields(true)
			if err := decoder.Decode(cfg); err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			if err := decoder.Decode(&struct{}{}); err != io.EOF {
				return nil, fmt.Errorf("failed to parse config: expected single document")
			}
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("LLM_PROVIDER")); value != "" {
		cfg.LLM.Provider = value
	}
	if value := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); value != "" {
		cfg.LLM.Anthropic.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY_PARAMETER_NAME")); value != "" {
		cfg.LLM.Anthropic.APIKeyParameterName = value
	}
	if value := strings.TrimSpace(os.Getenv("BEDROCK_AWS_ACCOUNTS")); value != "" {
		cfg.LLM.Bedrock.Accounts = splitAndTrim(value)
	}
	if value := strings.TrimSpace(os.Getenv("BEDROCK_AWS_ROLE_NAME")); value != "" {
		cfg.LLM.Bedrock.RoleName = value
	}
	if value := strings.TrimSpace(os.Getenv("BEDROCK_CRI_REGION_OVERRIDE")); value != "" {
		cfg.LLM.Bedrock.CRIRegionOverride = value
	}
	if value := strings.TrimSpace(os.Getenv("TABLE_NAME")); value != "" {
		cfg.Store.TableName = value
	}
	if value := strings.TrimSpace(os.Getenv("EVENT_HTTP_ENDPOINT")); value != "" {
		cfg.Events.HTTPEndpoint = value
	}
	if value := strings.TrimSpace(os.Getenv("LOG_LEVEL")); value != "" {
		cfg.Logging.Level = value
	}
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "bedrock"
	}
	if cfg.LLM.Bedrock.RoleName == "" {
		cfg.LLM.Bedrock.RoleName = "bedrock-remote-swe-role"
	}
	if cfg.LLM.Bedrock.Region == "" {
		cfg.LLM.Bedrock.Region = "us-east-1"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// ConfigValidationError reports one or more configuration problems found
// during validation.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

var validCRIRegions = map[string]bool{
	"global": true, "us": true, "eu": true, "apac": true, "jp": true, "au": true,
}

func validateConfig(cfg *Config) error {
	var issues []string

	switch strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)) {
	case "bedrock", "anthropic":
	default:
		issues = append(issues, fmt.Sprintf("llm.provider must be \"bedrock\" or \"anthropic\", got %q", cfg.LLM.Provider))
	}

	if strings.EqualFold(cfg.LLM.Provider, "anthropic") {
		if cfg.LLM.Anthropic.APIKey == "" && cfg.LLM.Anthropic.APIKeyParameterName == "" {
			issues = append(issues, "llm.anthropic requires api_key or api_key_parameter_name when llm.provider is \"anthropic\"")
		}
	}

	if strings.EqualFold(cfg.LLM.Provider, "bedrock") {
		if len(cfg.LLM.Bedrock.Accounts) == 0 {
			issues = append(issues, "llm.bedrock.accounts must list at least one AWS account id")
		}
	}

	if override := strings.ToLower(strings.TrimSpace(cfg.LLM.Bedrock.CRIRegionOverride)); override != "" && !validCRIRegions[override] {
		issues = append(issues, fmt.Sprintf("llm.bedrock.cri_region_override must be one of global, us, eu, apac, jp, au, got %q", cfg.LLM.Bedrock.CRIRegionOverride))
	}

	if strings.TrimSpace(cfg.Store.TableName) == "" {
		issues = append(issues, "store.table_name is required")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level must be debug, info, warn, or error, got %q", cfg.Logging.Level))
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
