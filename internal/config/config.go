package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	LinearAPIKey  string `yaml:"linear_api_key"`
	LinearAPIURL  string `yaml:"linear_api_url"`
	LinearTeamKey string `yaml:"linear_team_key"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	LLMMaxTokens    int    `yaml:"llm_max_tokens"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIAPIURL    string `yaml:"openai_api_url"`

	TopicsPath         string `yaml:"topics_path"`
	IdentityTablesPath string `yaml:"identity_tables_path"`
	NeedsReviewLabel   string `yaml:"needs_review_label"`
	FallbackTopic      string `yaml:"fallback_topic"`

	DBPath                     string `yaml:"db_path"`
	SlackBotToken              string `yaml:"slack_bot_token"`
	ReportChannelID            string `yaml:"report_channel_id"`
	SlackMentionOwners         bool   `yaml:"slack_mention_owners"`
	TriageSchedule             string `yaml:"triage_schedule"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
	Timezone                   string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// ConfigPath resolves the config file location: explicit path, then
// CONFIG_PATH, then ./config.yaml.
func ConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return envPath
	}
	return "config.yaml"
}

// Load reads the YAML file (a missing file is not an error), applies env
// overrides and defaults, and validates the settings every command needs.
func Load(path string) (Config, error) {
	var cfg Config

	configPath := ConfigPath(path)
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	case !os.IsNotExist(err):
		return Config{}, fmt.Errorf("reading %s: %w", configPath, err)
	}

	envOverride(&cfg.LinearAPIKey, "LINEAR_API_KEY")
	envOverride(&cfg.LinearAPIURL, "LINEAR_API_URL")
	envOverride(&cfg.LinearTeamKey, "LINEAR_TEAM_KEY")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIAPIURL, "OPENAI_API_URL")
	envOverride(&cfg.TopicsPath, "TOPICS_PATH")
	envOverride(&cfg.IdentityTablesPath, "IDENTITY_TABLES_PATH")
	envOverride(&cfg.NeedsReviewLabel, "NEEDS_REVIEW_LABEL")
	envOverride(&cfg.FallbackTopic, "FALLBACK_TOPIC")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverrideBool(&cfg.SlackMentionOwners, "SLACK_MENTION_OWNERS")
	envOverride(&cfg.TriageSchedule, "TRIAGE_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	if err := envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS"); err != nil {
		return Config{}, err
	}
	if err := envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	if c.LLMProvider == "" {
		c.LLMProvider = "anthropic"
	}
	if c.LLMMaxTokens == 0 {
		c.LLMMaxTokens = 300
	}
	if c.LinearTeamKey == "" {
		c.LinearTeamKey = "PROF"
	}
	if c.TopicsPath == "" {
		c.TopicsPath = "./topics.csv"
	}
	if c.IdentityTablesPath == "" {
		c.IdentityTablesPath = "./identity_tables.yaml"
	}
	if c.NeedsReviewLabel == "" {
		c.NeedsReviewLabel = "needs-review"
	}
	if c.FallbackTopic == "" {
		c.FallbackTopic = "UX"
	}
	if c.DBPath == "" {
		c.DBPath = "./triage.db"
	}
	if c.ExternalHTTPTimeoutSeconds == 0 {
		c.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", c.LLMProvider)
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}

	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.LLMMaxTokens < 50 {
		return fmt.Errorf("invalid llm_max_tokens '%d': must be >= 50", c.LLMMaxTokens)
	}
	return nil
}

// ValidateForRun checks the credentials a triage run needs. Commands that
// only read local state skip it.
func (c Config) ValidateForRun() error {
	required := []struct {
		name, val string
	}{
		{"linear_api_key", c.LinearAPIKey},
		{"linear_team_key", c.LinearTeamKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			return fmt.Errorf("required config '%s' is not set (via config.yaml or env var)", r.name)
		}
	}
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	}
	if c.SlackBotToken != "" && c.ReportChannelID == "" {
		log.Printf("WARNING: slack_bot_token is set but report_channel_id is not; run summaries will not be posted")
	}
	return nil
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.ReportChannelID != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
