package config

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so passwords and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.Store.DSN = expandEnvVars(cfg.Store.DSN)
	if cfg.Channels.IRC != nil {
		cfg.Channels.IRC.Password = expandEnvVars(cfg.Channels.IRC.Password)
	}
	if s := cfg.Channels.Slack; s != nil {
		s.BotToken = expandEnvVars(s.BotToken)
		s.AppToken = expandEnvVars(s.AppToken)
		s.SigningSecret = expandEnvVars(s.SigningSecret)
	}
	for name, provider := range cfg.LLM.Providers {
		provider.APIKey = expandEnvVars(provider.APIKey)
		cfg.LLM.Providers[name] = provider
	}
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file in the working
// directory and the roombot home. Existing variables are never replaced.
func LoadDotEnv(paths Paths) {
	for _, p := range []string{".env", filepath.Join(paths.Base, ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyDefaults(&cfg)
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return Defaults(), err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Defaults(), &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "RoomBot"
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = DefaultMaxIterations
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = DefaultMaxTokens
	}
	if cfg.Agent.LLMTimeout == 0 {
		cfg.Agent.LLMTimeout = DefaultLLMTimeout
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = DefaultToolTimeout
	}
	if cfg.Booking.Timezone == "" {
		cfg.Booking.Timezone = "Local"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultGatewayPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if cfg.Gateway.RateLimit.PerMinute == 0 {
		cfg.Gateway.RateLimit.PerMinute = 20
	}
	if cfg.Gateway.RateLimit.Burst == 0 {
		cfg.Gateway.RateLimit.Burst = 5
	}
	if cfg.Calendar.CalendarID == "" {
		cfg.Calendar.CalendarID = "primary"
	}
	if cfg.Calendar.BackfillSchedule == "" {
		cfg.Calendar.BackfillSchedule = DefaultBackfillSchedule
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "roombot"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1.0
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
	if cfg.Channels.IRC != nil && cfg.Channels.IRC.Port == 0 {
		if cfg.Channels.IRC.UseTLS {
			cfg.Channels.IRC.Port = 6697
		} else {
			cfg.Channels.IRC.Port = 6667
		}
	}
}

// applyEnvOverrides reads ROOMBOT_* and well-known provider variables and
// overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROOMBOT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("ROOMBOT_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("ROOMBOT_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Token = v
	}
	if v := os.Getenv("ROOMBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ROOMBOT_TIMEZONE"); v != "" {
		cfg.Booking.Timezone = v
	}
	if v := os.Getenv("ROOMBOT_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Store.DSN == "" {
		cfg.Store.DSN = v
		if os.Getenv("ROOMBOT_STORE_DRIVER") == "" {
			cfg.Store.Driver = "postgres"
		}
	}
	if v := os.Getenv("ROOMBOT_LLM_PRIMARY"); v != "" {
		cfg.LLM.Primary = v
	}

	addEnvProvider(cfg, "openai", "openai", "OPENAI_API_KEY", "OPENAI_BASE_URL", DefaultOpenAIModel)
	addEnvProvider(cfg, "anthropic", "anthropic", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", DefaultAnthropicModel)

	if cfg.LLM.Primary == "" {
		for _, name := range []string{"openai", "anthropic"} {
			if _, ok := cfg.LLM.Providers[name]; ok {
				cfg.LLM.Primary = name
				break
			}
		}
	}

	botToken, appToken := os.Getenv("SLACK_BOT_TOKEN"), os.Getenv("SLACK_APP_TOKEN")
	if botToken != "" || appToken != "" {
		if cfg.Channels.Slack == nil {
			cfg.Channels.Slack = &SlackConfig{}
		}
		if botToken != "" {
			cfg.Channels.Slack.BotToken = botToken
		}
		if appToken != "" {
			cfg.Channels.Slack.AppToken = appToken
		}
		if v := os.Getenv("SLACK_SIGNING_SECRET"); v != "" {
			cfg.Channels.Slack.SigningSecret = v
		}
	}
}

// addEnvProvider fills in a provider's API key from the environment,
// registering the provider if the config file did not mention it.
func addEnvProvider(cfg *Config, name, api, keyVar, baseURLVar, model string) {
	key := os.Getenv(keyVar)
	if key == "" {
		return
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]ProviderEntry{}
	}
	entry, ok := cfg.LLM.Providers[name]
	if !ok {
		entry = ProviderEntry{API: api, Model: model}
	}
	if entry.APIKey == "" {
		entry.APIKey = key
	}
	if v := os.Getenv(baseURLVar); v != "" && entry.BaseURL == "" {
		entry.BaseURL = v
	}
	cfg.LLM.Providers[name] = entry
}
