package config

import "time"

// Config is the root configuration for roombot.
type Config struct {
	LLM       LLMConfig       `yaml:"llm,omitempty"`
	Agent     AgentConfig     `yaml:"agent,omitempty"`
	Booking   BookingConfig   `yaml:"booking,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Knowledge KnowledgeConfig `yaml:"knowledge,omitempty"`
	Guardrail GuardrailConfig `yaml:"guardrail,omitempty"`
	Trace     TraceConfig     `yaml:"trace,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Channels  ChannelsConfig  `yaml:"channels,omitempty"`
	Calendar  CalendarConfig  `yaml:"calendar,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
	Tracing   TracingConfig   `yaml:"tracing,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// LLMConfig selects the model providers used by the assistant.
type LLMConfig struct {
	Primary   string                   `yaml:"primary,omitempty"`   // provider name or model alias
	Fallbacks []string                 `yaml:"fallbacks,omitempty"` // tried in order on retryable errors
	Providers map[string]ProviderEntry `yaml:"providers,omitempty"`
}

// ProviderEntry configures one LLM provider.
type ProviderEntry struct {
	API     string   `yaml:"api"`               // "openai" | "anthropic"
	BaseURL string   `yaml:"baseUrl,omitempty"` // OpenAI-compatible servers (Ollama, vLLM) set this
	APIKey  string   `yaml:"apiKey,omitempty"`
	Model   string   `yaml:"model"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// AgentConfig controls the orchestration loop.
type AgentConfig struct {
	Name          string        `yaml:"name,omitempty"`
	Organization  string        `yaml:"organization,omitempty"`
	MaxIterations int           `yaml:"maxIterations,omitempty"`
	MaxTokens     int           `yaml:"maxTokens,omitempty"`
	Temperature   *float64      `yaml:"temperature,omitempty"`
	LLMTimeout    time.Duration `yaml:"llmTimeout,omitempty"`
	ToolTimeout   time.Duration `yaml:"toolTimeout,omitempty"`
	ExtraPrompt   string        `yaml:"extraPrompt,omitempty"`
}

// BookingConfig controls how wall-clock dates and times are interpreted.
type BookingConfig struct {
	Timezone string `yaml:"timezone,omitempty"` // IANA name or "Local"
}

// StoreConfig selects the reservation store.
type StoreConfig struct {
	Driver      string `yaml:"driver,omitempty"` // "sqlite" | "postgres"
	Path        string `yaml:"path,omitempty"`   // sqlite file, defaults to <data>/roombot.db
	DSN         string `yaml:"dsn,omitempty"`    // postgres connection string
	SeedOnStart *bool  `yaml:"seedOnStart,omitempty"`
}

// KnowledgeConfig points at the company policy file.
type KnowledgeConfig struct {
	Path string `yaml:"path,omitempty"` // empty uses the built-in policies
}

// GuardrailConfig extends the prompt-injection deny-list.
type GuardrailConfig struct {
	ExtraPatterns []string `yaml:"extraPatterns,omitempty"`
}

// TraceConfig controls the JSONL audit trace.
type TraceConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"` // defaults to <logs>/reasoning
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int             `yaml:"port,omitempty"`
	Bind           string          `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string          `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth     `yaml:"auth,omitempty"`
	TLS            GatewayTLS      `yaml:"tls,omitempty"`
	AllowedOrigins []string        `yaml:"allowedOrigins,omitempty"`
	RateLimit      RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// RateLimitConfig bounds how many turns one requester may start.
type RateLimitConfig struct {
	PerMinute float64 `yaml:"perMinute,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`
}

// ChannelsConfig defines chat transports.
type ChannelsConfig struct {
	IRC   *IRCConfig   `yaml:"irc,omitempty"`
	Slack *SlackConfig `yaml:"slack,omitempty"`
}

// IRCConfig defines IRC channel settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// SlackConfig defines the Slack Socket Mode integration.
type SlackConfig struct {
	BotToken      string `yaml:"botToken,omitempty"`
	AppToken      string `yaml:"appToken,omitempty"`
	SigningSecret string `yaml:"signingSecret,omitempty"`
	APIBaseURL    string `yaml:"apiBaseUrl,omitempty"`
}

// CalendarConfig mirrors confirmed reservations into Google Calendar.
type CalendarConfig struct {
	Enabled          bool   `yaml:"enabled,omitempty"`
	CalendarID       string `yaml:"calendarId,omitempty"`
	CredentialsFile  string `yaml:"credentialsFile,omitempty"`
	TokenFile        string `yaml:"tokenFile,omitempty"`
	BackfillSchedule string `yaml:"backfillSchedule,omitempty"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled,omitempty"`
	Endpoint    string  `yaml:"endpoint,omitempty"`
	Insecure    bool    `yaml:"insecure,omitempty"`
	ServiceName string  `yaml:"serviceName,omitempty"`
	SampleRate  float64 `yaml:"sampleRate,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}
