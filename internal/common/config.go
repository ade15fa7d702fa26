package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/interfaces"
)

// DefaultConfigFile is auto-discovered in the working directory when no -config flag is given
const DefaultConfigFile = "decoupled.toml"

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Variables   KeysDirConfig   `toml:"variables"` // variables.toml directory, seeds the KV store
	LLM         LLMConfig       `toml:"llm"`
	Groq        GroqConfig      `toml:"groq"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	Pinecone    PineconeConfig  `toml:"pinecone"`
	Drupal      DrupalConfig    `toml:"drupal"`
	Search      SearchConfig    `toml:"search"`
	Chat        ChatConfig      `toml:"chat"`
	Indexing    IndexingConfig  `toml:"indexing"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// KeysDirConfig points at the directory holding variables.toml
type KeysDirConfig struct {
	Dir string `toml:"dir"`
}

// LLMProvider represents the completion provider type
type LLMProvider string

const (
	// LLMProviderGroq uses the Groq OpenAI-compatible chat completions API
	LLMProviderGroq LLMProvider = "groq"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig selects the completion provider used by the chat orchestrator
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"`
}

// GroqConfig contains Groq (OpenAI-compatible) chat completion configuration
type GroqConfig struct {
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"` // 0 leaves the provider default
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// GeminiConfig contains Google Gemini API configuration, shared by completions and embeddings
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// EmbeddingConfig configures the embedding provider
type EmbeddingConfig struct {
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension"` // must match the vector index dimension
	MaxChars  int    `toml:"max_chars"` // hard right-trim budget before submission
	Timeout   string `toml:"timeout"`
}

// PineconeConfig configures the vector index
type PineconeConfig struct {
	APIKey        string `toml:"api_key"`
	Index         string `toml:"index"`
	Host          string `toml:"host"`           // data plane host; resolved from the control plane when empty
	ControllerURL string `toml:"controller_url"` // control plane base URL
	Cloud         string `toml:"cloud"`
	Region        string `toml:"region"`
	Metric        string `toml:"metric"`
	Timeout       string `toml:"timeout"`
	ReadyTimeout  string `toml:"ready_timeout"` // bounded wait for a newly created index
	ReadyPoll     string `toml:"ready_poll"`
}

// DrupalConfig configures the GraphQL content source
type DrupalConfig struct {
	BaseURL           string `toml:"base_url"`
	ClientID          string `toml:"client_id"`
	ClientSecret      string `toml:"client_secret"`
	TokenPath         string `toml:"token_path"`
	GraphQLPath       string `toml:"graphql_path"`
	PageSize          int    `toml:"page_size"`
	MaxPages          int    `toml:"max_pages"`
	RequestsPerSecond int    `toml:"requests_per_second"` // GraphQL request ceiling
	BodyFormat        string `toml:"body_format"`         // "html" or "markdown"
	Timeout           string `toml:"timeout"`
}

// SearchConfig contains semantic search limits
type SearchConfig struct {
	DefaultLimit int `toml:"default_limit"`
	MaxLimit     int `toml:"max_limit"`
}

// ChatConfig configures the tool-calling orchestrator
type ChatConfig struct {
	SearchLimit   int    `toml:"search_limit"`   // results per search_articles invocation
	ParallelTools bool   `toml:"parallel_tools"` // dispatch multiple tool calls concurrently
	MaxTokens     int    `toml:"max_tokens"`
	Timeout       string `toml:"timeout"` // whole-turn timeout
}

// IndexingConfig configures the content indexing pipeline
type IndexingConfig struct {
	Delay         string `toml:"delay"`          // pause between articles
	Schedule      string `toml:"schedule"`       // cron (5 fields); empty disables scheduled runs
	TriggerSecret string `toml:"trigger_secret"` // required by POST /api/index; empty disables the endpoint
	MaxRetries    int    `toml:"max_retries"`    // embedding rate-limit retries per article
	RunTimeout    string `toml:"run_timeout"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Variables: KeysDirConfig{
			Dir: "./",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGroq,
		},
		Groq: GroqConfig{
			BaseURL:   "https://api.groq.com/openai/v1",
			Model:     "meta-llama/llama-4-scout-17b-16e-instruct",
			MaxTokens: 2048,
			Timeout:   "60s",
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 2048,
			Timeout:   "60s",
		},
		Gemini: GeminiConfig{
			Model:     "gemini-2.5-flash",
			MaxTokens: 2048,
			Timeout:   "60s",
		},
		Embedding: EmbeddingConfig{
			Model:     "gemini-embedding-001",
			Dimension: 1536,
			MaxChars:  32000,
			Timeout:   "30s",
		},
		Pinecone: PineconeConfig{
			Index:         "decoupled-search",
			ControllerURL: "https://api.pinecone.io",
			Cloud:         "aws",
			Region:        "us-east-1",
			Metric:        "cosine",
			Timeout:       "30s",
			ReadyTimeout:  "2m",
			ReadyPoll:     "5s",
		},
		Drupal: DrupalConfig{
			TokenPath:         "/oauth/token",
			GraphQLPath:       "/graphql",
			PageSize:          50,
			MaxPages:          200,
			RequestsPerSecond: 5,
			BodyFormat:        "html",
			Timeout:           "30s",
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxLimit:     50,
		},
		Chat: ChatConfig{
			SearchLimit:   5,
			ParallelTools: false,
			MaxTokens:     2048,
			Timeout:       "2m",
		},
		Indexing: IndexingConfig{
			Delay:      "100ms",
			MaxRetries: 3,
			RunTimeout: "30m",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> .env -> env.
// Later files override earlier files. CLI flags are applied afterwards by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	loadDotEnv()
	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadDotEnv reads .env.local then .env into the process environment.
// Variables already set in the environment are never overwritten.
func loadDotEnv() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		_ = godotenv.Load(file)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DECOUPLED_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("DECOUPLED_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("DECOUPLED_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("DECOUPLED_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("DECOUPLED_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("DECOUPLED_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Completion providers
	if provider := os.Getenv("DECOUPLED_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(strings.ToLower(provider))
	}
	if model := os.Getenv("DECOUPLED_GROQ_MODEL"); model != "" {
		config.Groq.Model = model
	}
	if model := os.Getenv("DECOUPLED_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if model := os.Getenv("DECOUPLED_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}

	// Embeddings
	if model := os.Getenv("DECOUPLED_EMBEDDING_MODEL"); model != "" {
		config.Embedding.Model = model
	}
	if dim := os.Getenv("DECOUPLED_EMBEDDING_DIMENSION"); dim != "" {
		if d, err := strconv.Atoi(dim); err == nil {
			config.Embedding.Dimension = d
		}
	}

	// Vector index
	if index := firstEnv("DECOUPLED_PINECONE_INDEX", "PINECONE_INDEX"); index != "" {
		config.Pinecone.Index = index
	}
	if host := firstEnv("DECOUPLED_PINECONE_HOST", "PINECONE_HOST"); host != "" {
		config.Pinecone.Host = host
	}

	// Content source
	if baseURL := firstEnv("DECOUPLED_DRUPAL_BASE_URL", "DRUPAL_BASE_URL", "NEXT_PUBLIC_DRUPAL_BASE_URL"); baseURL != "" {
		config.Drupal.BaseURL = baseURL
	}
	if clientID := firstEnv("DECOUPLED_DRUPAL_CLIENT_ID", "DRUPAL_CLIENT_ID"); clientID != "" {
		config.Drupal.ClientID = clientID
	}

	// Chat
	if parallel := os.Getenv("DECOUPLED_CHAT_PARALLEL_TOOLS"); parallel != "" {
		if p, err := strconv.ParseBool(parallel); err == nil {
			config.Chat.ParallelTools = p
		}
	}

	// Indexing
	if schedule := os.Getenv("DECOUPLED_INDEXING_SCHEDULE"); schedule != "" {
		config.Indexing.Schedule = schedule
	}
	if secret := firstEnv("DECOUPLED_INDEXING_TRIGGER_SECRET", "REVALIDATE_SECRET"); secret != "" {
		config.Indexing.TriggerSecret = secret
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string, logLevel string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	switch c.LLM.DefaultProvider {
	case LLMProviderGroq, LLMProviderClaude, LLMProviderGemini:
	default:
		return fmt.Errorf("invalid llm.default_provider %q (expected groq, claude or gemini)", c.LLM.DefaultProvider)
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.MaxChars <= 0 {
		return fmt.Errorf("embedding.max_chars must be positive, got %d", c.Embedding.MaxChars)
	}

	if c.Indexing.Schedule != "" {
		if err := ValidateSchedule(c.Indexing.Schedule); err != nil {
			return fmt.Errorf("invalid indexing.schedule: %w", err)
		}
	}

	return nil
}

// API key names used in the KV store and for environment resolution
const (
	KeyGroqAPIKey         = "groq_api_key"
	KeyAnthropicAPIKey    = "anthropic_api_key"
	KeyGeminiAPIKey       = "gemini_api_key"
	KeyPineconeAPIKey     = "pinecone_api_key"
	KeyDrupalClientSecret = "drupal_client_secret"
)

// keyToEnvMapping lists the environment variables checked for each secret, highest priority first
var keyToEnvMapping = map[string][]string{
	KeyGroqAPIKey:         {"DECOUPLED_GROQ_API_KEY", "GROQ_API_KEY"},
	KeyAnthropicAPIKey:    {"DECOUPLED_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	KeyGeminiAPIKey:       {"DECOUPLED_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
	KeyPineconeAPIKey:     {"DECOUPLED_PINECONE_API_KEY", "PINECONE_API_KEY"},
	KeyDrupalClientSecret: {"DECOUPLED_DRUPAL_CLIENT_SECRET", "DRUPAL_CLIENT_SECRET"},
}

// ResolveAPIKey resolves a secret by name.
// Resolution order: environment variables -> KV store -> config fallback -> ErrConfigurationMissing
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		value, err := kvStorage.Get(ctx, name)
		if err == nil && value != "" {
			return value, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("secret '%s' not found in environment, KV store, or config: %w", name, interfaces.ErrConfigurationMissing)
}

// ResolveSecrets fills the credential fields of config from env/KV/config.
// Missing secrets are left empty; services report them as not configured.
func ResolveSecrets(ctx context.Context, config *Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) {
	resolve := func(name string, target *string) {
		value, err := ResolveAPIKey(ctx, kvStorage, name, *target)
		if err != nil {
			logger.Debug().Str("secret", name).Msg("Secret not configured")
			return
		}
		*target = value
	}

	resolve(KeyGroqAPIKey, &config.Groq.APIKey)
	resolve(KeyAnthropicAPIKey, &config.Claude.APIKey)
	resolve(KeyGeminiAPIKey, &config.Gemini.APIKey)
	resolve(KeyPineconeAPIKey, &config.Pinecone.APIKey)
	resolve(KeyDrupalClientSecret, &config.Drupal.ClientSecret)
}

// ValidateSchedule validates a 5-field cron expression and enforces a minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	minuteField := strings.Fields(schedule)[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// ParseDurationOr parses a duration string, returning fallback when empty,
// invalid or not positive
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}

func splitList(s string) []string {
	items := []string{}
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
