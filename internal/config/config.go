// Package config handles application configuration loading from a YAML file
// with environment variable overrides.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "learnapp/internal/utils"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// External service configuration
	AI        AIConfig        `json:"ai" yaml:"ai"`
	Wolfram   WolframConfig   `json:"wolfram" yaml:"wolfram"`
	YouTube   YouTubeConfig   `json:"youtube" yaml:"youtube"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`

	// Feature configuration
	Homework HomeworkConfig `json:"homework" yaml:"homework"`
	Quiz     QuizConfig     `json:"quiz" yaml:"quiz"`

	// OpenTelemetry Configuration
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Email Configuration
	Email EmailConfig `json:"email" yaml:"email"`

	// System configuration
	System *SystemConfig `json:"system,omitempty" yaml:"system,omitempty"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port               string   `json:"port" yaml:"port"`
	WorkerPort         string   `json:"worker_port" yaml:"worker_port"`
	AdminUsername      string   `json:"admin_username" yaml:"admin_username"`
	AdminPassword      string   `json:"admin_password" yaml:"admin_password"`
	SessionSecret      string   `json:"session_secret" yaml:"session_secret"`
	Debug              bool     `json:"debug" yaml:"debug"`
	LogLevel           string   `json:"log_level" yaml:"log_level"`
	AppBaseURL         string   `json:"app_base_url" yaml:"app_base_url"`
	MaxAIConcurrent    int      `json:"max_ai_concurrent" yaml:"max_ai_concurrent"`
	MaxAIPerUser       int      `json:"max_ai_per_user" yaml:"max_ai_per_user"`
	CORSOrigins        []string `json:"cors_origins" yaml:"cors_origins"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	MaxHistory         int      `json:"max_history" yaml:"max_history"`
	MaxActivityLogs    int      `json:"max_activity_logs" yaml:"max_activity_logs"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`       // Maximum number of open connections to the database
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`       // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"` // Maximum amount of time a connection may be reused
}

// AIConfig represents Gemini generation configuration
type AIConfig struct {
	GeminiAPIKey    string              `json:"gemini_api_key" yaml:"gemini_api_key"`
	ModelFast       string              `json:"model_fast" yaml:"model_fast"`         // Default: "gemini-2.5-flash-lite"
	ModelStandard   string              `json:"model_standard" yaml:"model_standard"` // Default: "gemini-2.5-flash"
	ModelQuality    string              `json:"model_quality" yaml:"model_quality"`   // Default: "gemini-2.5-pro"
	Fallbacks       map[string][]string `json:"fallbacks" yaml:"fallbacks"`           // model -> ordered fallback models
	MaxOutputTokens int                 `json:"max_output_tokens" yaml:"max_output_tokens"`
	RequestTimeout  time.Duration       `json:"request_timeout" yaml:"request_timeout"`
}

// WolframConfig represents Wolfram Alpha configuration
type WolframConfig struct {
	AppID          string        `json:"app_id" yaml:"app_id"`
	BaseURL        string        `json:"base_url" yaml:"base_url"` // Default: "https://api.wolframalpha.com/v2/query"
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout"`
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`
	CacheTTL       time.Duration `json:"cache_ttl" yaml:"cache_ttl"` // Default: 24h
}

// YouTubeConfig represents YouTube Data API configuration
type YouTubeConfig struct {
	APIKey     string `json:"api_key" yaml:"api_key"`
	BaseURL    string `json:"base_url" yaml:"base_url"`       // Default: "https://www.googleapis.com/youtube/v3"
	Region     string `json:"region" yaml:"region"`           // Default: "IN"
	MaxResults int    `json:"max_results" yaml:"max_results"` // Default: 10
}

// EmbeddingConfig represents embedding and vector index configuration
type EmbeddingConfig struct {
	Model          string `json:"model" yaml:"model"`                     // Default: "gemini-embedding-001"
	BatchSize      int    `json:"batch_size" yaml:"batch_size"`           // Default: 50
	PineconeAPIKey string `json:"pinecone_api_key" yaml:"pinecone_api_key"`
	PineconeIndex  string `json:"pinecone_index" yaml:"pinecone_index"`
	PineconeHost   string `json:"pinecone_host" yaml:"pinecone_host"`
	TopK           int    `json:"top_k" yaml:"top_k"` // Default: 5
	ChunkSize      int    `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap" yaml:"chunk_overlap"`
}

// HomeworkConfig represents homework session configuration
type HomeworkConfig struct {
	MaxAttempts        int `json:"max_attempts" yaml:"max_attempts"`
	MaxHints           int `json:"max_hints" yaml:"max_hints"`
	AbandonedAfterDays int `json:"abandoned_after_days" yaml:"abandoned_after_days"`
}

// QuizConfig represents quiz session configuration
type QuizConfig struct {
	SecondsPerQuestion int `json:"seconds_per_question" yaml:"seconds_per_question"` // Default: 120
	DefaultMarks       int `json:"default_marks" yaml:"default_marks"`
}

// AuthConfig represents authentication-related configuration
type AuthConfig struct {
	SignupsDisabled bool     `json:"signups_disabled" yaml:"signups_disabled"`
	AllowedDomains  []string `json:"allowed_domains,omitempty" yaml:"allowed_domains,omitempty"`
	AllowedEmails   []string `json:"allowed_emails,omitempty" yaml:"allowed_emails,omitempty"`
}

// SystemConfig represents system-wide configuration
type SystemConfig struct {
	Auth AuthConfig `json:"auth" yaml:"auth"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "http://localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "learnapp-backend" or "learnapp-worker"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`   // Default: true
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`   // Default: true
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`   // Default: true
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"`     // Default: 1.0 (100%)
	UseAutoSDK     bool              `json:"use_auto_sdk" yaml:"use_auto_sdk"`       // Auto SDK instead of the standard exporter pipeline
}

// EmailConfig represents email/SMTP configuration
type EmailConfig struct {
	SMTP    SMTPConfig   `json:"smtp" yaml:"smtp"`
	Digest  DigestConfig `json:"digest" yaml:"digest"`
	Enabled bool         `json:"enabled" yaml:"enabled"`
}

// SMTPConfig represents SMTP server configuration
type SMTPConfig struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	FromAddress string `json:"from_address" yaml:"from_address"`
	FromName    string `json:"from_name" yaml:"from_name"`
}

// DigestConfig represents notification digest email configuration
type DigestConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Hour    int  `json:"hour" yaml:"hour"` // Hour of day to send (0-23)
}

// ModelFor returns the configured model for the given tier ("fast",
// "standard", "quality") with a sensible default.
func (c *AIConfig) ModelFor(tier string) string {
	switch tier {
	case "fast":
		if c.ModelFast != "" {
			return c.ModelFast
		}
		return "gemini-2.5-flash-lite"
	case "quality":
		if c.ModelQuality != "" {
			return c.ModelQuality
		}
		return "gemini-2.5-pro"
	default:
		if c.ModelStandard != "" {
			return c.ModelStandard
		}
		return "gemini-2.5-flash"
	}
}

// FallbacksFor returns the ordered fallback chain for a model.
func (c *AIConfig) FallbacksFor(model string) []string {
	if c.Fallbacks == nil {
		return nil
	}
	return c.Fallbacks[model]
}

// IsSignupDisabled returns whether signups are disabled based on configuration
func (c *Config) IsSignupDisabled() bool {
	if c.System == nil {
		return false // Default to enabled if no config
	}
	return c.System.Auth.SignupsDisabled
}

// IsEmailAllowed checks if an email is allowed for signup override
func (c *Config) IsEmailAllowed(email string) bool {
	if c.System == nil || c.System.Auth.AllowedEmails == nil {
		return false
	}

	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	for _, allowedEmail := range c.System.Auth.AllowedEmails {
		if strings.ToLower(strings.TrimSpace(allowedEmail)) == normalizedEmail {
			return true
		}
	}
	return false
}

// IsDomainAllowed checks if a domain is allowed for signup override
func (c *Config) IsDomainAllowed(domain string) bool {
	if c.System == nil || c.System.Auth.AllowedDomains == nil {
		return false
	}

	normalizedDomain := strings.ToLower(strings.TrimSpace(domain))
	for _, allowedDomain := range c.System.Auth.AllowedDomains {
		if strings.ToLower(strings.TrimSpace(allowedDomain)) == normalizedDomain {
			return true
		}
	}
	return false
}

// IsSignupAllowed checks if signup is allowed for a given email
func (c *Config) IsSignupAllowed(email string) bool {
	if c.System == nil {
		return true
	}

	// If signups are not disabled, signup is always allowed
	if !c.System.Auth.SignupsDisabled {
		return true
	}

	// If signups are disabled, check whitelist
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))

	if !contextutils.IsValidEmail(normalizedEmail) {
		return false
	}

	if c.IsEmailAllowed(normalizedEmail) {
		return true
	}

	parts := strings.Split(normalizedEmail, "@")
	domain := parts[1]
	return c.IsDomainAllowed(domain)
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	// Load config from YAML file
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	// Override with environment variables
	config.overrideFromEnv()
	config.applyDefaults()

	return config, nil
}

// applyDefaults fills in defaults for values the file and the environment left unset.
func (c *Config) applyDefaults() {
	if c.Wolfram.BaseURL == "" {
		c.Wolfram.BaseURL = "https://api.wolframalpha.com/v2/query"
	}
	if c.Wolfram.ConnectTimeout == 0 {
		c.Wolfram.ConnectTimeout = 10 * time.Second
	}
	if c.Wolfram.ReadTimeout == 0 {
		c.Wolfram.ReadTimeout = 60 * time.Second
	}
	if c.Wolfram.MaxRetries == 0 {
		c.Wolfram.MaxRetries = 2
	}
	if c.Wolfram.CacheTTL == 0 {
		c.Wolfram.CacheTTL = 24 * time.Hour
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "gemini-embedding-001"
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 50
	}
	if c.Embedding.TopK == 0 {
		c.Embedding.TopK = 5
	}
	if c.Embedding.ChunkSize == 0 {
		c.Embedding.ChunkSize = 1000
	}
	if c.Embedding.ChunkOverlap == 0 {
		c.Embedding.ChunkOverlap = 200
	}
	if c.YouTube.BaseURL == "" {
		c.YouTube.BaseURL = "https://www.googleapis.com/youtube/v3"
	}
	if c.YouTube.Region == "" {
		c.YouTube.Region = "IN"
	}
	if c.YouTube.MaxResults == 0 {
		c.YouTube.MaxResults = 10
	}
	if c.Homework.MaxAttempts == 0 {
		c.Homework.MaxAttempts = 3
	}
	if c.Homework.MaxHints == 0 {
		c.Homework.MaxHints = 3
	}
	if c.Homework.AbandonedAfterDays == 0 {
		c.Homework.AbandonedAfterDays = 7
	}
	if c.Quiz.SecondsPerQuestion == 0 {
		c.Quiz.SecondsPerQuestion = 120
	}
	if c.Server.RateLimitPerMinute == 0 {
		c.Server.RateLimitPerMinute = 100
	}
	if c.Server.MaxHistory == 0 {
		c.Server.MaxHistory = 50
	}
	if c.Server.MaxActivityLogs == 0 {
		c.Server.MaxActivityLogs = 200
	}
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnv(c)
}

// overrideStructFromEnv recursively overrides struct fields with environment variables
func overrideStructFromEnv(v interface{}) {
	overrideStructFromEnvWithPrefix(v, "")
}

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		// Get the yaml tag for the field
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		yamlTag = strings.Split(yamlTag, ",")[0]

		// Convert yaml tag to environment variable name
		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if field.Type() == reflect.TypeOf(time.Duration(0)) {
					if d, err := time.ParseDuration(envVal); err == nil {
						field.SetInt(int64(d))
					}
				} else if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if uintVal, err := strconv.ParseUint(envVal, 10, 64); err == nil {
					field.SetUint(uintVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				// Handle string slices (like CORS_ORIGINS)
				if field.Type().Elem().Kind() == reflect.String {
					slice := strings.Split(envVal, ",")
					field.Set(reflect.ValueOf(slice))
				}
			}
		case reflect.Struct:
			// Recursively process nested structs with the field name as prefix
			if field.CanAddr() {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), fieldPrefix)
			}
		case reflect.Ptr:
			// Handle pointer to struct
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Interface(), fieldPrefix)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file with potential local overrides
func loadConfigWithOverrides() (result0 *Config, err error) {
	// Try to load from environment variable first
	if envPath := os.Getenv("LEARNAPP_CONFIG_FILE"); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	// If no environment variable is set, try default config.yaml
	return loadConfigFromFile("config.yaml")
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
