// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Secret        SecretConfig        `mapstructure:"secret"`
	Database      DatabaseConfig      `mapstructure:"database"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host            string     `mapstructure:"host"`
	Port            int        `mapstructure:"port"`
	Debug           bool       `mapstructure:"debug"`
	ReadTimeout     int        `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int        `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int        `mapstructure:"shutdown_timeout"` // milliseconds
	CORS            CORSConfig `mapstructure:"cors"`
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// LLMConfig points at an OpenAI-compatible chat completion API (Groq by default).
type LLMConfig struct {
	BaseURL              string  `mapstructure:"base_url"`
	APIKey               string  `mapstructure:"api_key"`
	GenerationModel      string  `mapstructure:"generation_model"`
	ParserModel          string  `mapstructure:"parser_model"`
	Temperature          float64 `mapstructure:"temperature"`
	Timeout              int     `mapstructure:"timeout"` // milliseconds, per outbound call
	ParserMaxAttempts    int     `mapstructure:"parser_max_attempts"`
	ParserResponseFormat string  `mapstructure:"parser_response_format"` // json_schema | json_object
}

// SecretConfig locates the sealed instruction template and the material to open it.
type SecretConfig struct {
	Passphrase   string `mapstructure:"passphrase"`
	TemplatePath string `mapstructure:"template_path"`
	KDFLabel     string `mapstructure:"kdf_label"`
	Placeholder  string `mapstructure:"placeholder"`
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Generate  string `mapstructure:"generate"` // e.g. "10/minute"
	KeyPrefix string `mapstructure:"key_prefix"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ObservabilityConfig struct {
	ServiceName   string  `mapstructure:"service_name"`
	TraceSampling float64 `mapstructure:"trace_sampling"`
}

// RequestTimeout bounds one generate call: the generation call plus every parser attempt.
func (l LLMConfig) RequestTimeout() time.Duration {
	attempts := l.ParserMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(1+attempts) * GetDuration(l.Timeout)
}
