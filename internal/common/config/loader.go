// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "astro-backend-llm/internal/common/errors"
)

const (
	DefaultGroqBaseURL  = "https://api.groq.com/openai/v1"
	DefaultKDFLabel     = "astro-backend-llm"
	DefaultPlaceholder  = "{prompt}"
	DefaultGenerateRate = "10/minute"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("error reading base config: %v", err))
		}
	}

	// Environment overlay is optional.
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finalize(v)
}

func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("failed to read config file %s: %v", path, err))
	}

	return finalize(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	// APP_NAME, LLM_API_KEY, SECRET_PASSPHRASE, ...
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("failed to unmarshal config: %v", err))
	}

	if err := overrideEmptyConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			// Unset variables expand to "" so defaults and env fallbacks still apply.
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig honours the variable names the service has always been deployed with.
func overrideEmptyConfig(cfg *Config) error {
	setString := func(dst *string, key string) {
		if *dst == "" {
			if val := os.Getenv(key); val != "" {
				*dst = val
			}
		}
	}

	setString(&cfg.LLM.APIKey, "GROQ_API_KEY")
	setString(&cfg.LLM.GenerationModel, "GROQ_MODEL_NAME")
	setString(&cfg.LLM.ParserModel, "GROQ_PARSER_MODEL_NAME")
	setString(&cfg.Secret.Passphrase, "SECRET_PASSPHRASE")
	setString(&cfg.Secret.TemplatePath, "SECRET_TEMPLATE_PATH")
	setString(&cfg.Server.Host, "SERVER_HOST")

	// The environment wins over the file for temperature, as the deployed service expects.
	if val := os.Getenv("GROQ_TEMPERATURE"); val != "" {
		t, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return apperrors.NewConfigurationError(fmt.Sprintf("GROQ_TEMPERATURE is not a number: %q", val))
		}
		cfg.LLM.Temperature = t
	}

	if val := os.Getenv("SERVER_PORT"); val != "" && cfg.Server.Port == 0 {
		port, err := strconv.Atoi(val)
		if err != nil {
			return apperrors.NewConfigurationError(fmt.Sprintf("SERVER_PORT is not an integer: %q", val))
		}
		cfg.Server.Port = port
	}

	if val := os.Getenv("DEBUG"); val != "" {
		cfg.Server.Debug = strings.EqualFold(val, "true")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "astro-backend-llm"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "1.0.0"
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
		cfg.Server.CORS.AllowCredentials = true
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"*"}
	}

	// LLM defaults
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = DefaultGroqBaseURL
	}
	if cfg.LLM.ParserModel == "" {
		cfg.LLM.ParserModel = cfg.LLM.GenerationModel
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60000
	}
	if cfg.LLM.ParserMaxAttempts == 0 {
		cfg.LLM.ParserMaxAttempts = 3
	}
	if cfg.LLM.ParserResponseFormat == "" {
		cfg.LLM.ParserResponseFormat = "json_object"
	}

	// Write timeout must outlive a full generate call.
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = int(cfg.LLM.RequestTimeout().Milliseconds()) + 5000
	}

	// Secret defaults
	if cfg.Secret.KDFLabel == "" {
		cfg.Secret.KDFLabel = DefaultKDFLabel
	}
	if cfg.Secret.Placeholder == "" {
		cfg.Secret.Placeholder = DefaultPlaceholder
	}

	// Rate limit defaults
	if cfg.RateLimit.Generate == "" {
		cfg.RateLimit.Generate = DefaultGenerateRate
	}
	if cfg.RateLimit.KeyPrefix == "" {
		cfg.RateLimit.KeyPrefix = "astro:ratelimit"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}
	if cfg.Observability.TraceSampling == 0 {
		cfg.Observability.TraceSampling = 1.0
	}
}

func validateConfig(cfg *Config) error {
	var missing []string
	if cfg.LLM.APIKey == "" {
		missing = append(missing, "llm.api_key")
	}
	if cfg.LLM.GenerationModel == "" {
		missing = append(missing, "llm.generation_model")
	}
	if cfg.Secret.Passphrase == "" {
		missing = append(missing, "secret.passphrase")
	}
	if cfg.Secret.TemplatePath == "" {
		missing = append(missing, "secret.template_path")
	}
	if cfg.RateLimit.Enabled && cfg.Database.Redis.Address == "" {
		missing = append(missing, "database.redis.address")
	}
	if len(missing) > 0 {
		return apperrors.NewConfigurationError(fmt.Sprintf("required values missing: %s", strings.Join(missing, ", ")))
	}

	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return apperrors.NewConfigurationError(fmt.Sprintf("llm.temperature must be within [0, 2], got %v", cfg.LLM.Temperature))
	}
	if cfg.LLM.ParserMaxAttempts < 1 {
		return apperrors.NewConfigurationError("llm.parser_max_attempts must be at least 1")
	}
	switch cfg.LLM.ParserResponseFormat {
	case "json_object", "json_schema":
	default:
		return apperrors.NewConfigurationError(fmt.Sprintf("llm.parser_response_format must be json_object or json_schema, got %q", cfg.LLM.ParserResponseFormat))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return apperrors.NewConfigurationError(fmt.Sprintf("server.port out of range: %d", cfg.Server.Port))
	}
	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
