package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/muhammadolammi/coverletter/internal/document"
	"github.com/muhammadolammi/coverletter/internal/logger"
	"github.com/muhammadolammi/coverletter/internal/tokens"
)

const (
	BackendReplicate = "replicate"
	BackendGemini    = "gemini"
	BackendMock      = "mock"
)

// Config is everything the coverletter command reads from the environment,
// an optional config file and its flags.
type Config struct {
	ReplicateAPIToken string        `mapstructure:"replicate_api_token"`
	Backend           string        `mapstructure:"backend"`
	Model             string        `mapstructure:"model"`
	ReplicateBaseURL  string        `mapstructure:"replicate_base_url"`
	GoogleAPIKey      string        `mapstructure:"google_api_key"`
	GeminiModel       string        `mapstructure:"gemini_model"`
	MaxPromptTokens   int           `mapstructure:"max_prompt_tokens"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`

	Log logger.Config `mapstructure:"log"`

	DBURL       string            `mapstructure:"db_url"`
	RabbitMQURL string            `mapstructure:"rabbitmq_url"`
	R2          document.R2Config `mapstructure:"r2"`
}

// env names for every key; the first one set wins.
var envBindings = map[string][]string{
	"replicate_api_token": {"REPLICATE_API_TOKEN"},
	"backend":             {"COVERLETTER_BACKEND"},
	"model":               {"COVERLETTER_MODEL"},
	"replicate_base_url":  {"REPLICATE_BASE_URL"},
	"google_api_key":      {"GOOGLE_API_KEY"},
	"gemini_model":        {"GEMINI_MODEL"},
	"max_prompt_tokens":   {"COVERLETTER_MAX_PROMPT_TOKENS"},
	"generation_timeout":  {"COVERLETTER_GENERATION_TIMEOUT"},
	"log.level":           {"LOG_LEVEL"},
	"log.format":          {"LOG_FORMAT"},
	"log.output":          {"LOG_OUTPUT"},
	"log.filepath":        {"LOG_FILE"},
	"db_url":              {"DB_URL"},
	"rabbitmq_url":        {"RABBITMQ_URL"},
	"r2.accountid":        {"R2_ACCOUNT_ID", "R2_ACCCOUNT_ID"},
	"r2.bucket":           {"R2_BUCKET"},
	"r2.accesskey":        {"R2_ACCESS_KEY"},
	"r2.secretkey":        {"R2_SECRET_KEY"},
}

// flag name -> config key
var flagBindings = map[string]string{
	"backend":   "backend",
	"model":     "model",
	"log-level": "log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendReplicate)
	v.SetDefault("model", "snowflake/snowflake-arctic-instruct")
	v.SetDefault("replicate_base_url", "https://api.replicate.com")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("max_prompt_tokens", tokens.DefaultLimit)
	v.SetDefault("generation_timeout", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "file")
	v.SetDefault("log.filepath", "coverletter.log")
}

// Load reads .env, then configPath if given, then the environment, then
// any flags in fs that were set explicitly.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if fs != nil {
		for name, key := range flagBindings {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values Load cannot default. The API token is not
// required here; the command prompts for it.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendReplicate, BackendGemini, BackendMock:
	default:
		return fmt.Errorf("invalid backend: %s, must be one of replicate, gemini, mock", c.Backend)
	}
	if c.MaxPromptTokens <= 0 {
		return fmt.Errorf("invalid max prompt tokens: %d", c.MaxPromptTokens)
	}
	if c.GenerationTimeout < 0 {
		return errors.New("generation timeout must not be negative")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s, must be 'json' or 'text'", c.Log.Format)
	}
	return nil
}

// ValidReplicateToken reports whether token looks like a Replicate API
// token. A mismatch is only worth a warning.
func ValidReplicateToken(token string) bool {
	return strings.HasPrefix(token, "r8_") && len(token) == 40
}
