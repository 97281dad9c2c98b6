package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/newsletter-filter/")
	v.AddConfigPath("$HOME/.newsletter-filter")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("NEWSLETTER_FILTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.filter_type", "smtp")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.upstream_address", "localhost:10026")
	v.SetDefault("server.default_user", "default")
	v.SetDefault("server.headers.newsletter", "X-Newsletter")
	v.SetDefault("server.headers.score", "X-Newsletter-Score")
	v.SetDefault("server.headers.reason", "X-Newsletter-Reason")

	// Detection defaults
	v.SetDefault("detection.newsletter_threshold", 0.7)
	v.SetDefault("detection.reject_threshold", 0.3)
	v.SetDefault("detection.guess_threshold", 0.5)
	v.SetDefault("detection.snapshot_ttl", "168h")
	v.SetDefault("detection.trusted_domains", []string{})
	v.SetDefault("detection.weights.header_analysis", 0.4)
	v.SetDefault("detection.weights.sender_pattern", 0.3)
	v.SetDefault("detection.weights.esp_domain", 0.2)
	v.SetDefault("detection.weights.sender_reputation", 0.1)

	// Verification defaults
	v.SetDefault("verification.ttl", "72h")
	v.SetDefault("verification.sweep_frequency", "1h")

	// Feedback priority defaults
	v.SetDefault("feedback.contradiction_min", 0.8)
	v.SetDefault("feedback.confirm_surprise_max", 0.2)
	v.SetDefault("feedback.borderline_low", 0.4)
	v.SetDefault("feedback.borderline_high", 0.6)

	// Learning defaults
	v.SetDefault("learning.learning_rate", 0.1)
	v.SetDefault("learning.reputation_delta", 0.1)
	v.SetDefault("learning.weight_rate", 0.05)
	v.SetDefault("learning.min_weight", 0.05)
	v.SetDefault("learning.max_weight", 1.0)
	v.SetDefault("learning.min_confidence", 0.1)
	v.SetDefault("learning.decay_trigger", 0.6)
	v.SetDefault("learning.assign_delta", 1.0)
	v.SetDefault("learning.remove_delta", -0.5)

	// Category defaults
	v.SetDefault("category.threshold", 0.4)
	v.SetDefault("category.keywords", map[string][]string{})

	// Matcher defaults
	v.SetDefault("matcher.provider", "keyword")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.cleanup_frequency", "1h")
	v.SetDefault("store.sqlite_path", "/data/newsletter_filter.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/newsletter_filter")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetStringMapStringSlice gets a map of string slices from the configuration
func (c *Config) GetStringMapStringSlice(key string) map[string][]string {
	return c.v.GetStringMapStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
