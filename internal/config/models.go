package config

import "time"

// ServerConfig represents the configuration for the ingest server
type ServerConfig struct {
	FilterType       string
	ListenAddress    string
	UpstreamAddress  string
	DefaultUser      string
	NewsletterHeader string
	ScoreHeader      string
	ReasonHeader     string
}

// DetectionConfig represents the configuration for the detection aggregator
type DetectionConfig struct {
	NewsletterThreshold float64
	RejectThreshold     float64
	GuessThreshold      float64
	SnapshotTTL         time.Duration
	TrustedDomains      []string
	Weights             map[string]float64
}

// VerificationConfig represents the configuration for the verification workflow
type VerificationConfig struct {
	TTL            time.Duration
	SweepFrequency time.Duration
}

// FeedbackConfig represents the priority thresholds for feedback triage
type FeedbackConfig struct {
	ContradictionMin   float64
	ConfirmSurpriseMax float64
	BorderlineLow      float64
	BorderlineHigh     float64
}

// LearningConfig represents the configuration for the learning service
type LearningConfig struct {
	LearningRate    float64
	ReputationDelta float64
	WeightRate      float64
	MinWeight       float64
	MaxWeight       float64
	MinConfidence   float64
	DecayTrigger    float64
	AssignDelta     float64
	RemoveDelta     float64
}

// CategoryConfig represents the configuration for the category engine
type CategoryConfig struct {
	Threshold float64
	Keywords  map[string][]string
}

// MatcherConfig represents the configuration for the category matcher provider
type MatcherConfig struct {
	Provider string
}

// StoreConfig represents the configuration for the persistence store
type StoreConfig struct {
	Type             string
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GetServer returns the ingest server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:       c.GetString("server.filter_type"),
		ListenAddress:    c.GetString("server.listen_address"),
		UpstreamAddress:  c.GetString("server.upstream_address"),
		DefaultUser:      c.GetString("server.default_user"),
		NewsletterHeader: c.GetString("server.headers.newsletter"),
		ScoreHeader:      c.GetString("server.headers.score"),
		ReasonHeader:     c.GetString("server.headers.reason"),
	}
}

// GetDetection returns the detection configuration
func (c *Config) GetDetection() (DetectionConfig, error) {
	ttl, err := c.GetDuration("detection.snapshot_ttl")
	if err != nil {
		return DetectionConfig{}, err
	}
	weights := make(map[string]float64)
	for method, weight := range c.v.GetStringMap("detection.weights") {
		switch w := weight.(type) {
		case float64:
			weights[method] = w
		case int:
			weights[method] = float64(w)
		}
	}
	return DetectionConfig{
		NewsletterThreshold: c.GetFloat64("detection.newsletter_threshold"),
		RejectThreshold:     c.GetFloat64("detection.reject_threshold"),
		GuessThreshold:      c.GetFloat64("detection.guess_threshold"),
		SnapshotTTL:         ttl,
		TrustedDomains:      c.GetStringSlice("detection.trusted_domains"),
		Weights:             weights,
	}, nil
}

// GetVerification returns the verification workflow configuration
func (c *Config) GetVerification() (VerificationConfig, error) {
	ttl, err := c.GetDuration("verification.ttl")
	if err != nil {
		return VerificationConfig{}, err
	}
	sweep, err := c.GetDuration("verification.sweep_frequency")
	if err != nil {
		return VerificationConfig{}, err
	}
	return VerificationConfig{
		TTL:            ttl,
		SweepFrequency: sweep,
	}, nil
}

// GetFeedback returns the feedback priority thresholds
func (c *Config) GetFeedback() FeedbackConfig {
	return FeedbackConfig{
		ContradictionMin:   c.GetFloat64("feedback.contradiction_min"),
		ConfirmSurpriseMax: c.GetFloat64("feedback.confirm_surprise_max"),
		BorderlineLow:      c.GetFloat64("feedback.borderline_low"),
		BorderlineHigh:     c.GetFloat64("feedback.borderline_high"),
	}
}

// GetLearning returns the learning configuration
func (c *Config) GetLearning() LearningConfig {
	return LearningConfig{
		LearningRate:    c.GetFloat64("learning.learning_rate"),
		ReputationDelta: c.GetFloat64("learning.reputation_delta"),
		WeightRate:      c.GetFloat64("learning.weight_rate"),
		MinWeight:       c.GetFloat64("learning.min_weight"),
		MaxWeight:       c.GetFloat64("learning.max_weight"),
		MinConfidence:   c.GetFloat64("learning.min_confidence"),
		DecayTrigger:    c.GetFloat64("learning.decay_trigger"),
		AssignDelta:     c.GetFloat64("learning.assign_delta"),
		RemoveDelta:     c.GetFloat64("learning.remove_delta"),
	}
}

// GetCategory returns the category engine configuration
func (c *Config) GetCategory() CategoryConfig {
	return CategoryConfig{
		Threshold: c.GetFloat64("category.threshold"),
		Keywords:  c.GetStringMapStringSlice("category.keywords"),
	}
}

// GetMatcher returns the matcher provider configuration
func (c *Config) GetMatcher() MatcherConfig {
	return MatcherConfig{
		Provider: c.GetString("matcher.provider"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() (StoreConfig, error) {
	cleanup, err := c.GetDuration("store.cleanup_frequency")
	if err != nil {
		return StoreConfig{}, err
	}
	return StoreConfig{
		Type:             c.GetString("store.type"),
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("store.sqlite_path"),
		MySQLDSN:         c.GetString("store.mysql_dsn"),
	}, nil
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}
