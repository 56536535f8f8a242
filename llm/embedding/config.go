package embedding

import (
	"time"

	"github.com/BaSui01/policyqa/config"
)

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`           // text-embedding-3-small
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"` // 0 = model default
	BatchSize  int           `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	RateLimit  float64       `json:"rate_limit_rps,omitempty" yaml:"rate_limit_rps,omitempty"` // 0 = unlimited
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultOpenAIConfig returns default OpenAI embedding config.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:   "https://api.openai.com",
		Model:     "text-embedding-3-small",
		BatchSize: 64,
		RateLimit: 10,
		Timeout:   30 * time.Second,
	}
}

// OpenAIConfigFrom maps the application embedding section.
func OpenAIConfigFrom(ec config.EmbeddingConfig) OpenAIConfig {
	cfg := DefaultOpenAIConfig()
	cfg.APIKey = ec.APIKey
	if ec.BaseURL != "" {
		cfg.BaseURL = ec.BaseURL
	}
	if ec.Model != "" {
		cfg.Model = ec.Model
	}
	cfg.Dimensions = ec.Dimensions
	if ec.BatchSize > 0 {
		cfg.BatchSize = ec.BatchSize
	}
	cfg.RateLimit = ec.RateLimitRPS
	if ec.Timeout > 0 {
		cfg.Timeout = ec.Timeout
	}
	return cfg
}
