// =============================================================================
// 📦 PolicyQA 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// 索引存储后端
const (
	StoreFile = "file"
	StoreSQL  = "sql"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Index:     DefaultIndexConfig(),
		Chunking:  DefaultChunkingConfig(),
		Retrieval: DefaultRetrievalConfig(),
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Redis:     DefaultRedisConfig(),
		Inbox:     DefaultInboxConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultIndexConfig 返回默认索引配置
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		Store: StoreFile,
		Dir:   "./data/policy_index",
		Name:  "policies",
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Host:            "localhost",
			Name:            "./data/policyqa.db",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
	}
}

// DefaultChunkingConfig 返回默认切分配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{TopK: 4}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:        "openai",
		BaseURL:         "https://api.openai.com",
		Model:           "gpt-4o-mini",
		Temperature:     0,
		MaxTokens:       1024,
		MaxPromptTokens: 12000,
		Timeout:         60 * time.Second,
		MaxRetries:      1,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:     "openai",
		BaseURL:      "https://api.openai.com",
		Model:        "text-embedding-3-small",
		BatchSize:    64,
		RateLimitRPS: 10,
		Timeout:      30 * time.Second,
		MaxRetries:   1,
		CacheTTL:     7 * 24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultInboxConfig 返回默认投递目录配置
func DefaultInboxConfig() InboxConfig {
	return InboxConfig{
		Dir:          "./data/inbox",
		Debounce:     500 * time.Millisecond,
		IndexOnStart: true,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "policyqa",
		SampleRate:   0.1,
	}
}
