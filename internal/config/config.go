// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Chunking      ChunkingConfig      `yaml:"chunking" mapstructure:"chunking"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" mapstructure:"retrieval"`
	Sources       SourcesConfig       `yaml:"sources" mapstructure:"sources"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
	Features      FeaturesConfig      `yaml:"features" mapstructure:"features"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	// MaxUploadBytes 单次上传大小上限
	MaxUploadBytes int64 `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// VectorConfig 向量索引配置
type VectorConfig struct {
	// Backend 可选 milvus / memory（memory 仅用于本地开发与测试）
	Backend string       `yaml:"backend" mapstructure:"backend"`
	Milvus  MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	SearchEf           int    `yaml:"search_ef" mapstructure:"search_ef"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Model     string `yaml:"model" mapstructure:"model"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`

	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Backoff     BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ChunkingConfig 切分配置。Token 计数约定为空白分词（strings.Fields）。
type ChunkingConfig struct {
	MaxTokens     int `yaml:"max_tokens" mapstructure:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens" mapstructure:"overlap_tokens"`
	// Concurrency 单文档内并发 embedding 的上限
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	TopK               int `yaml:"top_k" mapstructure:"top_k"`
	MaxContextSegments int `yaml:"max_context_segments" mapstructure:"max_context_segments"`
	MaxRunesPerSegment int `yaml:"max_runes_per_segment" mapstructure:"max_runes_per_segment"`
}

// SourcesConfig 数据源连接器配置
type SourcesConfig struct {
	Slack  SlackSourceConfig  `yaml:"slack" mapstructure:"slack"`
	GitHub GitHubSourceConfig `yaml:"github" mapstructure:"github"`
}

// SlackSourceConfig Slack 连接器配置
type SlackSourceConfig struct {
	Token             string        `yaml:"token" mapstructure:"token"`
	Endpoint          string        `yaml:"endpoint" mapstructure:"endpoint"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxMessages       int           `yaml:"max_messages" mapstructure:"max_messages"`
}

// GitHubSourceConfig GitHub 连接器配置
type GitHubSourceConfig struct {
	Token        string `yaml:"token" mapstructure:"token"`
	MaxFileBytes int64  `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	MaxIssues    int    `yaml:"max_issues" mapstructure:"max_issues"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen        int           `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter   string  `yaml:"exporter" mapstructure:"exporter"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Port    int    `yaml:"port" mapstructure:"port"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// FeaturesConfig 功能开关配置
type FeaturesConfig struct {
	QueryRewrite QueryRewriteFeature `yaml:"query_rewrite" mapstructure:"query_rewrite"`
}

// QueryRewriteFeature 查询改写功能开关
type QueryRewriteFeature struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// Validate 校验配置组合是否合法。启动期调用，失败即拒绝启动。
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return fmt.Errorf("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens)
	}
	if c.Chunking.OverlapTokens < 0 {
		return fmt.Errorf("chunking.overlap_tokens must not be negative, got %d", c.Chunking.OverlapTokens)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return fmt.Errorf("chunking.overlap_tokens (%d) must be smaller than chunking.max_tokens (%d)",
			c.Chunking.OverlapTokens, c.Chunking.MaxTokens)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	switch c.Vector.Backend {
	case "milvus", "memory":
	default:
		return fmt.Errorf("vector.backend must be milvus or memory, got %q", c.Vector.Backend)
	}
	return nil
}
