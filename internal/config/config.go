// Package config loads process configuration from the environment.
package config

// OpenAIConfig configures the primary (OpenAI-compatible) LLM vendor client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	LogPayloads bool
}

// AnthropicPromptCacheConfig controls opt-in prompt caching on the system
// prompt when the secondary vendor is Anthropic.
type AnthropicPromptCacheConfig struct {
	Enabled bool
	TTL     string // "5m" or "1h", passed through to the SDK cache-control block
}

// AnthropicConfig configures the secondary LLM vendor client.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	PromptCache AnthropicPromptCacheConfig
}

// LLMConfig selects which vendor client backs the Agent contract (C3).
type LLMConfig struct {
	Provider  string // "openai" (default) or "anthropic"
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	// CallTimeoutSeconds bounds a single LLM invocation.
	CallTimeoutSeconds int
	// ToolRetries is the retry budget on ToolArity/ToolParse.
	ToolRetries int
}

// EmbeddingConfig configures the embedder HTTP client.
type EmbeddingConfig struct {
	BaseURL    string
	Path       string
	Model      string
	Dimensions int
	APIKey     string
	APIHeader  string
	// Headers are sent verbatim on every request; the legacy
	// APIHeader/APIKey pair only applies when its header is absent here.
	Headers map[string]string
	Timeout int // seconds, default 30
}

// S3SSEConfig controls server-side encryption on PUT/COPY.
type S3SSEConfig struct {
	Mode     string // "", "sse-s3", "sse-kms"
	KMSKeyID string
}

// S3Config configures the object-store backend used for image rehosting.
type S3Config struct {
	Bucket                string
	Region                string
	Endpoint              string
	AccessKey             string
	SecretKey             string
	Prefix                string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
	PublicBaseURL         string
	PresignTTLSeconds     int // default 600
}

// DatabaseConfig configures the relational store (C10), reused as the DSN
// for the pgvector-backed vector store (C8) and adjacency-table graph store
// (C9) unless overridden.
type DatabaseConfig struct {
	DSN              string
	VectorDSN        string
	GraphDSN         string
	MaxConns         int32
	StatementTimeout int // seconds, default 60
}

// VectorConfig carries the reconciler's search tunables.
type VectorConfig struct {
	Dimensions      int
	SearchLimit     int     // DEFAULT_VECTOR_DB_SEARCH_LIMIT
	SearchThreshold float64 // DEFAULT_VECTOR_DB_SEARCH_TRESHOLD
}

// GraphConfig carries the graph memory's similarity thresholds.
type GraphConfig struct {
	SearchLimit    int     // DEFAULT_GRAPH_DB_SEARCH_LIMIT
	EntityMergeSim float64 // sigma_merge
	TextSearchSim  float64 // sigma_text
}

// CreditConfig carries the ledger's fixed constants.
type CreditConfig struct {
	BalanceCap        int64
	ReferralCodePrice int64
	FreeClaimInterval int // seconds, default 86400
}

// Config is the fully resolved process configuration.
type Config struct {
	LogLevel string
	LogPath  string

	Databases DatabaseConfig
	Vector    VectorConfig
	Graph     GraphConfig
	Credit    CreditConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	S3        S3Config

	ListenAddr string
}
