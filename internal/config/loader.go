package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load resolves configuration in three layers: built-in defaults, an
// optional YAML file (CONFIG_PATH, falling back to ./config.yaml), then
// environment variables, optionally overlaid by a .env file in the working
// directory. Environment always wins; the file covers the tunables an
// operator versions alongside the deployment.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := defaults()
	path := firstNonEmpty(os.Getenv("CONFIG_PATH"), "config.yaml")
	if _, err := os.Stat(path); err == nil {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	var cfg Config
	cfg.Databases.MaxConns = 5
	cfg.Databases.StatementTimeout = 60

	cfg.Vector.Dimensions = 1024
	cfg.Vector.SearchLimit = 100
	cfg.Vector.SearchThreshold = 0.7

	cfg.Graph.SearchLimit = 100
	cfg.Graph.EntityMergeSim = 0.9
	cfg.Graph.TextSearchSim = 0.7

	cfg.Credit.BalanceCap = 500
	cfg.Credit.ReferralCodePrice = 10
	cfg.Credit.FreeClaimInterval = 86400

	cfg.Embedding.Path = "/embeddings"
	cfg.Embedding.Model = "Qwen/Qwen3-Embedding-0.6B"
	cfg.Embedding.Dimensions = 1024
	cfg.Embedding.APIHeader = "Authorization"
	cfg.Embedding.Timeout = 30

	cfg.LLM.Provider = "openai"
	cfg.LLM.CallTimeoutSeconds = 3600
	cfg.LLM.ToolRetries = 1
	cfg.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Anthropic.PromptCache.TTL = "5m"

	cfg.S3.Region = "us-east-1"
	cfg.S3.PresignTTLSeconds = 600
	return cfg
}

// applyEnv overrides cfg with any environment variable that is set;
// explicit field assignment, no reflection-based binding.
func applyEnv(cfg *Config) {
	envStr(&cfg.LogLevel, "LOG_LEVEL")
	envStr(&cfg.LogPath, "LOG_PATH")
	envStr(&cfg.ListenAddr, "LISTEN_ADDR")

	envStr(&cfg.Databases.DSN, "DATABASE_URL", "POSTGRES_DSN")
	cfg.Databases.VectorDSN = firstNonEmpty(os.Getenv("VECTOR_DSN"), cfg.Databases.VectorDSN, cfg.Databases.DSN)
	cfg.Databases.GraphDSN = firstNonEmpty(os.Getenv("GRAPH_DSN"), cfg.Databases.GraphDSN, cfg.Databases.DSN)
	cfg.Databases.MaxConns = int32(envInt("DB_MAX_CONNS", int(cfg.Databases.MaxConns)))
	cfg.Databases.StatementTimeout = envInt("DB_STATEMENT_TIMEOUT_SECONDS", cfg.Databases.StatementTimeout)

	cfg.Vector.Dimensions = envInt("VECTOR_DIMENSIONS", cfg.Vector.Dimensions)
	cfg.Vector.SearchLimit = envInt("VECTOR_SEARCH_LIMIT", cfg.Vector.SearchLimit)
	cfg.Vector.SearchThreshold = envFloat("VECTOR_SEARCH_THRESHOLD", cfg.Vector.SearchThreshold)

	cfg.Graph.SearchLimit = envInt("GRAPH_SEARCH_LIMIT", cfg.Graph.SearchLimit)
	cfg.Graph.EntityMergeSim = envFloat("GRAPH_ENTITY_MERGE_SIMILARITY", cfg.Graph.EntityMergeSim)
	cfg.Graph.TextSearchSim = envFloat("GRAPH_TEXT_SEARCH_SIMILARITY", cfg.Graph.TextSearchSim)

	cfg.Credit.BalanceCap = int64(envInt("BALANCE_CAP", int(cfg.Credit.BalanceCap)))
	cfg.Credit.ReferralCodePrice = int64(envInt("REFERRAL_CODE_PRICE", int(cfg.Credit.ReferralCodePrice)))
	cfg.Credit.FreeClaimInterval = envInt("FREE_CLAIM_INTERVAL_SECONDS", cfg.Credit.FreeClaimInterval)

	envStr(&cfg.Embedding.BaseURL, "EMBED_BASE_URL")
	envStr(&cfg.Embedding.Path, "EMBED_PATH")
	envStr(&cfg.Embedding.Model, "EMBED_MODEL")
	cfg.Embedding.Dimensions = envInt("EMBED_DIMENSIONS", cfg.Embedding.Dimensions)
	envStr(&cfg.Embedding.APIKey, "EMBED_API_KEY")
	envStr(&cfg.Embedding.APIHeader, "EMBED_API_HEADER")
	cfg.Embedding.Timeout = envInt("EMBED_TIMEOUT_SECONDS", cfg.Embedding.Timeout)

	envStr(&cfg.LLM.Provider, "LLM_PROVIDER")
	cfg.LLM.CallTimeoutSeconds = envInt("LLM_CALL_TIMEOUT_SECONDS", cfg.LLM.CallTimeoutSeconds)
	cfg.LLM.ToolRetries = envInt("LLM_TOOL_RETRIES", cfg.LLM.ToolRetries)
	envStr(&cfg.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	envStr(&cfg.LLM.OpenAI.BaseURL, "OPENAI_BASE_URL")
	envStr(&cfg.LLM.OpenAI.Model, "OPENAI_MODEL")
	cfg.LLM.OpenAI.LogPayloads = envBool("LOG_PAYLOADS", cfg.LLM.OpenAI.LogPayloads)
	envStr(&cfg.LLM.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	envStr(&cfg.LLM.Anthropic.BaseURL, "ANTHROPIC_BASE_URL")
	envStr(&cfg.LLM.Anthropic.Model, "ANTHROPIC_MODEL")
	cfg.LLM.Anthropic.PromptCache.Enabled = envBool("ANTHROPIC_PROMPT_CACHE_ENABLED", cfg.LLM.Anthropic.PromptCache.Enabled)
	envStr(&cfg.LLM.Anthropic.PromptCache.TTL, "ANTHROPIC_PROMPT_CACHE_TTL")

	envStr(&cfg.S3.Bucket, "S3_BUCKET")
	envStr(&cfg.S3.Region, "S3_REGION")
	envStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	envStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	envStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	envStr(&cfg.S3.Prefix, "S3_PREFIX")
	cfg.S3.UsePathStyle = envBool("S3_USE_PATH_STYLE", cfg.S3.UsePathStyle)
	cfg.S3.TLSInsecureSkipVerify = envBool("S3_TLS_INSECURE_SKIP_VERIFY", cfg.S3.TLSInsecureSkipVerify)
	envStr(&cfg.S3.PublicBaseURL, "S3_PUBLIC_BASE_URL")
	cfg.S3.PresignTTLSeconds = envInt("S3_PRESIGN_TTL_SECONDS", cfg.S3.PresignTTLSeconds)
	if v := strings.TrimSpace(os.Getenv("S3_SSE_MODE")); v != "" {
		cfg.S3.SSE.Mode = v
		cfg.S3.SSE.KMSKeyID = strings.TrimSpace(os.Getenv("S3_SSE_KMS_KEY_ID"))
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// envStr sets dst to the first non-empty variable among keys, if any.
func envStr(dst *string, keys ...string) {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
			return
		}
	}
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	return def
}
