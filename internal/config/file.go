package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of the deployment config file. It covers the
// operator-versioned tunables; secrets stay in the environment.
type fileConfig struct {
	LogLevel   string `yaml:"log_level"`
	LogPath    string `yaml:"log_path"`
	ListenAddr string `yaml:"listen_addr"`

	Database struct {
		DSN              string `yaml:"dsn"`
		VectorDSN        string `yaml:"vector_dsn"`
		GraphDSN         string `yaml:"graph_dsn"`
		MaxConns         int    `yaml:"max_conns"`
		StatementTimeout int    `yaml:"statement_timeout_seconds"`
	} `yaml:"database"`

	Vector struct {
		Dimensions      int     `yaml:"dimensions"`
		SearchLimit     int     `yaml:"search_limit"`
		SearchThreshold float64 `yaml:"search_threshold"`
	} `yaml:"vector"`

	Graph struct {
		SearchLimit    int     `yaml:"search_limit"`
		EntityMergeSim float64 `yaml:"entity_merge_similarity"`
		TextSearchSim  float64 `yaml:"text_search_similarity"`
	} `yaml:"graph"`

	Credit struct {
		BalanceCap        int64 `yaml:"balance_cap"`
		ReferralCodePrice int64 `yaml:"referral_code_price"`
		FreeClaimInterval int   `yaml:"free_claim_interval_seconds"`
	} `yaml:"credit"`

	Embedding struct {
		BaseURL    string `yaml:"base_url"`
		Path       string `yaml:"path"`
		Model      string `yaml:"model"`
		Dimensions int    `yaml:"dimensions"`
		Timeout    int    `yaml:"timeout_seconds"`
	} `yaml:"embedding"`

	LLM struct {
		Provider           string `yaml:"provider"`
		CallTimeoutSeconds int    `yaml:"call_timeout_seconds"`
		ToolRetries        int    `yaml:"tool_retries"`
		OpenAIBaseURL      string `yaml:"openai_base_url"`
		OpenAIModel        string `yaml:"openai_model"`
		AnthropicBaseURL   string `yaml:"anthropic_base_url"`
		AnthropicModel     string `yaml:"anthropic_model"`
	} `yaml:"llm"`

	S3 struct {
		Bucket        string `yaml:"bucket"`
		Region        string `yaml:"region"`
		Endpoint      string `yaml:"endpoint"`
		Prefix        string `yaml:"prefix"`
		UsePathStyle  bool   `yaml:"use_path_style"`
		PublicBaseURL string `yaml:"public_base_url"`
		PresignTTL    int    `yaml:"presign_ttl_seconds"`
	} `yaml:"s3"`
}

// applyFile overlays the YAML file at path onto cfg; zero values in the file
// leave the current value untouched.
func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}

	setStr(&cfg.LogLevel, fc.LogLevel)
	setStr(&cfg.LogPath, fc.LogPath)
	setStr(&cfg.ListenAddr, fc.ListenAddr)

	setStr(&cfg.Databases.DSN, fc.Database.DSN)
	setStr(&cfg.Databases.VectorDSN, fc.Database.VectorDSN)
	setStr(&cfg.Databases.GraphDSN, fc.Database.GraphDSN)
	if fc.Database.MaxConns > 0 {
		cfg.Databases.MaxConns = int32(fc.Database.MaxConns)
	}
	setInt(&cfg.Databases.StatementTimeout, fc.Database.StatementTimeout)

	setInt(&cfg.Vector.Dimensions, fc.Vector.Dimensions)
	setInt(&cfg.Vector.SearchLimit, fc.Vector.SearchLimit)
	setFloat(&cfg.Vector.SearchThreshold, fc.Vector.SearchThreshold)

	setInt(&cfg.Graph.SearchLimit, fc.Graph.SearchLimit)
	setFloat(&cfg.Graph.EntityMergeSim, fc.Graph.EntityMergeSim)
	setFloat(&cfg.Graph.TextSearchSim, fc.Graph.TextSearchSim)

	if fc.Credit.BalanceCap > 0 {
		cfg.Credit.BalanceCap = fc.Credit.BalanceCap
	}
	if fc.Credit.ReferralCodePrice > 0 {
		cfg.Credit.ReferralCodePrice = fc.Credit.ReferralCodePrice
	}
	setInt(&cfg.Credit.FreeClaimInterval, fc.Credit.FreeClaimInterval)

	setStr(&cfg.Embedding.BaseURL, fc.Embedding.BaseURL)
	setStr(&cfg.Embedding.Path, fc.Embedding.Path)
	setStr(&cfg.Embedding.Model, fc.Embedding.Model)
	setInt(&cfg.Embedding.Dimensions, fc.Embedding.Dimensions)
	setInt(&cfg.Embedding.Timeout, fc.Embedding.Timeout)

	setStr(&cfg.LLM.Provider, fc.LLM.Provider)
	setInt(&cfg.LLM.CallTimeoutSeconds, fc.LLM.CallTimeoutSeconds)
	setInt(&cfg.LLM.ToolRetries, fc.LLM.ToolRetries)
	setStr(&cfg.LLM.OpenAI.BaseURL, fc.LLM.OpenAIBaseURL)
	setStr(&cfg.LLM.OpenAI.Model, fc.LLM.OpenAIModel)
	setStr(&cfg.LLM.Anthropic.BaseURL, fc.LLM.AnthropicBaseURL)
	setStr(&cfg.LLM.Anthropic.Model, fc.LLM.AnthropicModel)

	setStr(&cfg.S3.Bucket, fc.S3.Bucket)
	setStr(&cfg.S3.Region, fc.S3.Region)
	setStr(&cfg.S3.Endpoint, fc.S3.Endpoint)
	setStr(&cfg.S3.Prefix, fc.S3.Prefix)
	if fc.S3.UsePathStyle {
		cfg.S3.UsePathStyle = true
	}
	setStr(&cfg.S3.PublicBaseURL, fc.S3.PublicBaseURL)
	setInt(&cfg.S3.PresignTTLSeconds, fc.S3.PresignTTL)
	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}
