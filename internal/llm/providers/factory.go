// Package providers selects the concrete llm.Provider implementation for
// a given configuration.
package providers

import (
	"fmt"
	"net/http"

	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/llm"
	"github.com/metastable-lab/roleplay/internal/llm/anthropic"
	openaillm "github.com/metastable-lab/roleplay/internal/llm/openai"
)

// Build constructs an llm.Provider based on cfg.Provider.
func Build(cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return openaillm.New(cfg.OpenAI, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.Anthropic, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
