package embedding

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/rpcerr"
)

// Client is the process-wide embedder handle:
// stateless after init, injected by constructor everywhere it is consumed.
type Client struct {
	cfg config.EmbeddingConfig
}

// NewClient returns a Client for the configured OpenAI-compatible
// embeddings endpoint (dim 1024, Qwen/Qwen3-Embedding-0.6B by default).
func NewClient(cfg config.EmbeddingConfig) *Client {
	return &Client{cfg: cfg}
}

// Ready reports whether the client has enough configuration to serve.
func (c *Client) Ready() bool {
	return c.cfg.BaseURL != "" && c.cfg.Model != ""
}

// Embed returns one vector per input, retrying Timeout/Transient failures
// up to 2 times with jitter.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(200+rand.Intn(600)) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		out, err := EmbedText(ctx, c.cfg, inputs)
		if err == nil {
			return out, nil
		}
		lastErr = classifyEmbed(err)
		if !rpcerr.Retryable(lastErr) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func classifyEmbed(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return rpcerr.New(rpcerr.Timeout, "embedding.Embed", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return rpcerr.New(rpcerr.Timeout, "embedding.Embed", err)
		}
		return rpcerr.New(rpcerr.Transient, "embedding.Embed", err)
	}
	return err
}
