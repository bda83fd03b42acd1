package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/negotium-ai/negotium/pkg/config"
	"github.com/negotium-ai/negotium/pkg/httpclient"
)

// ollamaEmbedMu serializes requests: Ollama's llama runner aborts on
// concurrent embedding calls against the same model.
var ollamaEmbedMu sync.Mutex

// OllamaEncoder implements Provider against a local Ollama server.
type OllamaEncoder struct {
	config     *config.EncoderProviderConfig
	httpClient *httpclient.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func NewOllamaEncoder(cfg *config.EncoderProviderConfig) (*OllamaEncoder, error) {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("ollama encoder: dimension must be positive")
	}
	return &OllamaEncoder{
		config:     cfg,
		httpClient: httpclient.New(httpclient.WithMaxRetries(cfg.MaxRetries)),
	}, nil
}

func (e *OllamaEncoder) Dimension() int { return e.config.Dimension }
func (e *OllamaEncoder) Close() error   { return nil }

func (e *OllamaEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama encoder: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama encoder: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama encoder: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama encoder: status %d: %s", resp.StatusCode, string(respBody))
	}

	var out ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("ollama encoder: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama encoder: api error: %s", out.Error)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama encoder: empty embedding returned")
	}
	return normalize(out.Embedding), nil
}

// EmbedBatch calls Embed sequentially; Ollama's embeddings endpoint has no
// native batch mode and concurrent calls are already serialized above.
func (e *OllamaEncoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("ollama encoder: batch item %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
