package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/negotium-ai/negotium/pkg/config"
	"github.com/negotium-ai/negotium/pkg/httpclient"
)

// OpenAIEncoder implements Provider against the OpenAI embeddings API.
type OpenAIEncoder struct {
	config     *config.EncoderProviderConfig
	httpClient *httpclient.Client
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedDatum struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type openAIEmbedError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type openAIEmbedResponse struct {
	Data  []openAIEmbedDatum `json:"data"`
	Error *openAIEmbedError  `json:"error,omitempty"`
}

func NewOpenAIEncoder(cfg *config.EncoderProviderConfig) (*OpenAIEncoder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai encoder: api key is required")
	}
	if cfg.Host == "" {
		cfg.Host = "https://api.openai.com"
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("openai encoder: dimension must be positive")
	}
	return &OpenAIEncoder{
		config:     cfg,
		httpClient: httpclient.New(httpclient.WithMaxRetries(cfg.MaxRetries), httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders)),
	}, nil
}

func (e *OpenAIEncoder) Dimension() int { return e.config.Dimension }
func (e *OpenAIEncoder) Close() error   { return nil }

func (e *OpenAIEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in config.BatchSize chunks and re-sorts each
// chunk's results by response index before concatenating, preserving
// input order regardless of the order the API returns embeddings in.
func (e *OpenAIEncoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	batchSize := e.config.BatchSize
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		resp, err := e.do(ctx, batch)
		if err != nil {
			return nil, err
		}

		embeddings := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index >= 0 && d.Index < len(embeddings) {
				embeddings[d.Index] = normalize(d.Embedding)
			}
		}
		results = append(results, embeddings...)
	}
	return results, nil
}

func (e *OpenAIEncoder) do(ctx context.Context, batch []string) (*openAIEmbedResponse, error) {
	body, err := json.Marshal(openAIEmbedRequest{Model: e.config.Model, Input: batch})
	if err != nil {
		return nil, fmt.Errorf("openai encoder: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai encoder: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai encoder: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai encoder: status %d: %s", resp.StatusCode, string(respBody))
	}

	var out openAIEmbedResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("openai encoder: decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("openai encoder: api error: %s", out.Error.Message)
	}
	return &out, nil
}
