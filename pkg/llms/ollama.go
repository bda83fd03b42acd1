package llms

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

// OllamaProvider implements Provider against a local Ollama server's
// OpenAI-compatible chat endpoint.
type OllamaProvider struct {
	config     *config.LLMProviderConfig
	httpClient *httpclient.Client
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaToolCallFunction `json:"function"`
}

type ollamaToolCallFunction struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

func NewOllamaProvider(cfg *config.LLMProviderConfig) (*OllamaProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	return &OllamaProvider{
		config:     cfg,
		httpClient: newHTTPClient(cfg, nil),
	}, nil
}

func (p *OllamaProvider) GetModelName() string { return p.config.Model }
func (p *OllamaProvider) Close() error         { return nil }

func (p *OllamaProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error) {
	req := p.buildRequest(messages, tools, nil)
	resp, err := p.do(ctx, req)
	if err != nil {
		return "", nil, 0, err
	}
	calls := make([]ToolCall, 0, len(resp.Message.ToolCalls))
	for i, tc := range resp.Message.ToolCalls {
		calls = append(calls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp.Message.Content, calls, resp.PromptEvalCount + resp.EvalCount, nil
}

func (p *OllamaProvider) GenerateStructured(ctx context.Context, messages []Message, schema map[string]interface{}) (string, int, error) {
	var format json.RawMessage
	if schema != nil {
		if encoded, err := json.Marshal(schema); err == nil {
			format = encoded
		}
	}
	req := p.buildRequest(messages, nil, format)
	resp, err := p.do(ctx, req)
	if err != nil {
		return "", 0, err
	}
	return resp.Message.Content, resp.PromptEvalCount + resp.EvalCount, nil
}

func (p *OllamaProvider) buildRequest(messages []Message, tools []ToolDefinition, format json.RawMessage) ollamaRequest {
	omsgs := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		om := ollamaMessage{Role: msg.Role, Content: msg.Content}
		if msg.Role == "tool" {
			om.ToolName = msg.Name
		}
		for _, tc := range msg.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
				Function: ollamaToolCallFunction{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		omsgs = append(omsgs, om)
	}

	req := ollamaRequest{
		Model:    p.config.Model,
		Messages: omsgs,
		Stream:   false,
		Format:   format,
		Options:  ollamaOptions{Temperature: p.config.Temperature},
	}
	if len(tools) > 0 {
		req.Tools = make([]ollamaTool, len(tools))
		for i, t := range tools {
			req.Tools[i] = ollamaTool{
				Type: "function",
				Function: ollamaToolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
	}
	return req
}

func (p *OllamaProvider) do(ctx context.Context, req ollamaRequest) (*ollamaResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(respBody))
	}

	var out ollamaResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama: api error: %s", out.Error)
	}
	return &out, nil
}
