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

// OpenAIProvider implements Provider against the Chat Completions API.
type OpenAIProvider struct {
	config     *config.LLMProviderConfig
	httpClient *httpclient.Client
}

type openAIFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIToolCallFunc `json:"function"`
}

type openAIToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAIResponseFormat struct {
	Type       string                 `json:"type"`
	JSONSchema map[string]interface{} `json:"json_schema,omitempty"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Tools          []openAITool          `json:"tools,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type openAIResponse struct {
	Choices []openAIChoice   `json:"choices"`
	Usage   openAIUsage      `json:"usage"`
	Error   *openAIErrorBody `json:"error,omitempty"`
}

func NewOpenAIProvider(cfg *config.LLMProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if cfg.Host == "" {
		cfg.Host = "https://api.openai.com"
	}
	return &OpenAIProvider{
		config:     cfg,
		httpClient: newHTTPClient(cfg, httpclient.ParseOpenAIHeaders),
	}, nil
}

func (p *OpenAIProvider) GetModelName() string { return p.config.Model }
func (p *OpenAIProvider) Close() error         { return nil }

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error) {
	req := p.buildRequest(messages, tools, nil)
	resp, err := p.do(ctx, req)
	if err != nil {
		return "", nil, 0, err
	}
	return extractOpenAI(resp)
}

func (p *OpenAIProvider) GenerateStructured(ctx context.Context, messages []Message, schema map[string]interface{}) (string, int, error) {
	augmented := append(append([]Message{}, messages...))
	if len(augmented) > 0 && augmented[0].Role == "system" {
		augmented[0].Content = augmented[0].Content + "\n\n" + schemaSystemPrompt(schema)
	} else {
		augmented = append([]Message{{Role: "system", Content: schemaSystemPrompt(schema)}}, augmented...)
	}
	format := &openAIResponseFormat{Type: "json_object"}
	req := p.buildRequest(augmented, nil, format)
	resp, err := p.do(ctx, req)
	if err != nil {
		return "", 0, err
	}
	text, _, tokens, err := extractOpenAI(resp)
	return text, tokens, err
}

func (p *OpenAIProvider) buildRequest(messages []Message, tools []ToolDefinition, format *openAIResponseFormat) openAIRequest {
	omsgs := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		om := openAIMessage{Role: msg.Role, Content: msg.Content, ToolCallID: msg.ToolCallID, Name: msg.Name}
		for _, tc := range msg.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			om.ToolCalls = append(om.ToolCalls, openAIToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openAIToolCallFunc{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		omsgs = append(omsgs, om)
	}

	req := openAIRequest{
		Model:          p.config.Model,
		Messages:       omsgs,
		Temperature:    p.config.Temperature,
		MaxTokens:      p.config.MaxTokens,
		ResponseFormat: format,
	}
	if len(tools) > 0 {
		req.Tools = make([]openAITool, len(tools))
		for i, t := range tools {
			req.Tools[i] = openAITool{
				Type: "function",
				Function: openAIFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
	}
	return req
}

func (p *OpenAIProvider) do(ctx context.Context, req openAIRequest) (*openAIResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(respBody))
	}

	var out openAIResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	return &out, nil
}

func extractOpenAI(resp *openAIResponse) (string, []ToolCall, int, error) {
	if resp.Error != nil {
		return "", nil, 0, fmt.Errorf("openai: api error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", nil, 0, fmt.Errorf("openai: no choices returned")
	}
	msg := resp.Choices[0].Message
	calls := make([]ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		var args map[string]interface{}
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args, RawArgs: tc.Function.Arguments})
	}
	return msg.Content, calls, resp.Usage.TotalTokens, nil
}
