package llms

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/negotium-ai/negotium/pkg/config"
	"github.com/negotium-ai/negotium/pkg/httpclient"
)

// newHTTPClient builds the shared retry/backoff client every provider uses,
// configured from the provider's section of config.LLMProviderConfig.
func newHTTPClient(cfg *config.LLMProviderConfig, parser httpclient.HeaderParser) *httpclient.Client {
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(parser),
	)
}

// schemaSystemPrompt renders a schema-constrained instruction block appended
// to a provider's system/instructions field, used by the OpenAI and
// Anthropic providers' GenerateStructured (Ollama uses its format field).
func schemaSystemPrompt(schema map[string]interface{}) string {
	if schema == nil {
		return ""
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`Respond with valid JSON matching exactly this schema, and nothing else:

%s

Output only the JSON object. No prose, no code fences.`, string(schemaJSON))
}
