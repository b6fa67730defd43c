// Package providers registers the chat-completion wire protocols the llm
// client can speak. All of them use the OpenAI chat completions format and
// differ only in default URL and credential handling.
package providers

import (
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/ontomap/llm"
)

// ChatProvider speaks the OpenAI chat completions protocol.
type ChatProvider struct {
	name        string
	defaultURL  string
	keyEnv      string
	requiresKey bool
}

var (
	// OpenAI is the hosted OpenAI API, or any gateway such as OpenRouter.
	OpenAI = &ChatProvider{
		name:        "openai",
		defaultURL:  "https://api.openai.com/v1",
		keyEnv:      "OPENAI_API_KEY",
		requiresKey: true,
	}

	// DashScope is Alibaba Cloud's compatible-mode endpoint serving Qwen models.
	DashScope = &ChatProvider{
		name:        "dashscope",
		defaultURL:  "https://dashscope.aliyuncs.com/compatible-mode/v1",
		keyEnv:      "QWEN_API_KEY",
		requiresKey: true,
	}

	// Ollama is a local server; vLLM and llama.cpp servers work the same way.
	Ollama = &ChatProvider{
		name:       "ollama",
		defaultURL: "http://localhost:11434/v1",
		keyEnv:     "OPENAI_API_KEY",
	}
)

func init() {
	llm.RegisterProvider(OpenAI)
	llm.RegisterProvider(DashScope)
	llm.RegisterProvider(Ollama)
}

// Name returns the provider identifier.
func (p *ChatProvider) Name() string {
	return p.name
}

// BuildURL appends /chat/completions to the base URL unless already present.
func (p *ChatProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = p.defaultURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

// APIKeyEnv returns the default credential variable.
func (p *ChatProvider) APIKeyEnv() string {
	return p.keyEnv
}

// RequiresAPIKey reports whether requests fail without a credential.
func (p *ChatProvider) RequiresAPIKey() bool {
	return p.requiresKey
}

// SetHeaders sets bearer auth and, for OpenRouter, the attribution headers.
func (p *ChatProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}

// BuildRequestBody encodes a chat completion request.
func (p *ChatProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return encodeChatRequest(model, messages, temperature, maxTokens)
}

// ParseResponse decodes a chat completion reply.
func (p *ChatProvider) ParseResponse(body []byte, model string) (*llm.Response, error) {
	return decodeChatResponse(body, model)
}
