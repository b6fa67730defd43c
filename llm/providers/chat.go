package providers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/c360studio/ontomap/llm"
)

// chatRequest is the body of a POST to /chat/completions.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	Model   string         `json:"model"`
	Choices []chatChoice   `json:"choices"`
	Usage   llm.TokenUsage `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

func encodeChatRequest(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	if model == "" {
		return nil, errors.New("model name is required")
	}
	req := chatRequest{
		Model:       model,
		Messages:    make([]chatMessage, len(messages)),
		Temperature: temperature,
	}
	for i, m := range messages {
		req.Messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	return json.Marshal(req)
}

// decodeChatResponse reads the first choice. Gateways that report errors
// with a 200 status are turned into errors here.
func decodeChatResponse(body []byte, requested string) (*llm.Response, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse chat completion: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("chat completion error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	model := resp.Model
	if model == "" {
		model = requested
	}
	return &llm.Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        model,
		Usage:        resp.Usage,
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}
