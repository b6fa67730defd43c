// Package llm sends chat completions to the model endpoints named in a
// model.Registry. Each endpoint is retried with backoff, then the next
// endpoint in the capability's chain is tried.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/c360studio/ontomap/model"
	"github.com/c360studio/semstreams/pkg/retry"
	"github.com/google/uuid"
)

// maxResponseSize limits the response body read from an endpoint.
const maxResponseSize = 10 * 1024 * 1024

// Client completes chat requests against the registry's endpoints.
type Client struct {
	registry   *model.Registry
	httpClient *http.Client
	retry      retry.Config
	logger     *slog.Logger
	getenv     func(string) string
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// Request defines a completion request.
type Request struct {
	// Capability is resolved by the registry to an ordered endpoint chain.
	Capability string

	Messages []Message

	// Temperature is nil for the endpoint default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the endpoint default.
	MaxTokens int
}

// TokenUsage is the token accounting reported by the endpoint.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the completion result.
type Response struct {
	// RequestID identifies this call in logs.
	RequestID string

	Content string

	// Model is the model name the endpoint reported.
	Model string

	// Endpoint is the registry name of the endpoint that answered.
	Endpoint string

	Usage        TokenUsage
	FinishReason string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the per-endpoint retry policy.
func WithRetryConfig(cfg retry.Config) ClientOption {
	return func(client *Client) {
		client.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithEnvLookup replaces os.Getenv for API key resolution.
func WithEnvLookup(getenv func(string) string) ClientOption {
	return func(client *Client) {
		client.getenv = getenv
	}
}

// DefaultRetryConfig is three attempts per endpoint, one to ten seconds apart.
func DefaultRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// NewClient creates a client over the given registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry: registry,
		retry:    DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second,
		},
		logger: slog.Default(),
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// resolveCapability defaults unknown capability names to matching.
func resolveCapability(s string) model.Capability {
	if capVal := model.ParseCapability(s); capVal != "" {
		return capVal
	}
	return model.CapabilityMatching
}

// apiKey returns the endpoint's credential, read from the endpoint's own
// variable or else the provider's default one.
func (c *Client) apiKey(ep *model.EndpointConfig, provider Provider) string {
	env := ep.APIKeyEnv
	if env == "" {
		env = provider.APIKeyEnv()
	}
	if env == "" {
		return ""
	}
	return c.getenv(env)
}

// CheckCredentials reports whether at least one endpoint serving the
// capability can authenticate. It sends no request.
func (c *Client) CheckCredentials(capability string) error {
	configured := 0
	for _, name := range c.registry.GetFallbackChain(resolveCapability(capability)) {
		ep := c.registry.GetEndpoint(name)
		if ep == nil {
			continue
		}
		provider := GetProvider(ep.Provider)
		if provider == nil {
			continue
		}
		configured++
		if !provider.RequiresAPIKey() || c.apiKey(ep, provider) != "" {
			return nil
		}
	}

	if configured == 0 {
		return fmt.Errorf("no models configured for capability %s", capability)
	}
	return fmt.Errorf("%w for capability %s", ErrMissingAPIKey, capability)
}

// Complete sends the request down the capability's endpoint chain and
// returns the first successful reply. A fatal error or a cancelled context
// ends the walk early.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Capability == "" {
		return nil, errors.New("capability is required")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	requestID := uuid.New().String()
	startedAt := time.Now()
	logger := c.logger.With("request_id", requestID, "capability", req.Capability)

	chain := c.registry.GetAvailableFallbackChain(resolveCapability(req.Capability))
	if len(chain) == 0 {
		return nil, fmt.Errorf("no models configured for capability %s", req.Capability)
	}

	var lastErr error
	var failed []string
	for _, name := range chain {
		ep := c.registry.GetEndpoint(name)
		if ep == nil {
			logger.Debug("No endpoint for model, skipping", "model", name)
			continue
		}
		if !c.registry.IsEndpointAvailable(name) {
			logger.Debug("Endpoint circuit open, skipping", "model", name)
			continue
		}

		resp, attempts, err := c.completeWithRetry(ctx, name, ep, req)
		if err == nil {
			resp.RequestID = requestID
			logger.Debug("Completion finished",
				"endpoint", name,
				"model", resp.Model,
				"provider", ep.Provider,
				"attempts", attempts,
				"failed_endpoints", failed,
				"duration_ms", time.Since(startedAt).Milliseconds(),
				"total_tokens", resp.Usage.TotalTokens)
			return resp, nil
		}

		lastErr = err
		failed = append(failed, name)
		if IsFatal(err) || ctx.Err() != nil {
			logger.Warn("Endpoint failed, not trying fallbacks", "endpoint", name, "error", err)
			return nil, err
		}
		logger.Warn("Endpoint failed, trying fallback", "endpoint", name, "provider", ep.Provider, "error", err)
	}

	if lastErr == nil {
		return nil, fmt.Errorf("no usable endpoint for capability %s", req.Capability)
	}
	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// completeWithRetry calls one endpoint under the retry policy and keeps its
// circuit breaker informed.
func (c *Client) completeWithRetry(ctx context.Context, name string, ep *model.EndpointConfig, req Request) (*Response, int, error) {
	attempts := 0
	resp, err := retry.DoWithResult(ctx, c.retry, func() (*Response, error) {
		attempts++
		resp, err := c.send(ctx, name, ep, req)
		if err != nil && !IsFatal(err) {
			c.logger.Debug("Endpoint attempt failed", "endpoint", name, "attempt", attempts, "error", err)
		}
		return resp, err
	})
	if err != nil {
		// Request-side problems say nothing about endpoint health.
		if !IsFatal(err) && ctx.Err() == nil {
			c.registry.MarkEndpointFailure(name)
		}
		return nil, attempts, err
	}
	c.registry.MarkEndpointSuccess(name)
	resp.Endpoint = name
	return resp, attempts, nil
}

// send performs a single HTTP exchange with the endpoint.
func (c *Client) send(ctx context.Context, name string, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, fatal(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	apiKey := c.apiKey(ep, provider)
	if apiKey == "" && provider.RequiresAPIKey() {
		return nil, fatal(fmt.Errorf("%w for endpoint %s", ErrMissingAPIKey, name))
	}

	body, err := provider.BuildRequestBody(ep.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, fatal(fmt.Errorf("build request body: %w", err))
	}

	url := provider.BuildURL(ep.URL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fatal(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq, apiKey)

	c.logger.Debug("Sending completion request",
		"endpoint", name,
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"messages", len(req.Messages))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, newStatusError(name, httpResp.StatusCode, respBody)
	}

	resp, err := provider.ParseResponse(respBody, ep.Model)
	if err != nil {
		// A malformed body will not improve on retry.
		return nil, fatal(err)
	}
	return resp, nil
}
