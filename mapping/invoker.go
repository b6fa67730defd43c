package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360studio/ontomap/llm"
	"github.com/c360studio/ontomap/model"
	"github.com/c360studio/ontomap/ontology"
)

// payloadPreviewLimit truncates request previews in logs.
const payloadPreviewLimit = 2000

// promptSampleValues is how many sample values per candidate go to the model.
const promptSampleValues = 3

// Invocation is one batch sent to the external model.
type Invocation struct {
	SkillDoc   string
	Properties []ontology.PropertyItem
	Tables     []TableSummary
	Relations  []Relation
	Candidates []FieldCandidate
}

// Invoker asks an external model to judge a batch of properties.
type Invoker interface {
	// CheckCredentials returns an error when the invoker cannot authenticate.
	CheckCredentials() error
	// Invoke returns the model's judgments for the batch.
	Invoke(ctx context.Context, inv Invocation) ([]Judgment, error)
}

// Completer is the chat-completion call the model invoker depends on.
// *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// credentialChecker is implemented by clients that can verify credentials
// before any request is sent.
type credentialChecker interface {
	CheckCredentials(capability string) error
}

// ModelInvoker implements Invoker on top of an LLM chat-completion client.
type ModelInvoker struct {
	client      Completer
	capability  string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// InvokerOption configures a ModelInvoker.
type InvokerOption func(*ModelInvoker)

// WithCapability selects the model registry capability.
func WithCapability(capability string) InvokerOption {
	return func(m *ModelInvoker) {
		if capability != "" {
			m.capability = capability
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) InvokerOption {
	return func(m *ModelInvoker) {
		m.temperature = t
	}
}

// WithMaxTokens limits the response length. Zero uses the endpoint default.
func WithMaxTokens(n int) InvokerOption {
	return func(m *ModelInvoker) {
		m.maxTokens = n
	}
}

// WithInvokerLogger sets the logger.
func WithInvokerLogger(logger *slog.Logger) InvokerOption {
	return func(m *ModelInvoker) {
		m.logger = logger
	}
}

// NewModelInvoker creates an invoker using the matching capability at temperature 0.2.
func NewModelInvoker(client Completer, opts ...InvokerOption) *ModelInvoker {
	m := &ModelInvoker{
		client:      client,
		capability:  model.CapabilityMatching.String(),
		temperature: 0.2,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckCredentials verifies the client can authenticate for the capability.
func (m *ModelInvoker) CheckCredentials() error {
	if m.client == nil {
		return fmt.Errorf("no model client configured")
	}
	if cc, ok := m.client.(credentialChecker); ok {
		if err := cc.CheckCredentials(m.capability); err != nil {
			return fmt.Errorf("%w: %w", ErrMissingCredential, err)
		}
	}
	return nil
}

type payloadTerm struct {
	IRI       string `json:"iri"`
	Label     string `json:"label,omitempty"`
	LocalName string `json:"local_name,omitempty"`
}

type payloadProperty struct {
	IRI       string        `json:"iri"`
	Label     string        `json:"label,omitempty"`
	LocalName string        `json:"local_name,omitempty"`
	Domains   []payloadTerm `json:"domains"`
	Ranges    []payloadTerm `json:"ranges"`
}

type payloadCandidate struct {
	TableName    string `json:"table_name"`
	Field        string `json:"field"`
	SampleValues []any  `json:"sample_values"`
}

type invocationPayload struct {
	Properties []payloadProperty  `json:"properties"`
	Tables     []TableSummary     `json:"tables"`
	Relations  []Relation         `json:"relations"`
	Candidates []payloadCandidate `json:"candidates"`
}

func buildPayload(inv Invocation) invocationPayload {
	p := invocationPayload{
		Properties: make([]payloadProperty, 0, len(inv.Properties)),
		Tables:     inv.Tables,
		Relations:  inv.Relations,
		Candidates: make([]payloadCandidate, 0, len(inv.Candidates)),
	}
	if p.Tables == nil {
		p.Tables = []TableSummary{}
	}
	if p.Relations == nil {
		p.Relations = []Relation{}
	}
	for _, prop := range inv.Properties {
		p.Properties = append(p.Properties, payloadProperty{
			IRI:       prop.IRI,
			Label:     prop.Label,
			LocalName: prop.LocalName,
			Domains:   toPayloadTerms(prop.Domains),
			Ranges:    toPayloadTerms(prop.Ranges),
		})
	}
	for _, c := range inv.Candidates {
		samples := c.Samples
		if len(samples) > promptSampleValues {
			samples = samples[:promptSampleValues]
		}
		if samples == nil {
			samples = []any{}
		}
		p.Candidates = append(p.Candidates, payloadCandidate{
			TableName:    c.TableName,
			Field:        c.Field,
			SampleValues: samples,
		})
	}
	return p
}

func toPayloadTerms(items []ontology.IRIItem) []payloadTerm {
	terms := make([]payloadTerm, 0, len(items))
	for _, it := range items {
		terms = append(terms, payloadTerm{IRI: it.IRI, Label: it.Label, LocalName: it.LocalName})
	}
	return terms
}

// Invoke sends the batch and parses the judgments from the reply.
func (m *ModelInvoker) Invoke(ctx context.Context, inv Invocation) ([]Judgment, error) {
	body, err := json.Marshal(buildPayload(inv))
	if err != nil {
		return nil, fmt.Errorf("marshal model payload: %w", err)
	}

	m.logger.Info("Invoking model",
		"capability", m.capability,
		"properties", len(inv.Properties),
		"tables", len(inv.Tables),
		"candidates", len(inv.Candidates),
		"relations", len(inv.Relations))
	m.logger.Debug("Model payload preview", "payload", truncate(string(body), payloadPreviewLimit))

	temp := m.temperature
	resp, err := m.client.Complete(ctx, llm.Request{
		Capability: m.capability,
		Messages: []llm.Message{
			{Role: "system", Content: buildSystemPrompt(inv.SkillDoc)},
			{Role: "user", Content: string(body)},
		},
		Temperature: &temp,
		MaxTokens:   m.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("model completion: %w", err)
	}

	judgments, err := ParseJudgments(resp.Content)
	if err != nil {
		m.logger.Error("Model response could not be parsed",
			"model", resp.Model,
			"snippet", truncate(resp.Content, 500),
			"error", err)
		return nil, err
	}
	return judgments, nil
}

// ParseJudgments extracts the judgment list from model text. The text may
// hold a JSON object with a "matches" list or a bare list, optionally in a
// markdown code block.
func ParseJudgments(content string) ([]Judgment, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON found in model response")
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON in model response: %w", err)
	}

	items := parsed
	if obj, ok := parsed.(map[string]any); ok {
		matches, present := obj["matches"]
		if !present {
			matches = []any{}
		}
		items = matches
	}

	list, ok := items.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid model response format: matches is not a list")
	}

	judgments := make([]Judgment, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid model response format: match %d is not an object", i)
		}
		judgments = append(judgments, JudgmentFromMap(obj))
	}
	return judgments, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
