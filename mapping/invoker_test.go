package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/ontomap/llm"
	_ "github.com/c360studio/ontomap/llm/providers"
	"github.com/c360studio/ontomap/llm/testutil"
	"github.com/c360studio/ontomap/model"
	"github.com/c360studio/ontomap/ontology"
	"github.com/c360studio/semstreams/metric"
	"github.com/c360studio/semstreams/pkg/retry"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelInvoker_Invoke(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{{
			Content: "```json\n{\"matches\": [{\"property_iri\": \"http://ex.org/email\", \"table_name\": \"users\", \"field\": \"email\", \"confidence\": 0.92}]}\n```",
			Model:   "test-model",
		}},
	}
	inv := NewModelInvoker(mock, WithMaxTokens(512))

	tables := testTables()
	judgments, err := inv.Invoke(context.Background(), Invocation{
		SkillDoc:   "# r2rml\nOnly map exact matches.",
		Properties: testProperties()[:1],
		Tables:     SummarizeTables(tables),
		Relations:  InferRelations(tables),
		Candidates: BuildCandidates(tables),
	})
	require.NoError(t, err)
	require.Len(t, judgments, 1)
	assert.Equal(t, "http://ex.org/email", judgments[0].PropertyIRI)

	requests := mock.Requests()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, model.CapabilityMatching.String(), req.Capability)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.2, *req.Temperature)
	assert.Equal(t, 512, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "Only map exact matches.")
	assert.Contains(t, req.Messages[0].Content, "execute the skill document strictly")

	var payload struct {
		Properties []map[string]any `json:"properties"`
		Tables     []map[string]any `json:"tables"`
		Relations  []map[string]any `json:"relations"`
		Candidates []struct {
			TableName    string `json:"table_name"`
			Field        string `json:"field"`
			SampleValues []any  `json:"sample_values"`
		} `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal([]byte(req.Messages[1].Content), &payload))
	assert.Len(t, payload.Properties, 1)
	assert.Len(t, payload.Tables, 2)
	assert.Len(t, payload.Relations, 1)
	require.Len(t, payload.Candidates, 8)
	assert.Len(t, payload.Candidates[2].SampleValues, 3)
}

func TestModelInvoker_DefaultSkillDoc(t *testing.T) {
	prompt := buildSystemPrompt("  ")
	assert.Contains(t, prompt, `"matches"`)
	assert.Contains(t, prompt, "Follow this skill description:")
}

func TestModelInvoker_Errors(t *testing.T) {
	t.Run("client error", func(t *testing.T) {
		inv := NewModelInvoker(&testutil.MockLLMClient{Err: errors.New("boom")})
		_, err := inv.Invoke(context.Background(), Invocation{})
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("unparseable reply", func(t *testing.T) {
		inv := NewModelInvoker(&testutil.MockLLMClient{Responses: []*llm.Response{{Content: "no idea"}}})
		_, err := inv.Invoke(context.Background(), Invocation{})
		assert.Error(t, err)
	})

	t.Run("credentials", func(t *testing.T) {
		inv := NewModelInvoker(&testutil.MockLLMClient{CredentialErr: errors.New("QWEN_API_KEY not set")})
		err := inv.CheckCredentials()
		assert.ErrorIs(t, err, ErrMissingCredential)

		assert.Error(t, NewModelInvoker(nil).CheckCredentials())
	})
}

// chatServer answers every request with content in the OpenAI chat format.
func chatServer(t *testing.T, status int, content string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "qwen-test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testRegistry(url string) *model.Registry {
	return model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityMatching: {Preferred: []string{"qwen-test"}},
		},
		map[string]*model.EndpointConfig{
			"qwen-test": {Provider: "openai", URL: url, Model: "qwen-test", APIKeyEnv: "TEST_QWEN_KEY"},
		},
	)
}

func TestEngine_ThroughLLMClient(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, http.StatusOK, `{"matches": [{"property_iri": "http://ex.org/email", "table_name": "users", "field": "email", "confidence": 88}]}`, &calls)

	client := llm.NewClient(testRegistry(srv.URL),
		llm.WithEnvLookup(func(string) string { return "secret" }),
		llm.WithRetryConfig(retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	)

	metricsRegistry := metric.NewMetricsRegistry()
	metrics, err := NewMetrics(metricsRegistry)
	require.NoError(t, err)

	engine, sink := newTestEngine(WithInvoker(NewModelInvoker(client)), WithMetrics(metrics))
	props := []ontology.PropertyItem{testProperties()[0]}

	results, err := engine.MatchProperties(context.Background(), props, testTables(), ModeLLM, DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeAccepted, results[0].Outcome)
	assert.Equal(t, 0.88, *results[0].Score)
	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, sink.Records(), 1)

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.results.WithLabelValues("llm", "accepted")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.batches.WithLabelValues("ok")))
}

func TestEngine_ThroughLLMClient_MissingKey(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, http.StatusOK, `{"matches": []}`, &calls)

	client := llm.NewClient(testRegistry(srv.URL), llm.WithEnvLookup(func(string) string { return "" }))
	engine, sink := newTestEngine(WithInvoker(NewModelInvoker(client)))

	_, err := engine.MatchProperties(context.Background(), testProperties(), testTables(), ModeLLM, DefaultThreshold)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Equal(t, int32(0), calls.Load(), "fails before any request")
	assert.Len(t, sink.Records(), len(testProperties()))
}

func TestEngine_ThroughLLMClient_MalformedReply(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, http.StatusOK, "sorry, I cannot help", &calls)

	client := llm.NewClient(testRegistry(srv.URL), llm.WithEnvLookup(func(string) string { return "secret" }))
	engine, _ := newTestEngine(WithInvoker(NewModelInvoker(client)))

	_, err := engine.MatchProperties(context.Background(), testProperties(), testTables(), ModeLLM, DefaultThreshold)
	require.Error(t, err)
	assert.True(t, IsTransportFailure(err))
}

func TestNewMetrics_NilRegistry(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)
	// nil metrics are a no-op
	m.recordResult(ModeHeuristic, OutcomeAccepted)
	m.recordBatch(nil, time.Second)
}
