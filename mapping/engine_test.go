package mapping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/c360studio/ontomap/audit"
	"github.com/c360studio/ontomap/ontology"
	"github.com/c360studio/ontomap/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

type fakeInvoker struct {
	mu      sync.Mutex
	credErr error
	err     error
	respond func(inv Invocation) []Judgment
	calls   []Invocation
}

func (f *fakeInvoker) CheckCredentials() error {
	return f.credErr
}

func (f *fakeInvoker) Invoke(_ context.Context, inv Invocation) ([]Judgment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv)
	if f.err != nil {
		return nil, f.err
	}
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(inv), nil
}

func strPtr(s string) *string { return &s }

func testTables() []source.TableItem {
	return []source.TableItem{
		{
			Name:   "users",
			Fields: []string{"user_id", "full_name", "email", "age"},
			SampleRows: []source.Row{
				{"user_id": int64(1), "full_name": "Ann Lee", "email": "ann@example.com", "age": int64(31)},
				{"user_id": int64(2), "full_name": "Bo Chen", "email": "bo@example.com", "age": int64(45)},
				{"user_id": int64(3), "full_name": "Cy Park", "email": "cy@example.com", "age": int64(27)},
			},
		},
		{
			Name:   "orders",
			Fields: []string{"order_id", "user_id", "amount", "created_at"},
			SampleRows: []source.Row{
				{"order_id": int64(10), "user_id": int64(1), "amount": 12.5, "created_at": "2024-01-02"},
				{"order_id": int64(11), "user_id": int64(2), "amount": 99.0, "created_at": "2024-01-03"},
			},
		},
	}
}

var (
	userClass  = ontology.IRIItem{IRI: "http://ex.org/User", Label: "User", LocalName: "User"}
	orderClass = ontology.IRIItem{IRI: "http://ex.org/Order", LocalName: "Order"}
)

func testProperties() []ontology.PropertyItem {
	return []ontology.PropertyItem{
		{IRI: "http://ex.org/email", Label: "Email", LocalName: "email", Domains: []ontology.IRIItem{userClass}, IsLeaf: true},
		{IRI: "http://ex.org/amount", LocalName: "amount", Domains: []ontology.IRIItem{orderClass}, IsLeaf: true},
		{IRI: "http://ex.org/fullName", Label: "Full Name", Domains: []ontology.IRIItem{userClass}, IsLeaf: true},
		{IRI: "http://ex.org/shoeSize", Label: "Shoe Size", IsLeaf: true},
	}
}

func newTestEngine(opts ...Option) (*Engine, *audit.MemorySink) {
	sink := &audit.MemorySink{}
	base := []Option{
		WithSink(sink),
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewEngine(append(base, opts...)...), sink
}

func TestMatch_Heuristic(t *testing.T) {
	engine, sink := newTestEngine()
	props := testProperties()

	results, err := engine.MatchProperties(context.Background(), props, testTables(), ModeHeuristic, DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, results, len(props))

	for i, r := range results {
		assert.Equal(t, props[i].IRI, r.PropertyIRI, "results follow input order")
	}

	email := results[0]
	assert.Equal(t, OutcomeAccepted, email.Outcome)
	assert.Equal(t, "users", *email.TableName)
	assert.Equal(t, "email", *email.Field)
	assert.Equal(t, "Email", email.PropertyLabel)
	assert.Equal(t, "heuristic match", email.Reason)

	amount := results[1]
	assert.Equal(t, OutcomeAccepted, amount.Outcome)
	assert.Equal(t, "orders", *amount.TableName)
	assert.Equal(t, "amount", *amount.Field)
	assert.Equal(t, "amount", amount.PropertyLabel, "label falls back to local name")

	fullName := results[2]
	assert.Equal(t, OutcomeAccepted, fullName.Outcome)
	assert.Equal(t, "full_name", *fullName.Field)

	records := sink.Records()
	require.Len(t, records, len(props))
	assert.Equal(t, audit.LevelInfo, records[0].Level)
	assert.Equal(t, "User", records[0].GroupName)
	assert.Equal(t, "email", records[0].Field)
	assert.Equal(t, audit.ResultAccepted, records[0].Result)
	assert.Equal(t, fixedNow, records[0].Timestamp)
	assert.Equal(t, "Order", records[1].GroupName)
	assert.Equal(t, audit.GroupUngrouped, records[3].GroupName)
	assert.Equal(t, "heuristic", records[0].Mode)
	assert.NotEmpty(t, records[0].RunID)
	for _, r := range records {
		assert.Equal(t, records[0].RunID, r.RunID, "one run id per call")
	}
}

func TestMatch_HeuristicBelowThreshold(t *testing.T) {
	engine, sink := newTestEngine()
	props := []ontology.PropertyItem{{IRI: "http://ex.org/shoeSize", Label: "Shoe Size"}}

	results, err := engine.MatchProperties(context.Background(), props, testTables(), ModeHeuristic, 0.95)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, OutcomeBelowThreshold, r.Outcome)
	assert.Nil(t, r.TableName)
	assert.Nil(t, r.Field)
	require.NotNil(t, r.Score, "best rejected score is kept for diagnostics")
	assert.Less(t, *r.Score, 0.95)
	assert.Equal(t, "heuristic match below threshold", r.Reason)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, audit.ResultRejected, records[0].Result)
	assert.NotEqual(t, audit.FieldNone, records[0].Field, "audit names the best rejected field")
}

func TestMatch_NoCandidates(t *testing.T) {
	engine, sink := newTestEngine()
	props := testProperties()

	results, err := engine.MatchProperties(context.Background(), props, nil, ModeHeuristic, DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, results, len(props))
	for _, r := range results {
		assert.Equal(t, OutcomeNoCandidate, r.Outcome)
		assert.Nil(t, r.Score, "score is null only without candidates")
		assert.Equal(t, "no heuristic match found", r.Reason)
	}
	for _, rec := range sink.Records() {
		assert.Equal(t, audit.FieldNone, rec.Field)
	}
}

func TestMatch_EmailScenario(t *testing.T) {
	engine, _ := newTestEngine()
	props := []ontology.PropertyItem{{IRI: "http://ex.org/email", Label: "Email Address"}}
	tables := []source.TableItem{{
		Name:   "Users",
		Fields: []string{"email"},
		SampleRows: []source.Row{
			{"email": "a@b.com"}, {"email": "c@d.com"}, {"email": "bad"},
		},
	}}

	results, err := engine.MatchProperties(context.Background(), props, tables, ModeHeuristic, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeAccepted, results[0].Outcome)
	assert.Equal(t, "Users", *results[0].TableName)
	assert.InDelta(t, 0.6333, *results[0].Score, 1e-4)
}

func TestMatch_Completeness(t *testing.T) {
	engine, _ := newTestEngine()
	for _, n := range []int{0, 1, 7, 25} {
		props := make([]ontology.PropertyItem, n)
		for i := range props {
			props[i] = ontology.PropertyItem{IRI: fmt.Sprintf("http://ex.org/p%d", i), Label: fmt.Sprintf("field %d", i)}
		}
		results, err := engine.MatchProperties(context.Background(), props, testTables(), ModeHeuristic, DefaultThreshold)
		require.NoError(t, err)
		require.Len(t, results, n)
		for i, r := range results {
			assert.Equal(t, props[i].IRI, r.PropertyIRI)
		}
	}
}

func TestMatch_ThresholdMonotonicity(t *testing.T) {
	engine, _ := newTestEngine()
	props := testProperties()
	tables := testTables()

	var previous map[string]bool
	for _, threshold := range []float64{-0.5, 0, 0.25, 0.5, 0.6, 0.75, 0.9, 1, 2} {
		results, err := engine.MatchProperties(context.Background(), props, tables, ModeHeuristic, threshold)
		require.NoError(t, err)

		accepted := make(map[string]bool)
		for _, r := range results {
			if r.Score != nil {
				assert.GreaterOrEqual(t, *r.Score, 0.0)
				assert.LessOrEqual(t, *r.Score, 1.0)
			}
			if r.Accepted() {
				accepted[r.PropertyIRI] = true
			}
		}
		if previous != nil {
			for iri := range accepted {
				assert.True(t, previous[iri], "%s accepted at %.2f but not at a lower threshold", iri, threshold)
			}
		}
		previous = accepted
	}
}

func TestMatch_Idempotent(t *testing.T) {
	engine, _ := newTestEngine()
	first, err := engine.MatchProperties(context.Background(), testProperties(), testTables(), ModeHeuristic, DefaultThreshold)
	require.NoError(t, err)
	second, err := engine.MatchProperties(context.Background(), testProperties(), testTables(), ModeHeuristic, DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMatch_InvalidMode(t *testing.T) {
	engine, sink := newTestEngine()
	_, err := engine.MatchProperties(context.Background(), testProperties(), testTables(), Mode("magic"), DefaultThreshold)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Empty(t, sink.Records())
}

func TestMatch_LLMReconciliation(t *testing.T) {
	props := []ontology.PropertyItem{
		// valid pair, no confidence: local score decides
		{IRI: "http://ex.org/email", Label: "Email", Domains: []ontology.IRIItem{userClass}},
		// valid pair, low confidence overrides a high local score
		{IRI: "http://ex.org/fullName", Label: "Full Name", Domains: []ontology.IRIItem{userClass}},
		// explicit no match
		{IRI: "http://ex.org/nickname", Label: "Nickname"},
		// hallucinated pair with high confidence
		{IRI: "http://ex.org/phone", Label: "Phone"},
		// omitted by the model
		{IRI: "http://ex.org/amount", LocalName: "amount", Domains: []ontology.IRIItem{orderClass}},
	}
	inv := &fakeInvoker{respond: func(Invocation) []Judgment {
		return []Judgment{
			{PropertyIRI: "http://ex.org/email", TableName: strPtr("users"), Field: strPtr("email"), Reason: "same name"},
			{PropertyIRI: "http://ex.org/fullName", TableName: strPtr("users"), Field: strPtr("full_name"), Confidence: 0.3},
			{PropertyIRI: "http://ex.org/nickname", Reason: "nothing fits"},
			{PropertyIRI: "http://ex.org/phone", TableName: strPtr("contacts"), Field: strPtr("phone"), Confidence: float64(99)},
		}
	}}
	engine, sink := newTestEngine(WithInvoker(inv))

	results, err := engine.MatchProperties(context.Background(), props, testTables(), ModeLLM, DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, results, len(props))

	email := results[0]
	assert.Equal(t, OutcomeAccepted, email.Outcome)
	assert.Equal(t, "email", *email.Field)
	assert.Equal(t, "remote judgment: same name; local score used", email.Reason)

	fullName := results[1]
	assert.Equal(t, OutcomeBelowThreshold, fullName.Outcome)
	assert.Nil(t, fullName.Field)
	assert.Equal(t, 0.3, *fullName.Score)
	assert.Equal(t, "remote judgment: model returned no reason; below threshold; model confidence=0.30", fullName.Reason)

	nickname := results[2]
	assert.Equal(t, OutcomeNoCandidate, nickname.Outcome)
	assert.Nil(t, nickname.Field)
	assert.Equal(t, 0.0, *nickname.Score)
	assert.Equal(t, "remote no match: nothing fits", nickname.Reason)

	phone := results[3]
	assert.Equal(t, OutcomeInvalidRemoteReference, phone.Outcome)
	assert.Nil(t, phone.TableName)
	assert.Nil(t, phone.Field)
	assert.Equal(t, 0.99, *phone.Score)
	assert.Contains(t, phone.Reason, "not in the candidate list")
	assert.Contains(t, phone.Reason, "model confidence=0.99")

	amount := results[4]
	assert.Equal(t, OutcomeAccepted, amount.Outcome)
	assert.Equal(t, "orders", *amount.TableName)
	assert.Equal(t, "fallback heuristic: model returned no judgment for this property; local score used", amount.Reason)

	records := sink.Records()
	require.Len(t, records, len(props))
	assert.Equal(t, "llm", records[0].Mode)
	assert.Equal(t, audit.ResultAccepted, records[0].Result)
	assert.Equal(t, audit.ResultRejected, records[3].Result)
	assert.Equal(t, audit.FieldNone, records[3].Field)
}

func TestMatch_LLMBatches(t *testing.T) {
	props := make([]ontology.PropertyItem, 23)
	for i := range props {
		props[i] = ontology.PropertyItem{IRI: fmt.Sprintf("http://ex.org/p%d", i), Label: "Email"}
	}
	inv := &fakeInvoker{respond: func(inv Invocation) []Judgment {
		out := make([]Judgment, 0, len(inv.Properties))
		for _, p := range inv.Properties {
			out = append(out, Judgment{PropertyIRI: p.IRI, TableName: strPtr("users"), Field: strPtr("email"), Confidence: 0.9})
		}
		return out
	}}
	engine, _ := newTestEngine(WithInvoker(inv))

	results, err := engine.Match(context.Background(), Request{
		Properties: props,
		Tables:     testTables(),
		Mode:       ModeLLM,
		Threshold:  DefaultThreshold,
		SkillDoc:   "map carefully",
	})
	require.NoError(t, err)
	require.Len(t, results, 23)

	require.Len(t, inv.calls, 3)
	sizes := []int{len(inv.calls[0].Properties), len(inv.calls[1].Properties), len(inv.calls[2].Properties)}
	assert.Equal(t, []int{10, 10, 3}, sizes)

	first := inv.calls[0]
	assert.Equal(t, "map carefully", first.SkillDoc)
	assert.Len(t, first.Candidates, 8, "every candidate goes with every batch")
	assert.Len(t, first.Tables, 2)
	require.Len(t, first.Relations, 1)
	assert.Equal(t, []string{"user_id"}, first.Relations[0].SharedFields)

	for _, r := range results {
		assert.Equal(t, OutcomeAccepted, r.Outcome)
		assert.Equal(t, 0.9, *r.Score)
	}
}

func TestMatch_LLMJudgmentsMergeAcrossBatches(t *testing.T) {
	props := []ontology.PropertyItem{
		{IRI: "http://ex.org/email", Label: "Email", Domains: []ontology.IRIItem{userClass}},
		{IRI: "http://ex.org/fullName", Label: "Full Name", Domains: []ontology.IRIItem{userClass}},
	}
	batch := 0
	inv := &fakeInvoker{respond: func(Invocation) []Judgment {
		batch++
		switch batch {
		case 1:
			return []Judgment{{PropertyIRI: "http://ex.org/fullName", TableName: strPtr("users"), Field: strPtr("email"), Confidence: 0.2}}
		default:
			// answers the first batch's property and overrides the earlier fullName judgment
			return []Judgment{
				{PropertyIRI: "http://ex.org/email", TableName: strPtr("users"), Field: strPtr("age"), Confidence: 0.9},
				{PropertyIRI: "http://ex.org/fullName", TableName: strPtr("users"), Field: strPtr("full_name"), Confidence: 0.8},
			}
		}
	}}
	engine, sink := newTestEngine(WithInvoker(inv), WithBatchSize(1))

	results, err := engine.MatchProperties(context.Background(), props, testTables(), ModeLLM, DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, inv.calls, 2)
	require.Len(t, results, 2)

	email := results[0]
	assert.Equal(t, "http://ex.org/email", email.PropertyIRI)
	assert.Equal(t, OutcomeAccepted, email.Outcome)
	assert.Equal(t, "age", *email.Field)
	assert.Equal(t, 0.9, *email.Score)
	assert.Contains(t, email.Reason, "remote judgment")

	fullName := results[1]
	assert.Equal(t, "full_name", *fullName.Field)
	assert.Equal(t, 0.8, *fullName.Score)

	records := sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "age", records[0].Field)
	assert.Equal(t, "full_name", records[1].Field)
}

func TestMatch_LLMBatchSizeOption(t *testing.T) {
	props := testProperties()
	inv := &fakeInvoker{respond: func(Invocation) []Judgment { return nil }}
	engine, _ := newTestEngine(WithInvoker(inv), WithBatchSize(3))

	_, err := engine.MatchProperties(context.Background(), props, testTables(), ModeLLM, DefaultThreshold)
	require.NoError(t, err)
	assert.Len(t, inv.calls, 2)
}

func TestMatch_LLMTransportFailure(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("connection reset")}
	engine, sink := newTestEngine(WithInvoker(inv))
	props := testProperties()

	results, err := engine.MatchProperties(context.Background(), props, testTables(), ModeLLM, DefaultThreshold)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, IsTransportFailure(err))
	assert.False(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "connection reset")

	records := sink.Records()
	require.Len(t, records, len(props))
	for i, r := range records {
		assert.Equal(t, props[i].IRI, r.PropertyIRI)
		assert.Equal(t, audit.LevelError, r.Level)
		assert.Equal(t, audit.ResultFailed, r.Result)
		assert.Equal(t, audit.FieldNone, r.Field)
		assert.Nil(t, r.Score)
	}
}

func TestMatch_LLMConfigurationError(t *testing.T) {
	t.Run("missing credential", func(t *testing.T) {
		inv := &fakeInvoker{credErr: ErrMissingCredential}
		engine, sink := newTestEngine(WithInvoker(inv))

		_, err := engine.MatchProperties(context.Background(), testProperties(), testTables(), ModeLLM, DefaultThreshold)
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
		assert.ErrorIs(t, err, ErrMissingCredential)
		assert.Empty(t, inv.calls, "no remote call is attempted")

		for _, r := range sink.Records() {
			assert.Equal(t, audit.ResultFailed, r.Result)
		}
	})

	t.Run("no invoker", func(t *testing.T) {
		engine, _ := newTestEngine()
		_, err := engine.MatchProperties(context.Background(), testProperties(), testTables(), ModeLLM, DefaultThreshold)
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})
}

func TestMatch_LLMBatchTimeout(t *testing.T) {
	inv := &blockingInvoker{}
	engine, _ := newTestEngine(WithInvoker(inv), WithBatchTimeout(20*time.Millisecond))

	_, err := engine.MatchProperties(context.Background(), testProperties(), testTables(), ModeLLM, DefaultThreshold)
	require.Error(t, err)
	assert.True(t, IsTransportFailure(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type blockingInvoker struct{}

func (blockingInvoker) CheckCredentials() error { return nil }

func (blockingInvoker) Invoke(ctx context.Context, _ Invocation) ([]Judgment, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingSink struct{}

func (failingSink) Append(context.Context, []audit.DecisionRecord) error {
	return errors.New("disk full")
}

func TestMatch_SinkFailure(t *testing.T) {
	engine := NewEngine(WithSink(failingSink{}), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	results, err := engine.MatchProperties(context.Background(), testProperties(), testTables(), ModeHeuristic, DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, results, len(testProperties()))
	assert.Equal(t, "email", *results[0].Field)
}

func TestReconcile_ExplicitNullWithConfidence(t *testing.T) {
	prop := ontology.PropertyItem{IRI: "p", Label: "Email"}
	responses := indexJudgments([]Judgment{{PropertyIRI: "p", Confidence: 0.8}})
	cands := BuildCandidates(testTables())

	d := reconcile(prop, responses, testTables(), cands, DefaultThreshold)
	assert.Equal(t, OutcomeNoCandidate, d.outcome)
	assert.Equal(t, ProvenanceRemoteNull, d.provenance)
	assert.Equal(t, 0.8, d.score)
	assert.Equal(t, "remote no match: model judged no suitable field; model confidence=0.80", d.reason)
}
