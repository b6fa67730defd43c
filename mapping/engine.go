// Package mapping matches ontology datatype properties onto fields of
// tabular data sources.
//
// A match call builds a candidate index (every table/field pair with its
// sample values) and the relations between tables once, then decides each
// property either with a local heuristic scorer or by asking an external
// model in batches and reconciling its answers against the candidate list.
// Every call yields exactly one MatchResult per property, in input order,
// and appends one audit record per property to the configured sink.
package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/c360studio/ontomap/audit"
	"github.com/c360studio/ontomap/ontology"
	"github.com/c360studio/ontomap/source"
	"github.com/google/uuid"
)

const (
	// DefaultThreshold is the score a candidate needs to be accepted.
	DefaultThreshold = 0.5
	// DefaultBatchSize is how many properties are sent to the model per call.
	DefaultBatchSize = 10
	// DefaultBatchTimeout bounds each model round trip.
	DefaultBatchTimeout = 60 * time.Second
)

// Engine runs match calls. It holds no per-call state, so one Engine can
// serve concurrent calls as long as its invoker and sink are safe for
// concurrent use.
type Engine struct {
	invoker      Invoker
	sink         audit.Sink
	batchSize    int
	batchTimeout time.Duration
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithInvoker sets the external model collaborator used in llm mode.
func WithInvoker(inv Invoker) Option {
	return func(e *Engine) {
		e.invoker = inv
	}
}

// WithSink sets where decision records are appended.
func WithSink(sink audit.Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithBatchSize sets how many properties go to the model per invocation.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithBatchTimeout bounds each model invocation.
func WithBatchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.batchTimeout = d
		}
	}
}

// WithMetrics enables prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine. Without a sink, decisions are not persisted.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		batchSize:    DefaultBatchSize,
		batchTimeout: DefaultBatchTimeout,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is the input of one match call.
type Request struct {
	Properties []ontology.PropertyItem
	Tables     []source.TableItem
	Mode       Mode
	// Threshold is clamped to [0,1].
	Threshold float64
	// SkillDoc is passed to the model verbatim in llm mode.
	SkillDoc string
}

// MatchProperties is shorthand for Match with a Request built from its arguments.
func (e *Engine) MatchProperties(ctx context.Context, properties []ontology.PropertyItem, tables []source.TableItem, mode Mode, threshold float64) ([]MatchResult, error) {
	return e.Match(ctx, Request{
		Properties: properties,
		Tables:     tables,
		Mode:       mode,
		Threshold:  threshold,
	})
}

// Match decides every property of the request and returns one result per
// property in input order.
func (e *Engine) Match(ctx context.Context, req Request) ([]MatchResult, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("%w: %q", err, req.Mode)}
	}
	threshold := clampThreshold(req.Threshold)
	runID := uuid.New().String()
	logger := e.logger.With("run_id", runID, "mode", mode)

	candidates := BuildCandidates(req.Tables)
	relations := InferRelations(req.Tables)

	logger.Info("Matching properties",
		"properties", len(req.Properties),
		"tables", len(req.Tables),
		"candidates", len(candidates),
		"relations", len(relations),
		"threshold", threshold)

	var decisions []decision
	switch mode {
	case ModeLLM:
		decisions, err = e.matchLLM(ctx, logger, req, candidates, relations, threshold)
		if err != nil {
			logger.Error("Model matching failed", "error", err)
			if sinkErr := e.appendRecords(ctx, e.failureRecords(runID, mode, req.Properties, err)); sinkErr != nil {
				logger.Error("Failed to record match failure", "error", sinkErr)
			}
			return nil, err
		}
	default:
		decisions = e.matchHeuristic(req.Properties, req.Tables, candidates, threshold)
	}

	results := make([]MatchResult, len(decisions))
	records := make([]audit.DecisionRecord, len(decisions))
	accepted := 0
	for i, d := range decisions {
		results[i] = d.result()
		records[i] = e.decisionRecord(runID, mode, d, results[i])
		if d.outcome == OutcomeAccepted {
			accepted++
		}
		e.metrics.recordResult(mode, d.outcome)
	}

	if err := e.appendRecords(ctx, records); err != nil {
		logger.Error("Failed to append audit records", "records", len(records), "error", err)
	}

	logger.Info("Matching complete", "accepted", accepted, "total", len(results))
	return results, nil
}

// matchHeuristic scores candidates locally for every property.
func (e *Engine) matchHeuristic(props []ontology.PropertyItem, tables []source.TableItem, candidates []FieldCandidate, threshold float64) []decision {
	decisions := make([]decision, 0, len(props))
	for _, prop := range props {
		decisions = append(decisions, heuristicDecision(prop, tables, candidates, threshold))
	}
	return decisions
}

func heuristicDecision(prop ontology.PropertyItem, tables []source.TableItem, candidates []FieldCandidate, threshold float64) decision {
	scoped := scopeCandidates(candidates, RankTables(prop, tables))
	best, score, ok := bestCandidate(prop, scoped)
	d := decision{prop: prop, provenance: ProvenanceHeuristic}
	switch {
	case !ok:
		d.outcome = OutcomeNoCandidate
		d.reason = "no heuristic match found"
	case score >= threshold:
		d.candidate, d.score, d.hasScore = &best, score, true
		d.outcome = OutcomeAccepted
		d.reason = "heuristic match"
	default:
		d.candidate, d.score, d.hasScore = &best, score, true
		d.outcome = OutcomeBelowThreshold
		d.reason = "heuristic match below threshold"
	}
	return d
}

// matchLLM asks the model in sequential batches, merges the answers by
// property IRI and reconciles every property against the merged set.
// Any invocation failure aborts the whole call.
func (e *Engine) matchLLM(ctx context.Context, logger *slog.Logger, req Request, candidates []FieldCandidate, relations []Relation, threshold float64) ([]decision, error) {
	if e.invoker == nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("llm mode requires a model invoker")}
	}
	if err := e.invoker.CheckCredentials(); err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	summaries := SummarizeTables(req.Tables)
	total := (len(req.Properties) + e.batchSize - 1) / e.batchSize
	responses := make(map[string]Judgment, len(req.Properties))

	for start, batchNo := 0, 1; start < len(req.Properties); start, batchNo = start+e.batchSize, batchNo+1 {
		end := min(start+e.batchSize, len(req.Properties))
		batch := req.Properties[start:end]

		logger.Info("Invoking model batch", "batch", batchNo, "total", total, "size", len(batch))

		judgments, err := e.invokeBatch(ctx, Invocation{
			SkillDoc:   req.SkillDoc,
			Properties: batch,
			Tables:     summaries,
			Relations:  relations,
			Candidates: candidates,
		})
		if err != nil {
			return nil, &TransportFailure{Batch: batchNo, Err: err}
		}

		logger.Info("Model batch returned", "batch", batchNo, "judgments", len(judgments))

		// Later batches overwrite earlier judgments for the same property.
		maps.Copy(responses, indexJudgments(judgments))
	}

	decisions := make([]decision, 0, len(req.Properties))
	for _, prop := range req.Properties {
		d := reconcile(prop, responses, req.Tables, candidates, threshold)
		if d.provenance == ProvenanceFallback {
			logger.Debug("Model returned no judgment, using heuristic", "property", prop.IRI)
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func (e *Engine) invokeBatch(ctx context.Context, inv Invocation) ([]Judgment, error) {
	batchCtx, cancel := context.WithTimeout(ctx, e.batchTimeout)
	defer cancel()

	started := time.Now()
	judgments, err := e.invoker.Invoke(batchCtx, inv)
	e.metrics.recordBatch(err, time.Since(started))
	return judgments, err
}

// reconcile turns the model's judgment for one property into a decision.
//
// A judgment naming a known candidate is scored locally. A judgment with
// null table and field is a deliberate "no match". A judgment naming an
// unknown pair is rejected. A missing judgment falls back to the heuristic
// for that property alone. A usable model confidence replaces the score in
// every case.
func reconcile(prop ontology.PropertyItem, responses map[string]Judgment, tables []source.TableItem, candidates []FieldCandidate, threshold float64) decision {
	j, found := responses[prop.IRI]
	confidence, hasConfidence := j.NormalizedConfidence()
	explicitNull := found && j.ExplicitNull()

	d := decision{prop: prop}
	fromModel := false

	switch {
	case found && !explicitNull:
		if c, ok := lookupCandidate(j, candidates); ok {
			d.candidate = &c
			d.score, d.hasScore = ScoreCandidate(prop, c), true
		}
		d.provenance = ProvenanceRemote
	case explicitNull:
		d.provenance = ProvenanceRemoteNull
	default:
		fb := heuristicDecision(prop, tables, candidates, threshold)
		d.candidate, d.score, d.hasScore = fb.candidate, fb.score, fb.hasScore
		d.provenance = ProvenanceFallback
	}

	if found && d.candidate == nil {
		// No local score exists; only the model's confidence can back a number.
		d.score, d.hasScore = 0, true
		fromModel = true
	}
	if hasConfidence {
		d.score, d.hasScore = confidence, true
		fromModel = true
	}

	switch {
	case d.candidate != nil && d.score >= threshold:
		d.outcome = OutcomeAccepted
	case d.candidate != nil:
		d.outcome = OutcomeBelowThreshold
	case found && !explicitNull:
		d.outcome = OutcomeInvalidRemoteReference
	default:
		d.outcome = OutcomeNoCandidate
	}

	d.reason = remoteReason(d, j, found, explicitNull, fromModel, hasConfidence, confidence)
	return d
}

func remoteReason(d decision, j Judgment, found, explicitNull, fromModel, hasConfidence bool, confidence float64) string {
	reason := j.Reason
	if reason == "" {
		switch {
		case !found:
			reason = "model returned no judgment for this property"
		case explicitNull:
			reason = "model judged no suitable field"
		default:
			reason = "model returned no reason"
		}
	}
	reason = string(d.provenance) + ": " + reason

	if d.outcome == OutcomeInvalidRemoteReference {
		reason += "; model returned a field not in the candidate list"
	}
	if d.outcome == OutcomeBelowThreshold {
		reason += "; below threshold"
	}
	switch {
	case fromModel && hasConfidence:
		reason += fmt.Sprintf("; model confidence=%.2f", confidence)
	case !fromModel:
		reason += "; local score used"
	}
	return reason
}

func groupName(prop ontology.PropertyItem) string {
	if len(prop.Domains) == 0 {
		return audit.GroupUngrouped
	}
	if name := prop.Domains[0].DisplayName(); name != "" {
		return name
	}
	return audit.GroupUngrouped
}

func (e *Engine) decisionRecord(runID string, mode Mode, d decision, r MatchResult) audit.DecisionRecord {
	field := audit.FieldNone
	if d.candidate != nil {
		field = d.candidate.Field
	}
	result := audit.ResultRejected
	if d.outcome == OutcomeAccepted {
		result = audit.ResultAccepted
	}
	return audit.DecisionRecord{
		RunID:         runID,
		Timestamp:     e.now(),
		Level:         audit.LevelInfo,
		Mode:          string(mode),
		PropertyIRI:   d.prop.IRI,
		PropertyLabel: d.prop.DisplayName(),
		GroupName:     groupName(d.prop),
		Field:         field,
		Result:        result,
		Reason:        d.reason,
		Score:         r.Score,
	}
}

func (e *Engine) failureRecords(runID string, mode Mode, props []ontology.PropertyItem, err error) []audit.DecisionRecord {
	ts := e.now()
	records := make([]audit.DecisionRecord, 0, len(props))
	for _, prop := range props {
		records = append(records, audit.DecisionRecord{
			RunID:         runID,
			Timestamp:     ts,
			Level:         audit.LevelError,
			Mode:          string(mode),
			PropertyIRI:   prop.IRI,
			PropertyLabel: prop.DisplayName(),
			GroupName:     groupName(prop),
			Field:         audit.FieldNone,
			Result:        audit.ResultFailed,
			Reason:        err.Error(),
		})
	}
	return records
}

func (e *Engine) appendRecords(ctx context.Context, records []audit.DecisionRecord) error {
	if e.sink == nil || len(records) == 0 {
		return nil
	}
	return e.sink.Append(ctx, records)
}
