package mapping

import (
	"math"

	"github.com/c360studio/ontomap/ontology"
)

// Mode selects the matching strategy.
type Mode string

const (
	ModeHeuristic Mode = "heuristic"
	ModeLLM       Mode = "llm"
)

// ParseMode converts a string to a Mode. Empty selects heuristic.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeHeuristic:
		return ModeHeuristic, nil
	case ModeLLM:
		return ModeLLM, nil
	}
	return "", ErrInvalidMode
}

// Outcome is why a property did or did not receive a mapping.
type Outcome string

const (
	// OutcomeAccepted means a candidate was chosen with a score at or above the threshold.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeBelowThreshold means a candidate exists but scored under the threshold.
	OutcomeBelowThreshold Outcome = "below_threshold"
	// OutcomeNoCandidate means nothing could be proposed, locally or remotely.
	OutcomeNoCandidate Outcome = "no_candidate"
	// OutcomeInvalidRemoteReference means the model named a table/field pair
	// outside the candidate list.
	OutcomeInvalidRemoteReference Outcome = "invalid_remote_reference"
)

// Provenance records which evidence produced a decision.
type Provenance string

const (
	ProvenanceHeuristic  Provenance = "heuristic"
	ProvenanceRemote     Provenance = "remote judgment"
	ProvenanceRemoteNull Provenance = "remote no match"
	ProvenanceFallback   Provenance = "fallback heuristic"
)

// MatchResult is the per-property output of a match call. TableName, Field
// and Score are null together unless the outcome is accepted, except that
// Score may carry the best (rejected) score for diagnostics.
type MatchResult struct {
	PropertyIRI   string   `json:"property_iri"`
	PropertyLabel string   `json:"property_label"`
	TableName     *string  `json:"table_name"`
	Field         *string  `json:"field"`
	Score         *float64 `json:"score"`
	Reason        string   `json:"reason"`
	Outcome       Outcome  `json:"outcome"`
}

// Accepted reports whether the result names a mapping.
func (r MatchResult) Accepted() bool {
	return r.Outcome == OutcomeAccepted
}

// decision is the internal per-property verdict before it is rendered into
// a MatchResult and an audit record.
type decision struct {
	prop       ontology.PropertyItem
	candidate  *FieldCandidate
	score      float64
	hasScore   bool
	outcome    Outcome
	provenance Provenance
	reason     string
}

func (d decision) result() MatchResult {
	r := MatchResult{
		PropertyIRI:   d.prop.IRI,
		PropertyLabel: d.prop.Name(),
		Reason:        d.reason,
		Outcome:       d.outcome,
	}
	if d.outcome == OutcomeAccepted && d.candidate != nil {
		table, field := d.candidate.TableName, d.candidate.Field
		r.TableName = &table
		r.Field = &field
	}
	if d.hasScore {
		s := round4(d.score)
		r.Score = &s
	}
	return r
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// clampThreshold bounds t to [0,1].
func clampThreshold(t float64) float64 {
	if math.IsNaN(t) {
		return 0
	}
	return math.Max(0, math.Min(1, t))
}
