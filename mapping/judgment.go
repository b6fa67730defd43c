package mapping

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Judgment is the external model's verdict for one property. TableName and
// Field are nil when the model omitted them or sent null.
type Judgment struct {
	PropertyIRI string  `json:"property_iri"`
	TableName   *string `json:"table_name"`
	Field       *string `json:"field"`
	Confidence  any     `json:"confidence,omitempty"`
	Score       any     `json:"score,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// UnmarshalJSON accepts loosely typed model output: identifiers that are
// numbers are rendered as text, and a non-string reason is ignored.
func (j *Judgment) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("judgment is not an object: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("judgment is null")
	}
	*j = JudgmentFromMap(raw)
	return nil
}

// JudgmentFromMap builds a Judgment from a decoded JSON object.
func JudgmentFromMap(raw map[string]any) Judgment {
	j := Judgment{
		TableName:  optionalText(raw["table_name"]),
		Field:      optionalText(raw["field"]),
		Confidence: raw["confidence"],
		Score:      raw["score"],
	}
	if iri := optionalText(raw["property_iri"]); iri != nil {
		j.PropertyIRI = *iri
	}
	if reason, ok := raw["reason"].(string); ok {
		j.Reason = reason
	}
	return j
}

func optionalText(v any) *string {
	if v == nil {
		return nil
	}
	s := stringify(v)
	return &s
}

// ExplicitNull reports whether the model deliberately named no field.
func (j Judgment) ExplicitNull() bool {
	return j.TableName == nil && j.Field == nil
}

// NormalizedConfidence returns the model confidence in [0,1], or false when
// none is usable. The confidence key is preferred over score. Values in
// (1,100] are read as percentages, larger values clamp to 1, negative values
// are discarded, and the result is rounded to 4 decimals.
func (j Judgment) NormalizedConfidence() (float64, bool) {
	raw := j.Confidence
	if raw == nil {
		raw = j.Score
	}
	return normalizeConfidence(raw)
}

func normalizeConfidence(raw any) (float64, bool) {
	var c float64
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		c = v
	case float32:
		c = float64(v)
	case int:
		c = float64(v)
	case int64:
		c = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		c = f
	case bool:
		if v {
			c = 1
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		c = f
	default:
		return 0, false
	}

	if math.IsNaN(c) {
		return 0, false
	}
	if c > 1 && c <= 100 {
		c /= 100
	}
	if c < 0 {
		return 0, false
	}
	if c > 1 {
		c = 1
	}
	return round4(c), true
}

// indexJudgments keys judgments by property IRI. Later entries win;
// judgments without an IRI are dropped.
func indexJudgments(judgments []Judgment) map[string]Judgment {
	index := make(map[string]Judgment, len(judgments))
	for _, j := range judgments {
		if j.PropertyIRI == "" {
			continue
		}
		index[j.PropertyIRI] = j
	}
	return index
}

// lookupCandidate finds the candidate named by a judgment. Both table and
// field must be non-empty and present in the candidate list.
func lookupCandidate(j Judgment, candidates []FieldCandidate) (FieldCandidate, bool) {
	if j.TableName == nil || j.Field == nil || *j.TableName == "" || *j.Field == "" {
		return FieldCandidate{}, false
	}
	for _, c := range candidates {
		if c.TableName == *j.TableName && c.Field == *j.Field {
			return c, true
		}
	}
	return FieldCandidate{}, false
}
