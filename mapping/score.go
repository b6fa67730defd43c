package mapping

import (
	"sort"

	"github.com/c360studio/ontomap/ontology"
	"github.com/c360studio/ontomap/source"
)

// Score weights. They sum to 1 so scores stay in [0,1].
const (
	nameWeight   = 0.6
	domainWeight = 0.2
	sampleWeight = 0.2
)

// neutralScore is used when there is no evidence either way.
const neutralScore = 0.5

const (
	// tableScoreThreshold is the domain score a table needs to be kept by RankTables.
	tableScoreThreshold = 0.35
	// maxRankedTables caps how many tables RankTables keeps.
	maxRankedTables = 3
)

// DomainScore is how well a table name matches any of the property's
// domain classes. Properties without domains score neutral.
func DomainScore(prop ontology.PropertyItem, tableName string) float64 {
	if len(prop.Domains) == 0 {
		return neutralScore
	}
	values := make([]string, 0, len(prop.Domains)*2)
	for _, d := range prop.Domains {
		values = append(values, d.Label, d.LocalName)
	}
	return NameSimilarity(tableName, values...)
}

// SampleScore compares the inferred sample type with the property's type hints.
func SampleScore(prop ontology.PropertyItem, samples []any) float64 {
	hints := TypeHints(prop)
	if len(hints) == 0 {
		return neutralScore
	}
	inferred := ClassifySamples(samples)
	if hints[inferred] {
		return 1.0
	}
	if inferred == TypeUnknown {
		return neutralScore
	}
	return 0.0
}

// ScoreCandidate combines name, domain and sample evidence into a score in [0,1].
func ScoreCandidate(prop ontology.PropertyItem, cand FieldCandidate) float64 {
	name := NameSimilarity(cand.Field, prop.Label, prop.LocalName)
	domain := DomainScore(prop, cand.TableName)
	sample := SampleScore(prop, cand.Samples)
	return nameWeight*name + domainWeight*domain + sampleWeight*sample
}

// RankTables restricts the tables a property is searched in. It returns nil,
// meaning no restriction, when there are no tables or the property has no
// domains. Otherwise tables are ordered by domain score (stable, descending),
// those at or above the table threshold are kept (or just the top one when
// none qualifies) and at most three are returned.
func RankTables(prop ontology.PropertyItem, tables []source.TableItem) map[string]bool {
	if len(tables) == 0 || len(prop.Domains) == 0 {
		return nil
	}

	type scored struct {
		name  string
		score float64
	}
	var ranked []scored
	for _, t := range tables {
		if t.Name == "" {
			continue
		}
		ranked = append(ranked, scored{name: t.Name, score: DomainScore(prop, t.Name)})
	}
	if len(ranked) == 0 {
		return nil
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	var selected []scored
	for _, r := range ranked {
		if r.score >= tableScoreThreshold {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		selected = ranked[:1]
	}
	if len(selected) > maxRankedTables {
		selected = selected[:maxRankedTables]
	}

	names := make(map[string]bool, len(selected))
	for _, r := range selected {
		names[r.name] = true
	}
	return names
}

// scopeCandidates filters candidates to the ranked tables. A nil ranking
// leaves them unrestricted.
func scopeCandidates(candidates []FieldCandidate, ranked map[string]bool) []FieldCandidate {
	if ranked == nil {
		return candidates
	}
	scoped := make([]FieldCandidate, 0, len(candidates))
	for _, c := range candidates {
		if ranked[c.TableName] {
			scoped = append(scoped, c)
		}
	}
	return scoped
}

// bestCandidate returns the highest scoring candidate. Ties keep the first
// one seen. ok is false only when there are no candidates.
func bestCandidate(prop ontology.PropertyItem, candidates []FieldCandidate) (best FieldCandidate, score float64, ok bool) {
	for _, c := range candidates {
		s := ScoreCandidate(prop, c)
		if !ok || s > score {
			best, score, ok = c, s, true
		}
	}
	return best, score, ok
}
