package mapping

import (
	"strings"

	"github.com/c360studio/ontomap/ontology"
)

type hintRule struct {
	tokens []string
	hint   SampleType
}

// nameHintRules map substrings of a property's label or local name to the
// sample type its values are expected to have.
var nameHintRules = []hintRule{
	{[]string{"email", "邮箱"}, TypeEmail},
	{[]string{"date", "time", "日期", "时间"}, TypeDate},
	{[]string{"url", "link", "链接"}, TypeURL},
	{[]string{"phone", "mobile", "电话", "手机号"}, TypePhone},
	{[]string{"age", "年龄"}, TypeNumber},
	{[]string{"amount", "price", "金额", "价格"}, TypeNumber},
}

// rangeHintRules map substrings of a range's name to a sample type.
var rangeHintRules = []hintRule{
	{[]string{"boolean"}, TypeBoolean},
	{[]string{"date", "time"}, TypeDate},
	{[]string{"int", "decimal", "float", "double", "number"}, TypeNumber},
	{[]string{"string"}, TypeText},
}

// TypeHints derives the set of expected sample types for a property from
// its label, local name and declared ranges.
func TypeHints(prop ontology.PropertyItem) map[SampleType]bool {
	hints := make(map[SampleType]bool)

	for _, text := range []string{prop.Label, prop.LocalName} {
		if text == "" {
			continue
		}
		applyHintRules(hints, strings.ToLower(text), nameHintRules)
	}

	for _, r := range prop.Ranges {
		text := r.LocalName
		if text == "" {
			text = r.Label
		}
		if text == "" {
			text = r.IRI
		}
		applyHintRules(hints, strings.ToLower(text), rangeHintRules)
	}

	return hints
}

func applyHintRules(hints map[SampleType]bool, text string, rules []hintRule) {
	for _, rule := range rules {
		for _, tok := range rule.tokens {
			if strings.Contains(text, tok) {
				hints[rule.hint] = true
				break
			}
		}
	}
}
