package mapping

import "strings"

// systemPromptParts frame the model as a strict executor of the skill document.
var systemPromptParts = []string{
	"You are a general-purpose agent with strong comprehension and reasoning ability.",
	"You are a highly capable assistant who follows instructions exactly and must execute the skill document strictly.",
	"Do not add rules or change the output format unless the skill document explicitly asks for it.",
}

// defaultSkillDoc is used when no skill document is configured. It states
// the output contract the matcher parses.
const defaultSkillDoc = `Map each ontology property to at most one table field.
Only use table_name/field pairs that appear in "candidates".
Respond with JSON only:
{"matches": [{"property_iri": "...", "table_name": "..." or null, "field": "..." or null, "confidence": 0.0-1.0, "reason": "..."}]}
Return table_name and field as null when no candidate fits.`

// buildSystemPrompt joins the fixed instructions with the skill document.
func buildSystemPrompt(skillDoc string) string {
	parts := append([]string{}, systemPromptParts...)
	if strings.TrimSpace(skillDoc) == "" {
		skillDoc = defaultSkillDoc
	}
	parts = append(parts, "Follow this skill description:\n"+skillDoc)
	return strings.Join(parts, "\n")
}
