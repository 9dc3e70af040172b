package prompts

import (
	"fmt"
	"strings"

	"github.com/inkwell-ai/inkwell-engine/pkg/ontology"
)

// KnownEntityContext summarizes an existing entity for the extraction prompt
// so the model reuses established names instead of minting near-duplicates.
type KnownEntityContext struct {
	Name    string
	Type    string
	Aliases []string
	Summary string
}

// RefutedEdgeContext describes a relationship the user has explicitly refuted.
// It is surfaced to the model so refuted claims are not re-extracted as fact.
type RefutedEdgeContext struct {
	FromName string
	Relation string
	ToName   string
}

// BuildExtractionPrompt creates the primary extraction prompt for a journal
// entry. It includes the known-entity roster, refuted relationships, the
// relation vocabulary, and the JSON response format.
func BuildExtractionPrompt(content string, known []KnownEntityContext, refuted []RefutedEdgeContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Journal Entry Analysis\n\n")
	prompt.WriteString("Extract the entities and relationships mentioned in the journal entry below.\n\n")

	prompt.WriteString("## Journal Entry\n\n")
	prompt.WriteString(content)
	prompt.WriteString("\n\n")

	if len(known) > 0 {
		prompt.WriteString("## Known Entities\n\n")
		prompt.WriteString("These entities already exist. When the entry refers to one of them, reuse its exact name (a nickname or shorthand goes into `aliases`, not into `name`):\n\n")
		writeKnownEntities(&prompt, known)
	}

	if len(refuted) > 0 {
		prompt.WriteString("## Refuted Relationships\n\n")
		prompt.WriteString("The user has explicitly rejected the following claims. Do NOT extract them again unless the entry clearly states the situation has changed:\n\n")
		writeRefutedEdges(&prompt, refuted)
	}

	prompt.WriteString("## Entity Types\n\n")
	prompt.WriteString("Classify each entity as one of: person, entity, project, organization, topic, emotion.\n")
	prompt.WriteString("Use `person` for named people, `organization` for companies and institutions, `project` for named undertakings, `topic` for subjects of interest, `emotion` for feelings the writer describes, and `entity` for anything concrete that fits none of the above.\n\n")

	prompt.WriteString("## Relation Vocabulary\n\n")
	prompt.WriteString("Relations MUST come from this list (any other value is discarded):\n\n")
	for _, rel := range ontology.Relations() {
		prompt.WriteString(fmt.Sprintf("- %s\n", rel))
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Extraction Guidelines\n\n")
	prompt.WriteString("- Extract only what the entry actually says. Do not infer relationships from world knowledge.\n")
	prompt.WriteString("- `sentiment` reflects how the writer feels about the entity in THIS entry, from -1.0 (very negative) to 1.0 (very positive). Omit it when the entry is neutral or the feeling is unclear.\n")
	prompt.WriteString("- `summary` is one sentence about what this entry says about the entity, written in third person.\n")
	prompt.WriteString("- `extracted_text` is the shortest quote from the entry that supports the relationship.\n")
	prompt.WriteString("- Pronouns referring to the writer are not entities; relationships from the writer are captured automatically.\n")
	prompt.WriteString("- Skip throwaway mentions with no substance (e.g. \"passed a Starbucks\").\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `entities`: Array of entities mentioned in the entry\n")
	prompt.WriteString("  - `name`: Canonical name (reuse known-entity names exactly)\n")
	prompt.WriteString("  - `type`: One of the entity types above\n")
	prompt.WriteString("  - `aliases`: Other names used for this entity in the entry (may be empty)\n")
	prompt.WriteString("  - `summary`: One sentence about this mention\n")
	prompt.WriteString("  - `sentiment`: -1.0 to 1.0, or omit\n")
	prompt.WriteString("  - `tags`: Short lowercase keywords (may be empty)\n")
	prompt.WriteString("- `relations`: Array of relationships between extracted entities\n")
	prompt.WriteString("  - `from_name`, `to_name`: Entity names from `entities`\n")
	prompt.WriteString("  - `relation`: A value from the relation vocabulary\n")
	prompt.WriteString("  - `confidence`: 0.0-1.0\n")
	prompt.WriteString("  - `extracted_text`: Supporting quote\n\n")

	prompt.WriteString("Example:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "entities": [
    {
      "name": "Sarah Chen",
      "type": "person",
      "aliases": ["Sarah"],
      "summary": "Sarah helped the writer rehearse the investor pitch.",
      "sentiment": 0.7,
      "tags": ["work", "support"]
    },
    {
      "name": "Acme Corp",
      "type": "organization",
      "aliases": [],
      "summary": "The company where Sarah works.",
      "tags": ["work"]
    }
  ],
  "relations": [
    {
      "from_name": "Sarah Chen",
      "relation": "WORKS_AT",
      "to_name": "Acme Corp",
      "confidence": 0.9,
      "extracted_text": "Sarah from Acme stayed late to help me"
    }
  ]
}
`)
	prompt.WriteString("```\n\n")

	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

func writeKnownEntities(prompt *strings.Builder, known []KnownEntityContext) {
	for _, e := range known {
		prompt.WriteString(fmt.Sprintf("- **%s** (%s)", e.Name, e.Type))
		if len(e.Aliases) > 0 {
			prompt.WriteString(fmt.Sprintf(", also known as: %s", strings.Join(e.Aliases, ", ")))
		}
		if e.Summary != "" {
			prompt.WriteString(fmt.Sprintf(" — %s", e.Summary))
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("\n")
}

func writeRefutedEdges(prompt *strings.Builder, refuted []RefutedEdgeContext) {
	for _, r := range refuted {
		prompt.WriteString(fmt.Sprintf("- %s %s %s\n", r.FromName, r.Relation, r.ToName))
	}
	prompt.WriteString("\n")
}

// BuildExtractionSystemMessage returns the system message for the primary pass.
func BuildExtractionSystemMessage() string {
	return `You are a knowledge extraction engine for a personal journal. You read one journal entry at a time and extract the people, organizations, projects, topics, and emotions it mentions, plus the relationships between them. You are precise and conservative: you never invent entities or relationships the entry does not support.`
}

// CandidateEntity is an extracted entity under critic review.
type CandidateEntity struct {
	Index   int
	Name    string
	Type    string
	Summary string
}

// CandidateRelation is an extracted relationship under critic review.
type CandidateRelation struct {
	Index         int
	FromName      string
	Relation      string
	ToName        string
	ExtractedText string
}

// BuildCriticPrompt creates the second-pass review prompt. The critic sees the
// original entry, the known-entity roster, the user's refuted claims, and the
// primary pass's candidates; it votes keep/drop on each candidate and may map
// a kept entity onto an established name.
func BuildCriticPrompt(content string, known []KnownEntityContext, refuted []RefutedEdgeContext, entities []CandidateEntity, relations []CandidateRelation) string {
	var prompt strings.Builder

	prompt.WriteString("# Extraction Review\n\n")
	prompt.WriteString("A first-pass extraction produced candidates from the journal entry below. Review each candidate against the entry text and vote to keep or drop it.\n\n")

	prompt.WriteString("## Journal Entry\n\n")
	prompt.WriteString(content)
	prompt.WriteString("\n\n")

	if len(known) > 0 {
		prompt.WriteString("## Known Entities\n\n")
		prompt.WriteString("When a candidate refers to one of these under a different spelling or shorthand, keep it and put the established name in `canonical_name`:\n\n")
		writeKnownEntities(&prompt, known)
	}

	if len(refuted) > 0 {
		prompt.WriteString("## Refuted Relationships\n\n")
		prompt.WriteString("The user has explicitly rejected these claims. Drop any candidate relationship that restates one, unless the entry clearly says the situation has changed:\n\n")
		writeRefutedEdges(&prompt, refuted)
	}

	prompt.WriteString("## Candidate Entities\n\n")
	for _, e := range entities {
		prompt.WriteString(fmt.Sprintf("- [E%d] %s (%s): %s\n", e.Index, e.Name, e.Type, e.Summary))
	}
	prompt.WriteString("\n")

	if len(relations) > 0 {
		prompt.WriteString("## Candidate Relationships\n\n")
		for _, r := range relations {
			prompt.WriteString(fmt.Sprintf("- [R%d] %s %s %s", r.Index, r.FromName, r.Relation, r.ToName))
			if r.ExtractedText != "" {
				prompt.WriteString(fmt.Sprintf(" (quote: %q)", r.ExtractedText))
			}
			prompt.WriteString("\n")
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Review Guidelines\n\n")
	prompt.WriteString("**Drop a candidate when**:\n")
	prompt.WriteString("- It is a hallucination: the entry does not mention it\n")
	prompt.WriteString("- The supporting quote does not actually support the relationship\n")
	prompt.WriteString("- The entity is the writer themselves, a pronoun, or a date\n")
	prompt.WriteString("- It duplicates another candidate under a different name\n\n")

	prompt.WriteString("**Keep a candidate when**:\n")
	prompt.WriteString("- The entry plainly supports it, even if worded differently\n")
	prompt.WriteString("- You are unsure: keep with low confidence rather than drop\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `entities`: Array of verdicts, one per candidate entity\n")
	prompt.WriteString("  - `index`: The E-number from above\n")
	prompt.WriteString("  - `keep`: true or false\n")
	prompt.WriteString("  - `canonical_name`: The known entity's exact name, only when the candidate names it differently\n")
	prompt.WriteString("  - `reasoning`: Brief explanation (1 sentence)\n")
	prompt.WriteString("- `relations`: Array of verdicts, one per candidate relationship\n")
	prompt.WriteString("  - `index`: The R-number from above\n")
	prompt.WriteString("  - `keep`: true or false\n")
	prompt.WriteString("  - `reasoning`: Brief explanation (1 sentence)\n\n")

	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildCriticSystemMessage returns the system message for the critic pass.
func BuildCriticSystemMessage() string {
	return `You are a fact-checking reviewer for a journal knowledge extraction pipeline. You compare extraction candidates against the source entry and reject anything the text does not support.`
}
