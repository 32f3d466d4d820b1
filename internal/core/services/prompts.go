package services

import (
	"fmt"
	"strings"

	"github.com/compass-labs/roadsync/internal/core/domain"
)

// mappingSystemPrompt frames the model as a roadmap analyst. The
// response contract is restated in every user prompt as well; models
// follow instructions better when the schema appears in both places.
const mappingSystemPrompt = `You are an analyst that maps product content onto a roadmap.
You respond with a single JSON array and nothing else: no prose, no
markdown fences, no explanations outside the JSON.`

// repairInstruction is appended on the single retry after a malformed
// response. It restates the contract more forcefully.
const repairInstruction = `

IMPORTANT: your previous response was not valid JSON matching the
required schema. Respond with ONLY a JSON array of objects with exactly
the keys "component_id", "confidence", "relevance_note" and
"suggested_update". Do not wrap the array in markdown fences. Do not
add any text before or after the array.`

// buildMappingPrompt renders the per-chunk mapping prompt: the roadmap
// component catalogue followed by the content excerpt and the response
// schema.
func buildMappingPrompt(chunk string, roadmap *domain.RoadmapStructure) string {
	var b strings.Builder

	b.WriteString("Below is the component catalogue of a product roadmap,\n")
	b.WriteString("followed by an excerpt of newly ingested content.\n\n")
	b.WriteString("Components:\n")
	for _, c := range roadmap.Components {
		fmt.Fprintf(&b, "- id: %s", c.ID)
		if c.Title != "" {
			fmt.Fprintf(&b, " (%s)", c.Title)
		}
		if c.ParentID != "" {
			fmt.Fprintf(&b, " [parent: %s]", c.ParentID)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nContent excerpt:\n---\n")
	b.WriteString(chunk)
	b.WriteString("\n---\n\n")

	b.WriteString(`Identify which components (if any) this excerpt is relevant to.
For each relevant component, output an object with:
  "component_id":     the component id from the catalogue above
  "confidence":       integer 0-100, how confident you are in the relevance
  "relevance_note":   one sentence explaining the relevance
  "suggested_update": the concrete update to the component's content,
                      written as it should appear in the roadmap

Respond with a JSON array of these objects. Use an empty array [] when
nothing in the excerpt relates to any component.`)

	return b.String()
}
