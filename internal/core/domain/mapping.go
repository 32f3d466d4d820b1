package domain

// ComponentMapping is one AI-produced association between a ContentItem
// and a roadmap component. An item may fan out into several mappings;
// mappings below the confidence threshold never reach the builder.
type ComponentMapping struct {
	// ItemID is the source ContentItem.
	ItemID string

	// ComponentID is the target roadmap component.
	ComponentID string

	// Confidence is the model's relevance score in [0,100].
	Confidence int

	// RelevanceNote is the model's rationale for the association.
	RelevanceNote string

	// SuggestedUpdate is the free-text update the model proposes for
	// the component's content.
	SuggestedUpdate string
}

// MergeMappings collapses per-chunk mappings into one mapping per
// component, keeping the highest-confidence occurrence. The note and
// suggested update follow the winning chunk.
func MergeMappings(mappings []ComponentMapping) []ComponentMapping {
	best := make(map[string]ComponentMapping)
	order := make([]string, 0, len(mappings))

	for _, m := range mappings {
		cur, ok := best[m.ComponentID]
		if !ok {
			order = append(order, m.ComponentID)
			best[m.ComponentID] = m
			continue
		}
		if m.Confidence > cur.Confidence {
			best[m.ComponentID] = m
		}
	}

	out := make([]ComponentMapping, 0, len(best))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

// FilterByConfidence drops mappings strictly below the threshold.
// The boundary is inclusive: confidence equal to the threshold is kept.
func FilterByConfidence(mappings []ComponentMapping, threshold int) []ComponentMapping {
	out := make([]ComponentMapping, 0, len(mappings))
	for _, m := range mappings {
		if m.Confidence >= threshold {
			out = append(out, m)
		}
	}
	return out
}
