package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/compass-labs/roadsync/internal/chunker"
	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
	"github.com/compass-labs/roadsync/internal/logger"
)

// DefaultConfidenceThreshold is the minimum confidence (inclusive) a
// mapping needs to survive filtering.
const DefaultConfidenceThreshold = 50

// minChunkBudget floors the per-chunk character budget so a huge
// component catalogue cannot shrink chunks to nothing.
const minChunkBudget = 1024

// MappingEngine asks the AI capability which roadmap components a
// content item relates to. Text over the capability's input budget is
// chunked on paragraph boundaries; per-chunk results are merged keeping
// the highest confidence per component.
type MappingEngine struct {
	capability driven.AICapability
	threshold  int
}

// MapperOption configures a MappingEngine.
type MapperOption func(*MappingEngine)

// WithConfidenceThreshold overrides the default confidence threshold.
func WithConfidenceThreshold(t int) MapperOption {
	return func(m *MappingEngine) {
		m.threshold = t
	}
}

// NewMappingEngine creates a mapping engine over an AI capability.
func NewMappingEngine(capability driven.AICapability, opts ...MapperOption) *MappingEngine {
	m := &MappingEngine{
		capability: capability,
		threshold:  DefaultConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map produces the accepted component mappings for an item's normalised
// text against a roadmap snapshot. The snapshot is passed explicitly so
// the same inputs always map against the same component catalogue.
func (m *MappingEngine) Map(ctx context.Context, itemID, text string, roadmap *domain.RoadmapStructure) ([]domain.ComponentMapping, error) {
	if err := roadmap.Validate(); err != nil {
		return nil, fmt.Errorf("validating roadmap: %w", err)
	}

	budget := m.capability.MaxInputChars() - promptOverhead(roadmap)
	if budget < minChunkBudget {
		budget = minChunkBudget
	}

	chunks := chunker.New(chunker.WithMaxChars(budget)).Split(text)
	logger.Debug("mapping item %s: %d chunk(s), budget %d chars", itemID, len(chunks), budget)

	var all []domain.ComponentMapping
	for i, chunk := range chunks {
		mappings, err := m.mapChunk(ctx, itemID, chunk, roadmap)
		if err != nil {
			return nil, fmt.Errorf("mapping chunk %d/%d: %w", i+1, len(chunks), err)
		}
		all = append(all, mappings...)
	}

	merged := domain.MergeMappings(all)
	accepted := domain.FilterByConfidence(merged, m.threshold)
	logger.Debug("item %s: %d raw mapping(s), %d merged, %d at or above threshold %d",
		itemID, len(all), len(merged), len(accepted), m.threshold)

	return accepted, nil
}

// mapChunk runs one completion for one chunk. A malformed response gets
// exactly one retry with a stricter instruction appended; a second
// malformed response is a validation failure for the whole item.
func (m *MappingEngine) mapChunk(ctx context.Context, itemID, chunk string, roadmap *domain.RoadmapStructure) ([]domain.ComponentMapping, error) {
	prompt := buildMappingPrompt(chunk, roadmap)

	raw, err := m.capability.Complete(ctx, prompt, driven.CompleteOptions{
		MaxTokens:   2048,
		Temperature: 0,
		System:      mappingSystemPrompt,
	})
	if err != nil {
		return nil, err
	}

	mappings, err := parseMappings(raw, itemID, roadmap)
	if err == nil {
		return mappings, nil
	}

	logger.Warn("item %s: malformed mapping response, retrying with stricter instruction: %v", itemID, err)

	raw, err = m.capability.Complete(ctx, prompt+repairInstruction, driven.CompleteOptions{
		MaxTokens:   2048,
		Temperature: 0,
		System:      mappingSystemPrompt,
	})
	if err != nil {
		return nil, err
	}

	mappings, err = parseMappings(raw, itemID, roadmap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedAIResponse, err)
	}
	return mappings, nil
}

// mappingResponse is the wire schema the prompt asks the model for.
type mappingResponse struct {
	ComponentID     string `json:"component_id"`
	Confidence      int    `json:"confidence"`
	RelevanceNote   string `json:"relevance_note"`
	SuggestedUpdate string `json:"suggested_update"`
}

// parseMappings validates the raw model output against the response
// schema: a bare JSON array, known component IDs, confidence in
// [0,100]. Anything else is a schema violation.
func parseMappings(raw, itemID string, roadmap *domain.RoadmapStructure) ([]domain.ComponentMapping, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("response is not a JSON array")
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var parsed []mappingResponse
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %v", err)
	}

	out := make([]domain.ComponentMapping, 0, len(parsed))
	for _, p := range parsed {
		if p.ComponentID == "" {
			return nil, fmt.Errorf("mapping with empty component_id")
		}
		if !roadmap.Has(p.ComponentID) {
			return nil, fmt.Errorf("unknown component %q", p.ComponentID)
		}
		if p.Confidence < 0 || p.Confidence > 100 {
			return nil, fmt.Errorf("confidence %d out of range for component %q", p.Confidence, p.ComponentID)
		}
		out = append(out, domain.ComponentMapping{
			ItemID:          itemID,
			ComponentID:     p.ComponentID,
			Confidence:      p.Confidence,
			RelevanceNote:   p.RelevanceNote,
			SuggestedUpdate: p.SuggestedUpdate,
		})
	}
	return out, nil
}

// promptOverhead estimates the non-content portion of a mapping prompt
// so chunking can budget for the catalogue and instructions.
func promptOverhead(roadmap *domain.RoadmapStructure) int {
	return len(buildMappingPrompt("", roadmap))
}
