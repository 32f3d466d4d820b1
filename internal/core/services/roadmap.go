package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/compass-labs/roadsync/internal/core/domain"
)

// roadmapFile is the YAML schema of an exported roadmap snapshot.
// Components nest; children inherit their parent implicitly.
type roadmapFile struct {
	BaseRevision string         `yaml:"base_revision"`
	Components   []roadmapEntry `yaml:"components"`
}

type roadmapEntry struct {
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title"`
	ContentPath string         `yaml:"content_path"`
	ContentSHA  string         `yaml:"content_sha"`
	Children    []roadmapEntry `yaml:"children"`
}

// LoadRoadmapSnapshot reads a roadmap snapshot from a YAML file and
// validates its structure. The snapshot is immutable once loaded;
// mapping runs receive it explicitly.
func LoadRoadmapSnapshot(path string) (*domain.RoadmapStructure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roadmap snapshot: %w", err)
	}
	return ParseRoadmapSnapshot(data)
}

// ParseRoadmapSnapshot parses YAML roadmap data into a validated
// structure. Returns domain.ErrMalformedRoadmap on structural problems.
func ParseRoadmapSnapshot(data []byte) (*domain.RoadmapStructure, error) {
	var file roadmapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedRoadmap, err)
	}
	if file.BaseRevision == "" {
		return nil, fmt.Errorf("%w: missing base_revision", domain.ErrMalformedRoadmap)
	}

	var components []domain.RoadmapComponent
	for _, entry := range file.Components {
		components = flatten(components, entry, "")
	}

	roadmap := domain.NewRoadmapStructure(file.BaseRevision, components)
	if err := roadmap.Validate(); err != nil {
		return nil, err
	}
	return roadmap, nil
}

// flatten walks one entry and its children depth-first, recording
// parent links.
func flatten(acc []domain.RoadmapComponent, entry roadmapEntry, parentID string) []domain.RoadmapComponent {
	acc = append(acc, domain.RoadmapComponent{
		ID:          entry.ID,
		Title:       entry.Title,
		ParentID:    parentID,
		ContentPath: entry.ContentPath,
		ContentSHA:  entry.ContentSHA,
	})
	for _, child := range entry.Children {
		acc = flatten(acc, child, entry.ID)
	}
	return acc
}
