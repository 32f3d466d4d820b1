package domain

// RoadmapComponent is a named node in the roadmap's structure.
// Components are owned by the roadmap repository; the pipeline reads
// them and touches them only through change proposals.
type RoadmapComponent struct {
	// ID is the stable component identifier (e.g. "auth-service").
	ID string

	// Title is the human-readable component name.
	Title string

	// ParentID links to the parent component. Empty for roots.
	ParentID string

	// ContentPath is the component's content file within the roadmap
	// repository.
	ContentPath string

	// ContentSHA is the blob SHA of the component content at snapshot
	// time. Used to detect out-of-band edits before building a proposal.
	ContentSHA string
}

// RoadmapStructure is an immutable snapshot of the roadmap tree taken
// at a point in time. Mapping calls receive it explicitly so results
// are reproducible; the pipeline never reads ambient roadmap state.
type RoadmapStructure struct {
	// BaseRevision is the roadmap repository revision the snapshot was
	// taken from. Proposals branch off this revision.
	BaseRevision string

	// Components holds every node in the tree.
	Components []RoadmapComponent

	index map[string]*RoadmapComponent
}

// NewRoadmapStructure builds a snapshot with an ID lookup index.
func NewRoadmapStructure(baseRevision string, components []RoadmapComponent) *RoadmapStructure {
	s := &RoadmapStructure{
		BaseRevision: baseRevision,
		Components:   components,
		index:        make(map[string]*RoadmapComponent, len(components)),
	}
	for i := range s.Components {
		s.index[s.Components[i].ID] = &s.Components[i]
	}
	return s
}

// Component returns the component with the given ID, or nil.
func (s *RoadmapStructure) Component(id string) *RoadmapComponent {
	if s == nil || s.index == nil {
		return nil
	}
	return s.index[id]
}

// Has reports whether a component ID exists in the snapshot.
func (s *RoadmapStructure) Has(id string) bool {
	return s.Component(id) != nil
}

// Children returns the direct children of a component.
func (s *RoadmapStructure) Children(parentID string) []RoadmapComponent {
	var out []RoadmapComponent
	for _, c := range s.Components {
		if c.ParentID == parentID {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks structural integrity: unique IDs and resolvable
// parent references. A permanently malformed roadmap is fatal for
// every item that maps against it.
func (s *RoadmapStructure) Validate() error {
	seen := make(map[string]bool, len(s.Components))
	for _, c := range s.Components {
		if c.ID == "" {
			return ErrMalformedRoadmap
		}
		if seen[c.ID] {
			return ErrMalformedRoadmap
		}
		seen[c.ID] = true
	}
	for _, c := range s.Components {
		if c.ParentID != "" && !seen[c.ParentID] {
			return ErrMalformedRoadmap
		}
	}
	return nil
}
