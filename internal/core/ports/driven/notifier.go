package driven

import (
	"time"

	"github.com/compass-labs/roadsync/internal/core/domain"
)

// StageEvent describes one stage transition for downstream dashboards
// and chat integrations.
type StageEvent struct {
	ItemID string
	Stage  domain.Stage
	At     time.Time
}

// Notifier receives stage transition events. Delivery is
// fire-and-forget: implementations must never block the pipeline, and
// the pipeline tolerates dropped events.
type Notifier interface {
	StageChanged(event StageEvent)
}
