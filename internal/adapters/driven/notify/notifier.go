// Package notify provides a log-based stage change notifier.
package notify

import (
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
	"github.com/compass-labs/roadsync/internal/logger"
)

// Ensure LogNotifier implements the interface.
var _ driven.Notifier = (*LogNotifier)(nil)

// LogNotifier emits stage change events to the verbose log.
// Delivery is best-effort; pipeline progress never waits on it.
type LogNotifier struct{}

// NewLogNotifier creates a new log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// StageChanged logs a stage transition event.
func (n *LogNotifier) StageChanged(event driven.StageEvent) {
	logger.Info("item %s entered stage %s", event.ItemID, event.Stage)
}
