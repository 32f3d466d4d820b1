package notify

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
	"github.com/compass-labs/roadsync/internal/logger"
)

func TestLogNotifierStageChanged(t *testing.T) {
	defer func() {
		logger.SetVerbose(false)
		logger.SetOutput(os.Stderr)
	}()

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetVerbose(true)

	n := NewLogNotifier()
	n.StageChanged(driven.StageEvent{
		ItemID: "abc123",
		Stage:  domain.StageMapped,
		At:     time.Now(),
	})

	assert.Contains(t, buf.String(), "abc123")
	assert.Contains(t, buf.String(), string(domain.StageMapped))
}
