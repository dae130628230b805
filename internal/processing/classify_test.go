package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		input string
		want  Canonical
	}{
		{"queued", CanonicalQueued},
		{"Starting", CanonicalQueued},
		{"IN_QUEUE", CanonicalQueued},
		{"in-queue", CanonicalQueued},
		{"running", CanonicalProcessing},
		{"in progress", CanonicalProcessing},
		{"  PROCESSING  ", CanonicalProcessing},
		{"completed", CanonicalSucceeded},
		{"Success", CanonicalSucceeded},
		{"done", CanonicalSucceeded},
		{"error", CanonicalFailed},
		{"canceled", CanonicalFailed},
		{"cancelled", CanonicalFailed},
		{"timed-out", CanonicalFailed},
		{"", CanonicalUnknown},
		{"warming_up", CanonicalUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.input))
		})
	}
}

func TestCanonical_IsTerminal(t *testing.T) {
	assert.True(t, CanonicalSucceeded.IsTerminal())
	assert.True(t, CanonicalFailed.IsTerminal())
	assert.False(t, CanonicalQueued.IsTerminal())
	assert.False(t, CanonicalProcessing.IsTerminal())
	assert.False(t, CanonicalUnknown.IsTerminal())
}

func TestIsTerminalEvent(t *testing.T) {
	for _, e := range []string{"job.ended", "job.completed", "job.succeeded", "job.failed", "job.cancelled", "JOB.ENDED"} {
		assert.True(t, IsTerminalEvent(e), e)
	}
	for _, e := range []string{"job.started", "job.progress", "", "ended"} {
		assert.False(t, IsTerminalEvent(e), e)
	}
}
