package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageCarriesPayload(t *testing.T) {
	job := &SyncJobMessage{
		JobID:      "job-1",
		ContextID:  "ctx-1",
		SourceKind: "chat",
		SourceRef:  "C123",
	}

	msg, err := NewMessage(job.JobID, MsgTypeSyncJob, job.ContextID, job)
	require.NoError(t, err)
	assert.Equal(t, "job-1", msg.ID)
	assert.Equal(t, MsgTypeSyncJob, msg.Type)
	assert.Equal(t, "ctx-1", msg.ContextID)

	var decoded SyncJobMessage
	require.NoError(t, msg.UnmarshalPayload(&decoded))
	assert.Equal(t, *job, decoded)
}

func TestMessageMetadata(t *testing.T) {
	msg := &Message{}
	assert.Empty(t, msg.GetMetadata("trace_id"))

	msg.SetMetadata("trace_id", "abc123")
	assert.Equal(t, "abc123", msg.GetMetadata("trace_id"))
}

func TestDLQStream(t *testing.T) {
	assert.Equal(t, "dlq:stream:sync:jobs", StreamSyncJobs.DLQStream())
}

func TestCalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{
		Initial:    time.Second,
		Max:        10 * time.Second,
		Multiplier: 2,
	}

	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, cfg.CalculateBackoff(1))
	assert.Equal(t, 8*time.Second, cfg.CalculateBackoff(3))
	// 超过上限后封顶
	assert.Equal(t, 10*time.Second, cfg.CalculateBackoff(10))
}
