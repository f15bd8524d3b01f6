package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncJobLifecycle(t *testing.T) {
	job := NewSyncJob("job-1", "ctx-1", SourceKindChat, "C123")
	assert.Equal(t, JobStatusPending, job.Status)
	assert.False(t, job.Status.Terminal())

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	job.RecordDocument(5, 1)
	job.RecordDocument(3, 0)
	job.RecordDocumentFailed()
	assert.Equal(t, 3, job.DocsProcessed)
	assert.Equal(t, 1, job.DocsFailed)
	assert.Equal(t, 8, job.ChunksWritten)
	assert.Equal(t, 1, job.ChunksFailed)

	job.Complete()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.True(t, job.Status.Terminal())
	require.NotNil(t, job.CompletedAt)
}

func TestSyncJobFail(t *testing.T) {
	job := NewSyncJob("job-2", "ctx-1", SourceKindRepository, "org/repo")
	job.Start()
	job.Fail("upstream unavailable")

	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "upstream unavailable", job.ErrorMessage)
	assert.True(t, job.Status.Terminal())
}

func TestSyncJobCancelKeepsCounts(t *testing.T) {
	job := NewSyncJob("job-3", "ctx-1", SourceKindChat, "C123")
	job.Start()
	job.RecordDocument(4, 0)

	job.Cancel()
	assert.Equal(t, JobStatusCancelled, job.Status)
	// 取消不回滚已写入的分块
	assert.Equal(t, 4, job.ChunksWritten)
	assert.Equal(t, 1, job.DocsProcessed)
}

func TestUpdateProgressClamped(t *testing.T) {
	job := NewSyncJob("job-4", "ctx-1", SourceKindChat, "C123")

	job.UpdateProgress(-5)
	assert.Equal(t, 0, job.Progress)

	job.UpdateProgress(42)
	assert.Equal(t, 42, job.Progress)

	job.UpdateProgress(150)
	assert.Equal(t, 100, job.Progress)
}
