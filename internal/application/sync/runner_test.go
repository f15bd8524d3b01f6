package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/internal/infrastructure/messaging"
	"synapse-knowledge-api/internal/infrastructure/source"
	"synapse-knowledge-api/pkg/errors"
)

func chatDocs(refs ...string) []*entity.Document {
	docs := make([]*entity.Document, 0, len(refs))
	for _, ref := range refs {
		docs = append(docs, &entity.Document{
			Text:       "message body",
			SourceKind: entity.SourceKindChat,
			SourceRef:  ref,
		})
	}
	return docs
}

func newRunnerFixture(connector source.Connector) (*Runner, *fakeJobRepo, *fakeIngestor, *fakeFlags) {
	repo := newFakeJobRepo()
	ingestor := newFakeIngestor()
	flags := newFakeFlags()
	runner := NewRunner(repo, source.NewRegistry(connector), ingestor, flags)
	return runner, repo, ingestor, flags
}

func TestRunnerCompletesJob(t *testing.T) {
	conn := &fakeConnector{kind: entity.SourceKindChat, docs: chatDocs("C1/1", "C1/2", "C1/3")}
	runner, repo, ingestor, _ := newRunnerFixture(conn)

	job := entity.NewSyncJob("job-1", "project-a", entity.SourceKindChat, "C1")
	require.NoError(t, repo.Create(context.Background(), job))

	runner.Run(context.Background(), job)

	stored := repo.get("job-1")
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, 3, stored.DocsProcessed)
	assert.Equal(t, 0, stored.DocsFailed)
	assert.Equal(t, 9, stored.ChunksWritten)
	assert.Equal(t, 0, stored.ChunksFailed)
	assert.Equal(t, 3, ingestor.count())
}

func TestRunnerCancelledBeforeStart(t *testing.T) {
	conn := &fakeConnector{kind: entity.SourceKindChat, docs: chatDocs("C1/1")}
	runner, repo, ingestor, flags := newRunnerFixture(conn)

	job := entity.NewSyncJob("job-2", "p", entity.SourceKindChat, "C1")
	require.NoError(t, repo.Create(context.Background(), job))
	require.NoError(t, flags.Set(context.Background(), "job-2"))

	runner.Run(context.Background(), job)

	assert.Equal(t, entity.JobStatusCancelled, repo.get("job-2").Status)
	assert.Equal(t, 0, ingestor.count())
	assert.False(t, flags.IsSet(context.Background(), "job-2"))
}

func TestRunnerCancelAtDocumentBoundary(t *testing.T) {
	conn := &fakeConnector{kind: entity.SourceKindChat, docs: chatDocs("C1/1", "C1/2", "C1/3")}
	runner, repo, ingestor, flags := newRunnerFixture(conn)

	job := entity.NewSyncJob("job-3", "p", entity.SourceKindChat, "C1")
	require.NoError(t, repo.Create(context.Background(), job))

	// 第一次检查（任务启动前）+ 第一个文档边界放行，之后置位
	flags.setAfterCalls = 2
	flags.target = "job-3"

	runner.Run(context.Background(), job)

	stored := repo.get("job-3")
	assert.Equal(t, entity.JobStatusCancelled, stored.Status)
	// 已完成的文档保留，第二个文档边界观察到取消
	assert.Equal(t, 1, ingestor.count())
	assert.Equal(t, 1, stored.DocsProcessed)
	assert.Equal(t, 3, stored.ChunksWritten)
}

func TestRunnerDocumentFailureContinues(t *testing.T) {
	conn := &fakeConnector{kind: entity.SourceKindChat, docs: chatDocs("C1/1", "C1/bad", "C1/3")}
	runner, repo, ingestor, _ := newRunnerFixture(conn)
	ingestor.failOn["C1/bad"] = errors.New(errors.CodeIngestionFailed, "all chunks failed")

	job := entity.NewSyncJob("job-4", "p", entity.SourceKindChat, "C1")
	require.NoError(t, repo.Create(context.Background(), job))

	runner.Run(context.Background(), job)

	stored := repo.get("job-4")
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
	assert.Equal(t, 3, stored.DocsProcessed)
	// 整篇失败的文档单独计数，与空文档区分开
	assert.Equal(t, 1, stored.DocsFailed)
	assert.Equal(t, 6, stored.ChunksWritten)
	assert.Equal(t, 2, ingestor.count())
}

func TestRunnerFatalUpstreamFailsJob(t *testing.T) {
	conn := &fakeConnector{kind: entity.SourceKindChat, docs: chatDocs("C1/1", "C1/2")}
	runner, repo, ingestor, _ := newRunnerFixture(conn)
	ingestor.failOn["C1/1"] = errors.New(errors.CodeUpstreamAuthFailed, "invalid api key")

	job := entity.NewSyncJob("job-5", "p", entity.SourceKindChat, "C1")
	require.NoError(t, repo.Create(context.Background(), job))

	runner.Run(context.Background(), job)

	stored := repo.get("job-5")
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
	assert.Equal(t, 0, ingestor.count())
}

func TestRunnerConnectorFailureFailsJob(t *testing.T) {
	conn := &fakeConnector{kind: entity.SourceKindRepository, err: errors.New(errors.CodeNotFound, "github repository not found")}
	runner, repo, _, _ := newRunnerFixture(conn)

	job := entity.NewSyncJob("job-6", "p", entity.SourceKindRepository, "acme/missing")
	require.NoError(t, repo.Create(context.Background(), job))

	runner.Run(context.Background(), job)

	assert.Equal(t, entity.JobStatusFailed, repo.get("job-6").Status)
}

func TestRunnerUnknownSourceKind(t *testing.T) {
	conn := &fakeConnector{kind: entity.SourceKindChat}
	runner, repo, _, _ := newRunnerFixture(conn)

	job := entity.NewSyncJob("job-7", "p", entity.SourceKindRepository, "acme/widgets")
	require.NoError(t, repo.Create(context.Background(), job))

	runner.Run(context.Background(), job)

	stored := repo.get("job-7")
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "no connector")
}

func TestHandleMessageDropsUnknownJob(t *testing.T) {
	conn := &fakeConnector{kind: entity.SourceKindChat}
	runner, _, _, _ := newRunnerFixture(conn)

	msg, err := messaging.NewMessage("m1", messaging.MsgTypeSyncJob, "p", messaging.SyncJobMessage{
		JobID: "missing", ContextID: "p", SourceKind: "chat", SourceRef: "C1",
	})
	require.NoError(t, err)
	assert.NoError(t, runner.HandleMessage(context.Background(), msg))
}

func TestHandleMessageAcksTerminalJob(t *testing.T) {
	conn := &fakeConnector{kind: entity.SourceKindChat, docs: chatDocs("C1/1")}
	runner, repo, ingestor, _ := newRunnerFixture(conn)

	job := entity.NewSyncJob("job-8", "p", entity.SourceKindChat, "C1")
	job.Start()
	job.Complete()
	require.NoError(t, repo.Create(context.Background(), job))

	msg, err := messaging.NewMessage("m2", messaging.MsgTypeSyncJob, "p", messaging.SyncJobMessage{
		JobID: "job-8", ContextID: "p", SourceKind: "chat", SourceRef: "C1",
	})
	require.NoError(t, err)
	require.NoError(t, runner.HandleMessage(context.Background(), msg))
	assert.Equal(t, 0, ingestor.count())
}

func TestHandleMessageRunsJob(t *testing.T) {
	conn := &fakeConnector{kind: entity.SourceKindChat, docs: chatDocs("C1/1", "C1/2")}
	runner, repo, ingestor, _ := newRunnerFixture(conn)

	job := entity.NewSyncJob("job-9", "project-a", entity.SourceKindChat, "C1")
	require.NoError(t, repo.Create(context.Background(), job))

	msg, err := messaging.NewMessage("m3", messaging.MsgTypeSyncJob, "project-a", messaging.SyncJobMessage{
		JobID: "job-9", ContextID: "project-a", SourceKind: "chat", SourceRef: "C1",
	})
	require.NoError(t, err)
	require.NoError(t, runner.HandleMessage(context.Background(), msg))

	assert.Equal(t, entity.JobStatusCompleted, repo.get("job-9").Status)
	assert.Equal(t, 2, ingestor.count())
}
