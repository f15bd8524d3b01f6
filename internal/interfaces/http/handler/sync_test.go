package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsync "synapse-knowledge-api/internal/application/sync"
	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/internal/interfaces/http/dto"
)

func newSyncRouter(repo *fakeJobRepo, pub *fakePublisher, flags *fakeFlags) *gin.Engine {
	h := NewSyncHandler(appsync.NewService(repo, pub, flags))
	r := gin.New()
	r.POST("/v1/sync/slack", h.SubmitSlack)
	r.POST("/v1/sync/github", h.SubmitGitHub)
	r.GET("/v1/jobs", h.ListJobs)
	r.GET("/v1/jobs/:jid", h.GetJob)
	r.POST("/v1/jobs/:jid/cancel", h.CancelJob)
	return r
}

func syncPost(t *testing.T, r *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSubmitSlackJob(t *testing.T) {
	repo := newFakeJobRepo()
	pub := &fakePublisher{}
	r := newSyncRouter(repo, pub, newFakeFlags())

	rec := syncPost(t, r, "/v1/sync/slack", dto.SyncRequest{
		ContextID: "project-a",
		SourceRef: "C123,C456",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp dto.Response[dto.JobResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Data.Status)
	assert.Equal(t, "chat", resp.Data.SourceKind)
	assert.NotEmpty(t, resp.Data.ID)

	require.Len(t, pub.published, 1)
	assert.Equal(t, resp.Data.ID, pub.published[0].JobID)
}

func TestSubmitGitHubJob(t *testing.T) {
	r := newSyncRouter(newFakeJobRepo(), &fakePublisher{}, newFakeFlags())

	rec := syncPost(t, r, "/v1/sync/github", dto.SyncRequest{
		ContextID: "project-a",
		SourceRef: "acme/widgets",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp dto.Response[dto.JobResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "repository", resp.Data.SourceKind)
}

func TestSubmitValidatesBody(t *testing.T) {
	r := newSyncRouter(newFakeJobRepo(), &fakePublisher{}, newFakeFlags())

	rec := syncPost(t, r, "/v1/sync/slack", map[string]any{"context_id": "project-a"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	repo := newFakeJobRepo()
	job := entity.NewSyncJob("job-1", "project-a", entity.SourceKindChat, "C1")
	job.Start()
	job.RecordDocument(5, 1)
	require.NoError(t, repo.Create(context.Background(), job))

	r := newSyncRouter(repo, &fakePublisher{}, newFakeFlags())

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.Response[dto.JobResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.Data.Status)
	assert.Equal(t, 1, resp.Data.DocsProcessed)
	assert.Equal(t, 5, resp.Data.ChunksWritten)
	assert.Equal(t, 1, resp.Data.ChunksFailed)
}

func TestGetJobNotFound(t *testing.T) {
	r := newSyncRouter(newFakeJobRepo(), &fakePublisher{}, newFakeFlags())

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRunningJob(t *testing.T) {
	repo := newFakeJobRepo()
	flags := newFakeFlags()
	job := entity.NewSyncJob("job-2", "project-a", entity.SourceKindChat, "C1")
	job.Start()
	require.NoError(t, repo.Create(context.Background(), job))

	r := newSyncRouter(repo, &fakePublisher{}, flags)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/job-2/cancel", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	assert.True(t, flags.IsSet(context.Background(), "job-2"))
}

func TestCancelFinishedJobConflict(t *testing.T) {
	repo := newFakeJobRepo()
	job := entity.NewSyncJob("job-3", "project-a", entity.SourceKindChat, "C1")
	job.Start()
	job.Complete()
	require.NoError(t, repo.Create(context.Background(), job))

	r := newSyncRouter(repo, &fakePublisher{}, newFakeFlags())

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/job-3/cancel", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListJobsByContext(t *testing.T) {
	repo := newFakeJobRepo()
	require.NoError(t, repo.Create(context.Background(), entity.NewSyncJob("job-a", "project-a", entity.SourceKindChat, "C1")))
	require.NoError(t, repo.Create(context.Background(), entity.NewSyncJob("job-b", "project-b", entity.SourceKindChat, "C2")))

	r := newSyncRouter(repo, &fakePublisher{}, newFakeFlags())

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs?context_id=project-a", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.Response[dto.JobListResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Jobs, 1)
	assert.Equal(t, "job-a", resp.Data.Jobs[0].ID)
}
