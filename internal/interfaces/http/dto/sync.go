package dto

import (
	"synapse-knowledge-api/internal/domain/entity"
)

// SyncRequest 数据源同步请求
type SyncRequest struct {
	ContextID string `json:"context_id" binding:"required,max=128"`
	// SourceRef Slack 为逗号分隔的频道 ID，GitHub 为 owner/repo
	SourceRef string `json:"source_ref" binding:"required,max=512"`
}

// JobResponse 同步任务响应
type JobResponse struct {
	ID            string `json:"id"`
	ContextID     string `json:"context_id"`
	SourceKind    string `json:"source_kind"`
	SourceRef     string `json:"source_ref"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	DocsProcessed int    `json:"docs_processed"`
	DocsFailed    int    `json:"docs_failed"`
	ChunksWritten int    `json:"chunks_written"`
	ChunksFailed  int    `json:"chunks_failed"`
	ErrorMessage  string `json:"error_message,omitempty"`
	DurationMs    int    `json:"duration_ms,omitempty"`
	CreatedAt     string `json:"created_at"`
	StartedAt     string `json:"started_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// NewJobResponse 由任务实体构建响应
func NewJobResponse(job *entity.SyncJob) *JobResponse {
	resp := &JobResponse{
		ID:            job.ID,
		ContextID:     job.ContextID,
		SourceKind:    string(job.SourceKind),
		SourceRef:     job.SourceRef,
		Status:        string(job.Status),
		Progress:      job.Progress,
		DocsProcessed: job.DocsProcessed,
		DocsFailed:    job.DocsFailed,
		ChunksWritten: job.ChunksWritten,
		ChunksFailed:  job.ChunksFailed,
		ErrorMessage:  job.ErrorMessage,
		DurationMs:    job.DurationMs,
		CreatedAt:     job.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

// JobListResponse 任务列表响应
type JobListResponse struct {
	Jobs []*JobResponse `json:"jobs"`
}
