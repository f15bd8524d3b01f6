package entity

import (
	"time"
)

// JobStatus 同步任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal 判断状态是否为终态
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// SyncJob 后台同步任务：从外部数据源拉取文档并摄取到指定上下文
type SyncJob struct {
	ID            string     `json:"id" gorm:"primaryKey;type:uuid"`
	ContextID     string     `json:"context_id" gorm:"index"`
	SourceKind    SourceKind `json:"source_kind"`
	// SourceRef 来源参数：Slack 为逗号分隔的频道 ID，GitHub 为 owner/repo
	SourceRef     string     `json:"source_ref"`
	Status        JobStatus  `json:"status" gorm:"index"`
	Progress      int        `json:"progress"` // 进度 (0-100)
	DocsProcessed int        `json:"docs_processed"`
	DocsFailed    int        `json:"docs_failed"`
	ChunksWritten int        `json:"chunks_written"`
	ChunksFailed  int        `json:"chunks_failed"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	DurationMs    int        `json:"duration_ms,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// TableName gorm 表名
func (SyncJob) TableName() string {
	return "sync_jobs"
}

// NewSyncJob 创建新的同步任务
func NewSyncJob(id, contextID string, kind SourceKind, sourceRef string) *SyncJob {
	now := time.Now()
	return &SyncJob{
		ID:         id,
		ContextID:  contextID,
		SourceKind: kind,
		SourceRef:  sourceRef,
		Status:     JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Start 开始执行任务
func (j *SyncJob) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// Complete 完成任务
func (j *SyncJob) Complete() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Fail 任务失败
func (j *SyncJob) Fail(errMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Cancel 取消任务。已写入的分块保留，不做回滚。
func (j *SyncJob) Cancel() {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// UpdateProgress 更新任务进度
func (j *SyncJob) UpdateProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
}

// RecordDocument 记录一篇文档的摄取结果
func (j *SyncJob) RecordDocument(written, failed int) {
	j.DocsProcessed++
	j.ChunksWritten += written
	j.ChunksFailed += failed
}

// RecordDocumentFailed 记录一篇整体摄取失败的文档，与空文档区分开
func (j *SyncJob) RecordDocumentFailed() {
	j.DocsProcessed++
	j.DocsFailed++
}
