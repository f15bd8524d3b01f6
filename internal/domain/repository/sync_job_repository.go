// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"synapse-knowledge-api/internal/domain/entity"
)

// SyncJobFilter 同步任务过滤条件
type SyncJobFilter struct {
	ContextID  string
	SourceKind entity.SourceKind
	Status     entity.JobStatus
}

// SyncJobRepository 同步任务仓储接口
type SyncJobRepository interface {
	// Create 创建任务
	Create(ctx context.Context, job *entity.SyncJob) error

	// GetByID 根据 ID 获取任务
	GetByID(ctx context.Context, id string) (*entity.SyncJob, error)

	// Update 更新任务
	Update(ctx context.Context, job *entity.SyncJob) error

	// UpdateStatus 更新任务状态
	UpdateStatus(ctx context.Context, id string, status entity.JobStatus) error

	// List 按条件查询任务列表
	List(ctx context.Context, filter *SyncJobFilter, limit int) ([]*entity.SyncJob, error)

	// GetPendingJobs 获取待处理任务
	GetPendingJobs(ctx context.Context, limit int) ([]*entity.SyncJob, error)
}
