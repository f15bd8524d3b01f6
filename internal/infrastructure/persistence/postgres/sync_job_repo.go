package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/internal/domain/repository"
	"synapse-knowledge-api/pkg/errors"
)

// SyncJobRepository 同步任务仓储实现
type SyncJobRepository struct {
	client *Client
}

var _ repository.SyncJobRepository = (*SyncJobRepository)(nil)

// NewSyncJobRepository 创建同步任务仓储
func NewSyncJobRepository(client *Client) *SyncJobRepository {
	return &SyncJobRepository{client: client}
}

// Create 创建任务
func (r *SyncJobRepository) Create(ctx context.Context, job *entity.SyncJob) error {
	ctx, span := tracer.Start(ctx, "postgres.SyncJobRepository.Create")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Create(job).Error; err != nil {
		span.RecordError(err)
		return errors.Wrap(err, errors.CodeDatabaseError, "创建同步任务失败")
	}
	return nil
}

// GetByID 根据 ID 获取任务
func (r *SyncJobRepository) GetByID(ctx context.Context, id string) (*entity.SyncJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.SyncJobRepository.GetByID")
	defer span.End()

	var job entity.SyncJob
	if err := r.client.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrJobNotFound
		}
		span.RecordError(err)
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询同步任务失败")
	}
	return &job, nil
}

// Update 更新任务
func (r *SyncJobRepository) Update(ctx context.Context, job *entity.SyncJob) error {
	ctx, span := tracer.Start(ctx, "postgres.SyncJobRepository.Update")
	defer span.End()

	job.UpdatedAt = time.Now()
	if err := r.client.db.WithContext(ctx).Save(job).Error; err != nil {
		span.RecordError(err)
		return errors.Wrap(err, errors.CodeDatabaseError, "更新同步任务失败")
	}
	return nil
}

// UpdateStatus 更新任务状态
func (r *SyncJobRepository) UpdateStatus(ctx context.Context, id string, status entity.JobStatus) error {
	ctx, span := tracer.Start(ctx, "postgres.SyncJobRepository.UpdateStatus")
	defer span.End()

	result := r.client.db.WithContext(ctx).
		Model(&entity.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		span.RecordError(result.Error)
		return errors.Wrap(result.Error, errors.CodeDatabaseError, "更新任务状态失败")
	}
	if result.RowsAffected == 0 {
		return errors.ErrJobNotFound
	}
	return nil
}

// List 按条件查询任务列表
func (r *SyncJobRepository) List(ctx context.Context, filter *repository.SyncJobFilter, limit int) ([]*entity.SyncJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.SyncJobRepository.List")
	defer span.End()

	query := r.client.db.WithContext(ctx).Model(&entity.SyncJob{})
	if filter != nil {
		if filter.ContextID != "" {
			query = query.Where("context_id = ?", filter.ContextID)
		}
		if filter.SourceKind != "" {
			query = query.Where("source_kind = ?", filter.SourceKind)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
	}
	if limit <= 0 {
		limit = 50
	}

	var jobs []*entity.SyncJob
	if err := query.Order("created_at DESC").Limit(limit).Find(&jobs).Error; err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询任务列表失败")
	}
	return jobs, nil
}

// GetPendingJobs 获取待处理任务
func (r *SyncJobRepository) GetPendingJobs(ctx context.Context, limit int) ([]*entity.SyncJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.SyncJobRepository.GetPendingJobs")
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	var jobs []*entity.SyncJob
	if err := r.client.db.WithContext(ctx).
		Where("status = ?", entity.JobStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询待处理任务失败")
	}
	return jobs, nil
}
