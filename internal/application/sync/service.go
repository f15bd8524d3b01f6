// Package sync 后台数据源同步任务的提交、查询与取消
package sync

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/internal/domain/repository"
	"synapse-knowledge-api/internal/infrastructure/messaging"
	"synapse-knowledge-api/pkg/errors"
	"synapse-knowledge-api/pkg/logger"
)

var tracer = otel.Tracer("application/sync")

// JobPublisher 任务消息发布器
type JobPublisher interface {
	PublishSyncJob(ctx context.Context, job *messaging.SyncJobMessage) (string, error)
}

// CancelFlagStore 取消标记存储
//
// 标记由 API 进程写入，worker 在文档边界检查
type CancelFlagStore interface {
	Set(ctx context.Context, jobID string) error
	IsSet(ctx context.Context, jobID string) bool
	Clear(ctx context.Context, jobID string) error
}

// Service 同步任务服务
type Service struct {
	jobs      repository.SyncJobRepository
	publisher JobPublisher
	flags     CancelFlagStore
}

// NewService 创建同步任务服务
func NewService(jobs repository.SyncJobRepository, publisher JobPublisher, flags CancelFlagStore) *Service {
	return &Service{
		jobs:      jobs,
		publisher: publisher,
		flags:     flags,
	}
}

// Submit 提交同步任务：持久化后投递到消息队列，立即返回任务
func (s *Service) Submit(ctx context.Context, contextID string, kind entity.SourceKind, sourceRef string) (*entity.SyncJob, error) {
	ctx, span := tracer.Start(ctx, "sync.Submit",
		trace.WithAttributes(
			attribute.String("context_id", contextID),
			attribute.String("source_kind", string(kind)),
		))
	defer span.End()

	if contextID == "" {
		return nil, errors.ErrContextRequired
	}
	if !kind.Valid() {
		return nil, errors.New(errors.CodeInvalidParam, "unknown source kind").WithDetail(string(kind))
	}
	if sourceRef == "" {
		return nil, errors.New(errors.CodeInvalidParam, "sourceRef is required")
	}

	job := entity.NewSyncJob(uuid.NewString(), contextID, kind, sourceRef)
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	_, err := s.publisher.PublishSyncJob(ctx, &messaging.SyncJobMessage{
		JobID:      job.ID,
		ContextID:  job.ContextID,
		SourceKind: string(job.SourceKind),
		SourceRef:  job.SourceRef,
	})
	if err != nil {
		// 投递失败的任务直接标记失败，避免永久 pending
		job.Fail("failed to enqueue job")
		if updateErr := s.jobs.Update(ctx, job); updateErr != nil {
			logger.FromContext(ctx).Error("failed to mark unenqueued job as failed",
				"job_id", job.ID, "error", updateErr)
		}
		return nil, errors.Wrap(err, errors.CodeSyncFailed, "failed to enqueue sync job")
	}

	logger.FromContext(ctx).Info("sync job submitted",
		"job_id", job.ID,
		"source_kind", job.SourceKind,
		"source_ref", job.SourceRef,
	)
	return job, nil
}

// Status 查询任务状态
func (s *Service) Status(ctx context.Context, jobID string) (*entity.SyncJob, error) {
	if jobID == "" {
		return nil, errors.New(errors.CodeInvalidParam, "jobId is required")
	}
	return s.jobs.GetByID(ctx, jobID)
}

// List 按条件查询任务列表
func (s *Service) List(ctx context.Context, filter *repository.SyncJobFilter, limit int) ([]*entity.SyncJob, error) {
	return s.jobs.List(ctx, filter, limit)
}

// Cancel 请求取消任务
//
// pending 任务直接转为 cancelled；running 任务仅写入取消标记，
// 由 worker 在下一个文档边界观察到后转为终态。已写入的分块保留。
func (s *Service) Cancel(ctx context.Context, jobID string) (*entity.SyncJob, error) {
	ctx, span := tracer.Start(ctx, "sync.Cancel",
		trace.WithAttributes(attribute.String("job_id", jobID)))
	defer span.End()

	if jobID == "" {
		return nil, errors.New(errors.CodeInvalidParam, "jobId is required")
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, errors.New(errors.CodeJobNotRunning, "job already finished").
			WithDetail(string(job.Status))
	}

	// 先写标记再改状态：worker 可能正要把 pending 任务转为 running
	if err := s.flags.Set(ctx, jobID); err != nil {
		return nil, errors.Wrap(err, errors.CodeSyncFailed, "failed to set cancel flag")
	}

	if job.Status == entity.JobStatusPending {
		job.Cancel()
		if err := s.jobs.Update(ctx, job); err != nil {
			return nil, err
		}
	}

	logger.FromContext(ctx).Info("sync job cancellation requested",
		"job_id", jobID, "status", job.Status)
	return job, nil
}
