package sync

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"synapse-knowledge-api/internal/application/knowledge"
	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/internal/domain/repository"
	"synapse-knowledge-api/internal/infrastructure/messaging"
	"synapse-knowledge-api/internal/infrastructure/source"
	"synapse-knowledge-api/pkg/errors"
	"synapse-knowledge-api/pkg/logger"
	"synapse-knowledge-api/pkg/metrics"
)

// 每处理若干文档持久化一次计数，避免频繁写库
const progressFlushInterval = 10

// errCancelled 任务在文档边界观察到取消标记
var errCancelled = stderrors.New("sync job cancelled")

// Ingestor 文档摄取端口
type Ingestor interface {
	Ingest(ctx context.Context, contextID string, doc *entity.Document, opts knowledge.IngestOptions) (*knowledge.IngestResult, error)
}

// ConnectorResolver 按数据源类型解析连接器
type ConnectorResolver interface {
	Get(kind entity.SourceKind) (source.Connector, bool)
}

// Runner 同步任务执行器，作为消息消费者的处理函数运行
type Runner struct {
	jobs       repository.SyncJobRepository
	connectors ConnectorResolver
	pipeline   Ingestor
	flags      CancelFlagStore
}

// NewRunner 创建任务执行器
func NewRunner(jobs repository.SyncJobRepository, connectors ConnectorResolver, pipeline Ingestor, flags CancelFlagStore) *Runner {
	return &Runner{
		jobs:       jobs,
		connectors: connectors,
		pipeline:   pipeline,
		flags:      flags,
	}
}

// HandleMessage 处理一条同步任务消息
//
// 返回 nil 即确认消息；任务级失败记录到任务本身而不触发消息重投
func (r *Runner) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	var payload messaging.SyncJobMessage
	if err := msg.UnmarshalPayload(&payload); err != nil {
		logger.FromContext(ctx).Error("invalid sync job payload", "message_id", msg.ID, "error", err)
		return nil
	}

	ctx, span := tracer.Start(ctx, "sync.HandleMessage",
		trace.WithAttributes(
			attribute.String("job_id", payload.JobID),
			attribute.String("source_kind", payload.SourceKind),
		))
	defer span.End()

	job, err := r.jobs.GetByID(ctx, payload.JobID)
	if err != nil {
		if errors.HasCode(err, errors.CodeJobNotFound) {
			logger.FromContext(ctx).Warn("sync job not found, dropping message", "job_id", payload.JobID)
			return nil
		}
		// 数据库暂时不可用，留给消息重投
		return err
	}

	// 重复投递的终态任务直接确认
	if job.Status.Terminal() {
		return nil
	}

	r.Run(ctx, job)
	return nil
}

// Run 执行同步任务直至终态
func (r *Runner) Run(ctx context.Context, job *entity.SyncJob) {
	log := logger.FromContext(ctx)

	// 任务启动前就已请求取消
	if r.flags.IsSet(ctx, job.ID) {
		r.finishCancelled(ctx, job)
		return
	}

	job.Start()
	if err := r.jobs.Update(ctx, job); err != nil {
		log.Error("failed to mark job running", "job_id", job.ID, "error", err)
	}

	connector, ok := r.connectors.Get(job.SourceKind)
	if !ok {
		r.finishFailed(ctx, job, "no connector for source kind: "+string(job.SourceKind))
		return
	}

	err := connector.Fetch(ctx, job.SourceRef, func(doc *entity.Document) error {
		// 取消只在文档边界生效，绝不打断进行中的摄取
		if r.flags.IsSet(ctx, job.ID) {
			return errCancelled
		}

		res, ingestErr := r.pipeline.Ingest(ctx, job.ContextID, doc, knowledge.IngestOptions{Replace: true})
		if ingestErr != nil {
			if errors.IsFatalUpstream(ingestErr) {
				return ingestErr
			}
			// 单文档失败不拖垮整个任务
			job.RecordDocumentFailed()
			log.Warn("document ingestion failed",
				"job_id", job.ID,
				"source_ref", doc.SourceRef,
				"error", ingestErr,
			)
		} else {
			job.RecordDocument(res.ChunksWritten, res.ChunksFailed)
		}

		if job.DocsProcessed%progressFlushInterval == 0 {
			r.flushProgress(ctx, job)
		}
		return nil
	})

	switch {
	case err == nil:
		job.Complete()
		r.finish(ctx, job, "completed")
	case stderrors.Is(err, errCancelled):
		r.finishCancelled(ctx, job)
	case ctx.Err() != nil:
		// 进程关停，任务留在 running，消息重投后重跑
		log.Warn("sync job interrupted by shutdown", "job_id", job.ID)
	default:
		r.finishFailed(ctx, job, err.Error())
	}
}

// flushProgress 持久化当前计数
//
// 文档总数事先未知，进度按已处理数粗略推进，完成时归到 100
func (r *Runner) flushProgress(ctx context.Context, job *entity.SyncJob) {
	progress := job.DocsProcessed
	if progress > 95 {
		progress = 95
	}
	job.UpdateProgress(progress)

	if err := r.jobs.Update(ctx, job); err != nil {
		logger.FromContext(ctx).Warn("failed to flush job progress", "job_id", job.ID, "error", err)
	}
}

func (r *Runner) finishCancelled(ctx context.Context, job *entity.SyncJob) {
	job.Cancel()
	r.finish(ctx, job, "cancelled")
	if err := r.flags.Clear(ctx, job.ID); err != nil {
		logger.FromContext(ctx).Warn("failed to clear cancel flag", "job_id", job.ID, "error", err)
	}
}

func (r *Runner) finishFailed(ctx context.Context, job *entity.SyncJob, errMsg string) {
	job.Fail(errMsg)
	r.finish(ctx, job, "failed")
}

func (r *Runner) finish(ctx context.Context, job *entity.SyncJob, status string) {
	if err := r.jobs.Update(ctx, job); err != nil {
		logger.FromContext(ctx).Error("failed to persist job terminal state",
			"job_id", job.ID, "status", status, "error", err)
	}

	metrics.SyncJobsTotal.WithLabelValues(string(job.SourceKind), status).Inc()
	if job.StartedAt != nil {
		metrics.SyncJobDuration.WithLabelValues(string(job.SourceKind)).
			Observe(time.Since(*job.StartedAt).Seconds())
	}

	logger.FromContext(ctx).Info("sync job finished",
		"job_id", job.ID,
		"status", status,
		"docs_processed", job.DocsProcessed,
		"docs_failed", job.DocsFailed,
		"chunks_written", job.ChunksWritten,
		"chunks_failed", job.ChunksFailed,
	)
}
