package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/pkg/errors"
	"synapse-knowledge-api/pkg/logger"
	"synapse-knowledge-api/pkg/metrics"
)

const (
	defaultChunkMaxTokens     = 512
	defaultChunkOverlapTokens = 20
	defaultEmbedConcurrency   = 4
)

// Pipeline 摄取流水线：切分 → 向量化 → 写入向量索引。
// 每个分块独立向量化，单块失败不拖垮同文档的其他分块；
// 上游致命错误（认证、维度配置）立即停止调度剩余分块。
type Pipeline struct {
	embedder Embedder
	vector   VectorStore

	maxTokens     int
	overlapTokens int
	concurrency   int
}

// NewPipeline 创建摄取流水线
func NewPipeline(embedder Embedder, vector VectorStore, maxTokens, overlapTokens, concurrency int) *Pipeline {
	if maxTokens <= 0 {
		maxTokens = defaultChunkMaxTokens
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		overlapTokens = defaultChunkOverlapTokens
	}
	if concurrency <= 0 {
		concurrency = defaultEmbedConcurrency
	}
	return &Pipeline{
		embedder:      embedder,
		vector:        vector,
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
		concurrency:   concurrency,
	}
}

// Ingest 摄取一篇文档到指定上下文。
// 空白文档产生零分块，返回全零结果；所有分块都失败时返回错误。
func (p *Pipeline) Ingest(ctx context.Context, contextID string, doc *entity.Document, opts IngestOptions) (*IngestResult, error) {
	if strings.TrimSpace(contextID) == "" {
		return nil, errors.ErrContextRequired
	}
	if doc == nil {
		return nil, errors.New(errors.CodeInvalidParam, "文档不能为空")
	}
	if !doc.SourceKind.Valid() {
		return nil, errors.New(errors.CodeInvalidParam, "未知的来源类型").WithDetail(string(doc.SourceKind))
	}

	start := time.Now()
	defer func() {
		metrics.IngestDocumentDuration.WithLabelValues(string(doc.SourceKind)).Observe(time.Since(start).Seconds())
	}()

	chunks := SplitTokens(doc.Text, p.maxTokens, p.overlapTokens)
	if len(chunks) == 0 {
		return &IngestResult{}, nil
	}

	if err := p.vector.EnsureCollection(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CodeVectorStoreError, "向量索引未就绪")
	}

	dedupKey := ""
	if opts.Replace {
		dedupKey = DedupKey(contextID, doc.Text)
		if err := p.vector.DeleteByFilter(ctx, map[string]string{
			"context_id": contextID,
			"dedup_key":  dedupKey,
		}); err != nil {
			return nil, errors.Wrap(err, errors.CodeVectorStoreError, "去重删除失败")
		}
	}

	vectors := make([][]float32, len(chunks))
	chunkErrs := make([]error, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for idx, chunk := range chunks {
		g.Go(func() error {
			// 已因致命错误取消时不再调用上游
			if err := gctx.Err(); err != nil {
				chunkErrs[idx] = err
				return nil
			}
			vec, err := p.embedder.Embed(gctx, chunk)
			if err != nil {
				// 致命错误向 errgroup 传播，取消尚未调度的分块；
				// 瞬时/其他错误只记为该分块失败
				if errors.IsFatalUpstream(err) {
					return err
				}
				chunkErrs[idx] = err
				return nil
			}
			vectors[idx] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.IngestChunksTotal.WithLabelValues(string(doc.SourceKind), "failed").Add(float64(len(chunks)))
		return nil, errors.Wrap(err, errors.CodeIngestionFailed, "向量化遇到致命错误")
	}

	now := time.Now()
	records := make([]*entity.Record, 0, len(chunks))
	failed := 0
	for idx, chunk := range chunks {
		if chunkErrs[idx] != nil {
			failed++
			logger.Warn(ctx, "分块向量化失败",
				"chunk_index", idx,
				"source_ref", doc.SourceRef,
				"error", chunkErrs[idx],
			)
			continue
		}
		records = append(records, &entity.Record{
			ID:         uuid.NewString(),
			Text:       chunk,
			ContextID:  contextID,
			SourceKind: doc.SourceKind,
			SourceRef:  doc.SourceRef,
			DedupKey:   dedupKey,
			Embedding:  vectors[idx],
			Attributes: opts.Attributes,
			CreatedAt:  now,
		})
	}

	written := 0
	if len(records) > 0 {
		n, err := p.vector.Upsert(ctx, records)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeVectorStoreError, "向量写入失败")
		}
		written = n
		failed += len(records) - n
	}

	metrics.IngestChunksTotal.WithLabelValues(string(doc.SourceKind), "written").Add(float64(written))
	metrics.IngestChunksTotal.WithLabelValues(string(doc.SourceKind), "failed").Add(float64(failed))

	if written == 0 {
		return nil, errors.New(errors.CodeIngestionFailed, "文档所有分块均摄取失败")
	}

	return &IngestResult{
		ChunksTotal:   len(chunks),
		ChunksWritten: written,
		ChunksFailed:  failed,
	}, nil
}

// DedupKey 由上下文与文档全文派生去重键
func DedupKey(contextID, text string) string {
	h := sha256.New()
	h.Write([]byte(contextID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
