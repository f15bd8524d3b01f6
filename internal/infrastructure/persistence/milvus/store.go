package milvus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"synapse-knowledge-api/internal/application/knowledge"
	domainentity "synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/pkg/errors"
	"synapse-knowledge-api/pkg/metrics"
)

const defaultSearchEf = 128

// Store Milvus 向量索引实现。
// 隔离约束：所有检索/删除表达式都带 context_id 精确匹配，分区只做缩窄。
type Store struct {
	client    *Client
	dimension int
	searchEf  int

	ensureMu sync.Mutex
	ready    bool
}

var _ knowledge.VectorStore = (*Store)(nil)

// NewStore 创建 Milvus 向量索引
func NewStore(client *Client, dimension int) *Store {
	searchEf := defaultSearchEf
	if client != nil && client.config != nil && client.config.SearchEf > 0 {
		searchEf = client.config.SearchEf
	}
	return &Store{
		client:    client,
		dimension: dimension,
		searchEf:  searchEf,
	}
}

// EnsureCollection 确保集合与索引可用，不存在则创建。
// 不做 drop/rebuild 等破坏性操作。
func (s *Store) EnsureCollection(ctx context.Context) error {
	if s == nil {
		return errors.New(errors.CodeVectorStoreError, "milvus 客户端未配置")
	}

	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ready {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		// 失败保持未就绪，下次调用重试
		return err
	}
	s.ready = true
	return nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	if s.client == nil || s.client.milvus == nil {
		return errors.New(errors.CodeVectorStoreError, "milvus 客户端未配置")
	}
	exists, err := s.client.HasCollection(ctx, CollectionKnowledgeRecords)
	if err != nil {
		return errors.Wrap(err, errors.CodeVectorStoreError, "检查集合失败")
	}
	if !exists {
		schema := KnowledgeRecordsSchema(s.dimension)
		schema.CollectionName = s.client.CollectionName(CollectionKnowledgeRecords)
		if err := s.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return errors.Wrap(err, errors.CodeVectorStoreError, "创建集合失败")
		}
		if err := s.createIndex(ctx); err != nil {
			return err
		}
	}
	if err := s.client.LoadCollection(ctx, CollectionKnowledgeRecords); err != nil {
		return errors.Wrap(err, errors.CodeVectorStoreError, "加载集合失败")
	}
	return nil
}

func (s *Store) createIndex(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex")
	defer span.End()

	m := s.client.config.HNSWM
	if m <= 0 {
		m = 16
	}
	efConstruction := s.client.config.HNSWEfConstruction
	if efConstruction <= 0 {
		efConstruction = 200
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, m, efConstruction)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, errors.CodeVectorStoreError, "构建索引参数失败")
	}
	if err := s.client.milvus.CreateIndex(ctx, s.client.CollectionName(CollectionKnowledgeRecords), "vector", idx, false); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, errors.CodeVectorStoreError, "创建索引失败")
	}
	return nil
}

// Upsert 插入记录。逐条校验后整批列式写入。
func (s *Store) Upsert(ctx context.Context, records []*domainentity.Record) (int, error) {
	if s == nil || s.client == nil || s.client.milvus == nil {
		return 0, errors.New(errors.CodeVectorStoreError, "milvus 客户端未配置")
	}
	if len(records) == 0 {
		return 0, nil
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(attribute.Int("count", len(records))))
	defer span.End()

	contextID := records[0].ContextID
	valid := make([]*domainentity.Record, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if err := r.Validate(s.dimension); err != nil {
			return 0, err
		}
		if r.ContextID != contextID {
			return 0, errors.New(errors.CodeInvalidParam, "同批记录必须属于同一上下文")
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	collName := s.client.CollectionName(CollectionKnowledgeRecords)
	partition := PartitionName(contextID)
	if has, err := s.client.milvus.HasPartition(ctx, collName, partition); err != nil {
		span.RecordError(err)
		return 0, errors.Wrap(err, errors.CodeVectorStoreError, "检查分区失败")
	} else if !has {
		if err := s.client.milvus.CreatePartition(ctx, collName, partition); err != nil {
			span.RecordError(err)
			return 0, errors.Wrap(err, errors.CodeVectorStoreError, "创建分区失败")
		}
	}

	ids := make([]string, len(valid))
	vectors := make([][]float32, len(valid))
	contextIDs := make([]string, len(valid))
	sourceKinds := make([]string, len(valid))
	sourceRefs := make([]string, len(valid))
	dedupKeys := make([]string, len(valid))
	createdAts := make([]int64, len(valid))
	texts := make([]string, len(valid))

	for i, r := range valid {
		ids[i] = r.ID
		vectors[i] = r.Embedding
		contextIDs[i] = r.ContextID
		sourceKinds[i] = string(r.SourceKind)
		sourceRefs[i] = r.SourceRef
		dedupKeys[i] = r.DedupKey
		createdAts[i] = r.CreatedAt.Unix()
		texts[i] = r.Text
	}

	_, err := s.client.milvus.Insert(ctx, collName, partition,
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector("vector", s.dimension, vectors),
		entity.NewColumnVarChar("context_id", contextIDs),
		entity.NewColumnVarChar("source_kind", sourceKinds),
		entity.NewColumnVarChar("source_ref", sourceRefs),
		entity.NewColumnVarChar("dedup_key", dedupKeys),
		entity.NewColumnInt64("created_at", createdAts),
		entity.NewColumnVarChar("text_content", texts),
	)
	if err != nil {
		span.RecordError(err)
		metrics.VectorUpsertTotal.WithLabelValues("milvus").Add(0)
		return 0, errors.Wrap(err, errors.CodeVectorStoreError, "写入向量失败")
	}

	metrics.VectorUpsertTotal.WithLabelValues("milvus").Add(float64(len(valid)))
	return len(valid), nil
}

// Search 在指定上下文分区内做向量检索
func (s *Store) Search(ctx context.Context, params *knowledge.SearchParams) ([]*knowledge.Match, error) {
	if s == nil || s.client == nil || s.client.milvus == nil {
		return nil, errors.New(errors.CodeVectorStoreError, "milvus 客户端未配置")
	}
	if params == nil || strings.TrimSpace(params.ContextID) == "" {
		return nil, errors.ErrContextRequired
	}
	if len(params.QueryVector) != s.dimension {
		return nil, errors.New(errors.CodeDimensionMismatch, "查询向量维度不匹配")
	}
	topK := params.TopK
	if topK <= 0 {
		topK = 5
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("context_id", params.ContextID),
			attribute.Int("top_k", topK),
		))
	defer span.End()
	defer func() {
		metrics.VectorSearchDuration.WithLabelValues("milvus").Observe(time.Since(start).Seconds())
	}()

	collName := s.client.CollectionName(CollectionKnowledgeRecords)
	partition := PartitionName(params.ContextID)

	// 分区尚未创建（例如新上下文）时直接返回空结果
	if has, err := s.client.milvus.HasPartition(ctx, collName, partition); err != nil {
		span.RecordError(err)
		metrics.VectorSearchTotal.WithLabelValues("milvus", "error").Inc()
		return nil, errors.Wrap(err, errors.CodeVectorStoreError, "检查分区失败")
	} else if !has {
		metrics.VectorSearchTotal.WithLabelValues("milvus", "ok").Inc()
		return []*knowledge.Match{}, nil
	}

	filter, err := buildFilterExpr(params.ContextID, params.Filters)
	if err != nil {
		return nil, err
	}

	sp, err := entity.NewIndexHNSWSearchParam(s.searchEf)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, errors.CodeVectorStoreError, "构建检索参数失败")
	}

	results, err := s.client.milvus.Search(ctx,
		collName,
		[]string{partition},
		filter,
		[]string{"id", "text_content", "context_id", "source_kind", "source_ref"},
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		metrics.VectorSearchTotal.WithLabelValues("milvus", "error").Inc()
		return nil, errors.Wrap(err, errors.CodeVectorStoreError, "向量检索失败")
	}
	metrics.VectorSearchTotal.WithLabelValues("milvus", "ok").Inc()

	var matches []*knowledge.Match
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			m := &knowledge.Match{
				Score: clampScore(result.Scores[i]),
			}
			if col, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				m.ID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("text_content").(*entity.ColumnVarChar); ok {
				m.Text = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("context_id").(*entity.ColumnVarChar); ok {
				m.ContextID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("source_kind").(*entity.ColumnVarChar); ok {
				m.SourceKind = domainentity.SourceKind(col.Data()[i])
			}
			if col, ok := result.Fields.GetColumn("source_ref").(*entity.ColumnVarChar); ok {
				m.SourceRef = col.Data()[i]
			}
			matches = append(matches, m)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(matches)))
	return matches, nil
}

// DeleteByFilter 按精确匹配条件删除，filter 必须包含 context_id
func (s *Store) DeleteByFilter(ctx context.Context, filter map[string]string) error {
	if s == nil || s.client == nil || s.client.milvus == nil {
		return errors.New(errors.CodeVectorStoreError, "milvus 客户端未配置")
	}
	contextID := filter["context_id"]
	if strings.TrimSpace(contextID) == "" {
		return errors.ErrContextRequired
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteByFilter",
		trace.WithAttributes(attribute.String("context_id", contextID)))
	defer span.End()

	collName := s.client.CollectionName(CollectionKnowledgeRecords)
	partition := PartitionName(contextID)

	if has, err := s.client.milvus.HasPartition(ctx, collName, partition); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, errors.CodeVectorStoreError, "检查分区失败")
	} else if !has {
		return nil
	}

	extra := make(map[string]string, len(filter))
	for k, v := range filter {
		if k == "context_id" {
			continue
		}
		extra[k] = v
	}
	expr, err := buildFilterExpr(contextID, extra)
	if err != nil {
		return err
	}

	if err := s.client.milvus.Delete(ctx, collName, partition, expr); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, errors.CodeVectorStoreError, "删除记录失败")
	}
	return nil
}

var allowedFilterFields = map[string]bool{
	"id":          true,
	"source_kind": true,
	"source_ref":  true,
	"dedup_key":   true,
}

// buildFilterExpr 构建布尔过滤表达式，context_id 永远在第一个子句
func buildFilterExpr(contextID string, extra map[string]string) (string, error) {
	if err := validateExprValue(contextID); err != nil {
		return "", err
	}
	parts := []string{fmt.Sprintf(`context_id == "%s"`, contextID)}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !allowedFilterFields[k] {
			return "", errors.New(errors.CodeMalformedFilter, "不支持的过滤字段").WithDetail(k)
		}
		if err := validateExprValue(extra[k]); err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf(`%s == "%s"`, k, extra[k]))
	}
	return strings.Join(parts, " && "), nil
}

// validateExprValue 拒绝可能破坏表达式语法的值
func validateExprValue(v string) error {
	if strings.ContainsAny(v, `"\`) {
		return errors.New(errors.CodeMalformedFilter, "过滤值包含非法字符")
	}
	return nil
}

// clampScore 把 COSINE 相似度裁剪到 [0,1]
func clampScore(score float32) float64 {
	s := float64(score)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
