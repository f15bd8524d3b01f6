// Package memory 提供进程内的向量索引实现，用于测试与本地开发。
// 暴力余弦相似检索，分数为 [0,1] 相似度，同分按写入顺序排序。
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"synapse-knowledge-api/internal/application/knowledge"
	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/pkg/errors"
)

// Store 进程内向量索引。不是全局单例，每次 NewStore 都是独立实例。
type Store struct {
	mu        sync.RWMutex
	dimension int
	records   []*entity.Record
}

var _ knowledge.VectorStore = (*Store)(nil)

// NewStore 创建进程内向量索引
func NewStore(dimension int) *Store {
	return &Store{dimension: dimension}
}

// EnsureCollection 进程内实现无需建表
func (s *Store) EnsureCollection(ctx context.Context) error {
	if s.dimension <= 0 {
		return errors.New(errors.CodeVectorStoreError, "向量维度未配置")
	}
	return nil
}

// Upsert 写入记录，逐条校验
func (s *Store) Upsert(ctx context.Context, records []*entity.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, r := range records {
		if r == nil {
			continue
		}
		if err := r.Validate(s.dimension); err != nil {
			return written, err
		}
		cp := *r
		s.records = append(s.records, &cp)
		written++
	}
	return written, nil
}

// Search 暴力余弦检索。ContextID 过滤强制执行，额外过滤条件叠加。
func (s *Store) Search(ctx context.Context, params *knowledge.SearchParams) ([]*knowledge.Match, error) {
	if params == nil || params.ContextID == "" {
		return nil, errors.ErrContextRequired
	}
	if len(params.QueryVector) != s.dimension {
		return nil, errors.New(errors.CodeDimensionMismatch, "查询向量维度不匹配")
	}
	topK := params.TopK
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		order int
		score float64
		rec   *entity.Record
	}
	candidates := make([]scored, 0, len(s.records))
	for i, r := range s.records {
		if r.ContextID != params.ContextID {
			continue
		}
		if !matchesFilters(r, params.Filters) {
			continue
		}
		candidates = append(candidates, scored{
			order: i,
			score: cosineSimilarity(params.QueryVector, r.Embedding),
			rec:   r,
		})
	}

	// 同分保持写入顺序
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if topK > len(candidates) {
		topK = len(candidates)
	}

	out := make([]*knowledge.Match, 0, topK)
	for i := 0; i < topK; i++ {
		c := candidates[i]
		out = append(out, &knowledge.Match{
			ID:         c.rec.ID,
			Text:       c.rec.Text,
			Score:      c.score,
			ContextID:  c.rec.ContextID,
			SourceKind: c.rec.SourceKind,
			SourceRef:  c.rec.SourceRef,
			Attributes: c.rec.Attributes,
		})
	}
	return out, nil
}

// DeleteByFilter 按精确匹配条件删除，必须携带 context_id
func (s *Store) DeleteByFilter(ctx context.Context, filter map[string]string) error {
	contextID, ok := filter["context_id"]
	if !ok || contextID == "" {
		return errors.ErrContextRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, r := range s.records {
		if r.ContextID == contextID && matchesDeleteFilter(r, filter) {
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return nil
}

// Count 返回指定上下文内的记录数，测试用
func (s *Store) Count(contextID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if contextID == "" || r.ContextID == contextID {
			n++
		}
	}
	return n
}

func matchesFilters(r *entity.Record, filters map[string]string) bool {
	for k, v := range filters {
		if !fieldEquals(r, k, v) {
			return false
		}
	}
	return true
}

func matchesDeleteFilter(r *entity.Record, filter map[string]string) bool {
	for k, v := range filter {
		if k == "context_id" {
			continue
		}
		if !fieldEquals(r, k, v) {
			return false
		}
	}
	return true
}

func fieldEquals(r *entity.Record, field, value string) bool {
	switch field {
	case "id":
		return r.ID == value
	case "context_id":
		return r.ContextID == value
	case "source_kind":
		return string(r.SourceKind) == value
	case "source_ref":
		return r.SourceRef == value
	case "dedup_key":
		return r.DedupKey == value
	default:
		return r.Attributes[field] == value
	}
}

// cosineSimilarity 计算余弦相似度并裁剪到 [0,1]
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
