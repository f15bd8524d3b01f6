package knowledge

import (
	"context"
	"strings"

	"synapse-knowledge-api/pkg/errors"
)

const (
	defaultTopK = 5
	maxTopK     = 50
)

// Engine 检索引擎：把问题向量化后在指定上下文内做 top-k 相似检索。
// context_id 过滤是强制的，额外过滤条件只能叠加、不能移除它。
type Engine struct {
	embedder Embedder
	vector   VectorStore

	topK int
}

// NewEngine 创建检索引擎。topK <= 0 时使用默认值。
func NewEngine(embedder Embedder, vector VectorStore, topK int) *Engine {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Engine{
		embedder: embedder,
		vector:   vector,
		topK:     topK,
	}
}

// Retrieve 在 q.ContextID 内检索与问题最相似的记录。
// 零命中返回空结果而非错误。
func (e *Engine) Retrieve(ctx context.Context, q Query) (*RetrievalResult, error) {
	q.ContextID = strings.TrimSpace(q.ContextID)
	q.Question = strings.TrimSpace(q.Question)
	if q.ContextID == "" {
		return nil, errors.ErrContextRequired
	}
	if q.Question == "" {
		return nil, errors.New(errors.CodeInvalidParam, "问题不能为空")
	}
	if cid, ok := q.Filters["context_id"]; ok && cid != q.ContextID {
		return nil, errors.New(errors.CodeMalformedFilter, "过滤条件不允许覆盖 context_id")
	}
	topK := q.TopK
	if topK <= 0 {
		topK = e.topK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	vec, err := e.embedder.Embed(ctx, q.Question)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRetrievalFailed, "问题向量化失败")
	}

	if err := e.vector.EnsureCollection(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CodeVectorStoreError, "向量索引未就绪")
	}

	filters := make(map[string]string, len(q.Filters))
	for k, v := range q.Filters {
		if k == "context_id" {
			continue
		}
		filters[k] = v
	}

	matches, err := e.vector.Search(ctx, &SearchParams{
		ContextID:   q.ContextID,
		QueryVector: vec,
		TopK:        topK,
		Filters:     filters,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRetrievalFailed, "向量检索失败")
	}

	out := &RetrievalResult{Matches: make([]Match, 0, len(matches))}
	for _, m := range matches {
		if m == nil {
			continue
		}
		out.Matches = append(out.Matches, *m)
	}
	return out, nil
}
