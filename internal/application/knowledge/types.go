// Package knowledge 实现知识库的摄取、检索与答案合成
package knowledge

import (
	"context"

	"synapse-knowledge-api/internal/domain/entity"
)

// Embedder 应用层对向量化能力的最小依赖（port）。
// 由基础设施层实现（维度校验、重试、错误分类都在实现侧完成）。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Query 检索请求
type Query struct {
	ContextID string
	Question  string
	TopK      int

	// Filters 额外的精确匹配过滤条件，与 context_id 过滤叠加。
	// 不允许覆盖或移除 context_id。
	Filters map[string]string
}

// Match 单条检索命中
type Match struct {
	ID         string
	Text       string
	Score      float64 // 余弦相似度，[0,1]，降序
	ContextID  string
	SourceKind entity.SourceKind
	SourceRef  string
	Attributes map[string]string
}

// RetrievalResult 检索结果。零命中时 Matches 为空，不是错误。
type RetrievalResult struct {
	Matches []Match
}

// Empty 判断是否零命中
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Matches) == 0
}

// Citation 答案引用，指向进入 Prompt 的某条记录
type Citation struct {
	Index     int     `json:"index"`
	RecordID  string  `json:"record_id"`
	SourceRef string  `json:"source_ref,omitempty"`
	Excerpt   string  `json:"excerpt"`
	Score     float64 `json:"score"`
}

// Answer 合成答案
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
	// Grounded 为 false 表示知识库中没有可用内容，答案是固定的兜底回复
	Grounded bool `json:"grounded"`
}

// IngestOptions 摄取选项
type IngestOptions struct {
	// Replace 为 true 时按内容去重键替换同键旧记录；否则重复摄取产生重复记录
	Replace    bool
	Attributes map[string]string
}

// IngestResult 单篇文档的摄取结果
type IngestResult struct {
	ChunksTotal   int `json:"chunks_total"`
	ChunksWritten int `json:"chunks_written"`
	ChunksFailed  int `json:"chunks_failed"`
}
