package knowledge

import (
	"context"

	"synapse-knowledge-api/internal/domain/entity"
)

// VectorStore 定义应用层对向量索引的最小依赖（port）。
// 由基础设施层提供具体实现（Milvus 或进程内存储）。
type VectorStore interface {
	// EnsureCollection 确保集合/索引已就绪，可重复调用
	EnsureCollection(ctx context.Context) error

	// Upsert 批量写入记录，尽力而为；返回成功写入条数
	Upsert(ctx context.Context, records []*entity.Record) (int, error)

	// Search 向量检索。实现必须将 ContextID 合入过滤条件，缺失时报错。
	Search(ctx context.Context, params *SearchParams) ([]*Match, error)

	// DeleteByFilter 按精确匹配条件删除。filter 必须包含 context_id。
	DeleteByFilter(ctx context.Context, filter map[string]string) error
}

// SearchParams 向量检索参数
type SearchParams struct {
	ContextID   string
	QueryVector []float32
	TopK        int
	// Filters 额外精确匹配条件，键为字段名；context_id 由 ContextID 强制指定
	Filters map[string]string
}
