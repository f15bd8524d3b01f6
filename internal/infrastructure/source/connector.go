package source

import (
	"context"

	"go.opentelemetry.io/otel"

	"synapse-knowledge-api/internal/domain/entity"
)

var tracer = otel.Tracer("infrastructure/source")

// EmitFunc 逐文档回调，返回非 nil 错误时终止迭代
type EmitFunc func(doc *entity.Document) error

// Connector 外部数据源连接器
//
// Fetch 按 sourceRef 拉取文档并逐个回调 emit，
// 单个文档拉取失败由连接器自行记录并继续，
// 只有整个数据源不可用时才返回错误。
type Connector interface {
	Kind() entity.SourceKind
	Fetch(ctx context.Context, sourceRef string, emit EmitFunc) error
}

// Registry 按数据源类型查找连接器
type Registry struct {
	connectors map[entity.SourceKind]Connector
}

// NewRegistry 创建连接器注册表
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[entity.SourceKind]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Kind()] = c
	}
	return r
}

// Get 获取指定类型的连接器
func (r *Registry) Get(kind entity.SourceKind) (Connector, bool) {
	c, ok := r.connectors[kind]
	return c, ok
}
