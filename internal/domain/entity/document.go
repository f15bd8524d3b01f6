// Package entity 定义领域实体
package entity

// SourceKind 数据来源类型
type SourceKind string

const (
	SourceKindUpload     SourceKind = "upload"
	SourceKindChat       SourceKind = "chat"
	SourceKindRepository SourceKind = "repository"
)

// Valid 判断来源类型是否合法
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindUpload, SourceKindChat, SourceKindRepository:
		return true
	default:
		return false
	}
}

// Document 摄取期间的瞬态文档。只在 Ingestion Pipeline 消费一次，不落库。
type Document struct {
	Text       string
	SourceKind SourceKind
	// SourceRef 来源定位符：文件名、频道 ID、owner/repo#path 等
	SourceRef string
}
