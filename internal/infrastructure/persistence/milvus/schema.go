package milvus

import (
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionKnowledgeRecords 知识记录集合
	CollectionKnowledgeRecords = "knowledge_records"
)

// KnowledgeRecordsSchema 知识记录 Collection Schema。维度由配置决定。
func KnowledgeRecordsSchema(dimension int) *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionKnowledgeRecords,
		Description:    "Knowledge base text chunks for semantic search",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dimension),
				},
			},
			{
				Name:     "context_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "source_kind",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "source_ref",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "dedup_key",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "created_at",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text_content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// PartitionName 由上下文 ID 生成分区名。分区只做性能上的缩窄，
// 隔离由过滤表达式里的 context_id 保证，所以清洗造成的碰撞无害。
func PartitionName(contextID string) string {
	var sb strings.Builder
	sb.WriteString("ctx_")
	for _, r := range contextID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
