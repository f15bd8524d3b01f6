package entity

import (
	"fmt"
	"time"

	"synapse-knowledge-api/pkg/errors"
)

// Record 向量索引中的一条知识记录，对应一个文本分块及其向量
type Record struct {
	ID         string
	Text       string
	ContextID  string
	SourceKind SourceKind
	SourceRef  string
	// DedupKey 内容哈希 + ContextID 派生的去重键，相同键的旧记录在写入时被替换
	DedupKey   string
	Embedding  []float32
	Attributes map[string]string
	CreatedAt  time.Time
}

// Validate 校验记录在写入向量库前的完整性
func (r *Record) Validate(dim int) error {
	if r.ContextID == "" {
		return errors.ErrContextRequired
	}
	if r.ID == "" {
		return errors.New(errors.CodeInvalidParam, "记录 ID 不能为空")
	}
	if r.Text == "" {
		return errors.New(errors.CodeInvalidParam, "记录文本不能为空")
	}
	if len(r.Embedding) != dim {
		return errors.New(errors.CodeDimensionMismatch, "向量维度不匹配").
			WithDetail(fmt.Sprintf("expected %d, got %d", dim, len(r.Embedding)))
	}
	return nil
}
