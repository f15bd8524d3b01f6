package dto

import (
	"synapse-knowledge-api/internal/application/knowledge"
)

// UploadResponse 文档上传响应
type UploadResponse struct {
	ContextID     string `json:"context_id"`
	SourceRef     string `json:"source_ref"`
	ChunksTotal   int    `json:"chunks_total"`
	ChunksWritten int    `json:"chunks_written"`
	ChunksFailed  int    `json:"chunks_failed"`
}

// QueryRequest 知识问答请求
type QueryRequest struct {
	ContextID string            `json:"context_id" binding:"required,max=128"`
	Question  string            `json:"question" binding:"required,max=5000"`
	TopK      int               `json:"top_k,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
	// Rewrite 是否先对问题做检索友好改写（需服务端开启该功能）
	Rewrite bool `json:"rewrite,omitempty"`
}

// Source 回答引用的知识来源
type Source struct {
	Index     int     `json:"index"`
	RecordID  string  `json:"record_id"`
	SourceRef string  `json:"source_ref,omitempty"`
	Excerpt   string  `json:"excerpt"`
	Score     float64 `json:"score"`
}

// QueryResponse 知识问答响应
type QueryResponse struct {
	Answer   string   `json:"answer"`
	Grounded bool     `json:"grounded"`
	Sources  []Source `json:"sources"`
	// RewrittenQuestion 实际用于检索的问题，未改写时为空
	RewrittenQuestion string `json:"rewritten_question,omitempty"`
}

// NewQueryResponse 由合成结果构建响应
func NewQueryResponse(ans *knowledge.Answer, rewritten string) *QueryResponse {
	resp := &QueryResponse{
		Answer:            ans.Text,
		Grounded:          ans.Grounded,
		Sources:           make([]Source, 0, len(ans.Citations)),
		RewrittenQuestion: rewritten,
	}
	for _, cit := range ans.Citations {
		resp.Sources = append(resp.Sources, Source{
			Index:     cit.Index,
			RecordID:  cit.RecordID,
			SourceRef: cit.SourceRef,
			Excerpt:   cit.Excerpt,
			Score:     cit.Score,
		})
	}
	return resp
}

// TransformRequest 查询改写请求
type TransformRequest struct {
	Question string `json:"question" binding:"required,max=5000"`
}

// TransformResponse 查询改写响应
type TransformResponse struct {
	Original  string `json:"original"`
	Rewritten string `json:"rewritten"`
}
