// Package handler 提供 HTTP 请求处理器
package handler

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"synapse-knowledge-api/internal/application/knowledge"
	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/internal/interfaces/http/dto"
	"synapse-knowledge-api/pkg/errors"
	"synapse-knowledge-api/pkg/logger"
)

const defaultMaxUploadBytes = 4 << 20

// 上传仅接受纯文本格式
var allowedUploadExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// KnowledgeHandler 知识库处理器：上传、问答、查询改写、上下文清理
type KnowledgeHandler struct {
	pipeline       *knowledge.Pipeline
	engine         *knowledge.Engine
	synthesizer    *knowledge.Synthesizer
	rewriter       *knowledge.Rewriter // 查询改写未开启时为 nil
	vector         knowledge.VectorStore
	maxUploadBytes int64
}

// NewKnowledgeHandler 创建知识库处理器
func NewKnowledgeHandler(
	pipeline *knowledge.Pipeline,
	engine *knowledge.Engine,
	synthesizer *knowledge.Synthesizer,
	rewriter *knowledge.Rewriter,
	vector knowledge.VectorStore,
	maxUploadBytes int64,
) *KnowledgeHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &KnowledgeHandler{
		pipeline:       pipeline,
		engine:         engine,
		synthesizer:    synthesizer,
		rewriter:       rewriter,
		vector:         vector,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload 上传文档
// @Summary 上传文档到指定上下文
// @Description 接收 .txt/.md 文件，切分、向量化并写入上下文的知识库
// @Tags Knowledge
// @Accept multipart/form-data
// @Produce json
// @Param context_id formData string true "上下文 ID"
// @Param file formData file true "文档文件"
// @Success 200 {object} dto.Response[dto.UploadResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/documents [post]
func (h *KnowledgeHandler) Upload(c *gin.Context) {
	contextID := strings.TrimSpace(c.PostForm("context_id"))
	if contextID == "" {
		dto.FromError(c, errors.ErrContextRequired)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		dto.BadRequest(c, "file is required")
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedUploadExtensions[ext] {
		dto.FromError(c, errors.New(errors.CodeUnsupportedContent,
			"only .txt and .md files are supported").WithDetail(ext))
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		dto.BadRequest(c, "file too large")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		dto.InternalError(c, "failed to open upload")
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		dto.InternalError(c, "failed to read upload")
		return
	}
	if int64(len(content)) > h.maxUploadBytes {
		dto.BadRequest(c, "file too large")
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.ContextIDKey, contextID)
	doc := &entity.Document{
		Text:       string(content),
		SourceKind: entity.SourceKindUpload,
		SourceRef:  fileHeader.Filename,
	}

	result, err := h.pipeline.Ingest(ctx, contextID, doc, knowledge.IngestOptions{Replace: true})
	if err != nil {
		logger.Warn(ctx, "document upload failed", "source_ref", doc.SourceRef, "error", err)
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.UploadResponse{
		ContextID:     contextID,
		SourceRef:     doc.SourceRef,
		ChunksTotal:   result.ChunksTotal,
		ChunksWritten: result.ChunksWritten,
		ChunksFailed:  result.ChunksFailed,
	})
}

// Query 知识问答
// @Summary 在指定上下文内检索并生成带引用的回答
// @Tags Knowledge
// @Accept json
// @Produce json
// @Param body body dto.QueryRequest true "问答请求"
// @Success 200 {object} dto.Response[dto.QueryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/query [post]
func (h *KnowledgeHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.ContextIDKey, req.ContextID)

	question := req.Question
	rewritten := ""
	if req.Rewrite && h.rewriter != nil {
		out, err := h.rewriter.Rewrite(ctx, req.Question)
		if err != nil {
			// 改写失败降级为原始问题，不中断请求
			logger.Warn(ctx, "query rewrite failed, using original question", "error", err)
		} else if out != req.Question {
			question = out
			rewritten = out
		}
	}

	query := knowledge.Query{
		ContextID: req.ContextID,
		Question:  question,
		TopK:      req.TopK,
		Filters:   req.Filters,
	}

	result, err := h.engine.Retrieve(ctx, query)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	answer, err := h.synthesizer.Synthesize(ctx, query, result)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.NewQueryResponse(answer, rewritten))
}

// Transform 查询改写
// @Summary 将口语化问题改写为检索友好的形式
// @Tags Knowledge
// @Accept json
// @Produce json
// @Param body body dto.TransformRequest true "改写请求"
// @Success 200 {object} dto.Response[dto.TransformResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/query/transform [post]
func (h *KnowledgeHandler) Transform(c *gin.Context) {
	if h.rewriter == nil {
		dto.FromError(c, errors.New(errors.CodeServiceUnavailable, "query rewrite is disabled"))
		return
	}

	var req dto.TransformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	rewritten, err := h.rewriter.Rewrite(c.Request.Context(), req.Question)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.TransformResponse{
		Original:  req.Question,
		Rewritten: rewritten,
	})
}

// DeleteContext 清空指定上下文的全部知识
// @Summary 删除上下文的所有向量记录
// @Tags Knowledge
// @Produce json
// @Param cid path string true "上下文 ID"
// @Success 204
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/contexts/{cid} [delete]
func (h *KnowledgeHandler) DeleteContext(c *gin.Context) {
	contextID := strings.TrimSpace(c.Param("cid"))
	if contextID == "" {
		dto.FromError(c, errors.ErrContextRequired)
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.ContextIDKey, contextID)
	if err := h.vector.DeleteByFilter(ctx, map[string]string{"context_id": contextID}); err != nil {
		dto.FromError(c, err)
		return
	}

	logger.Info(ctx, "context knowledge deleted")
	dto.NoContent(c)
}
