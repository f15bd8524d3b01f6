package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	appsync "synapse-knowledge-api/internal/application/sync"
	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/internal/domain/repository"
	"synapse-knowledge-api/internal/interfaces/http/dto"
)

// SyncHandler 数据源同步任务处理器
type SyncHandler struct {
	svc *appsync.Service
}

// NewSyncHandler 创建同步任务处理器
func NewSyncHandler(svc *appsync.Service) *SyncHandler {
	return &SyncHandler{svc: svc}
}

// SubmitSlack 提交 Slack 同步任务
// @Summary 从 Slack 频道同步消息到指定上下文
// @Tags Sync
// @Accept json
// @Produce json
// @Param body body dto.SyncRequest true "同步请求"
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/sync/slack [post]
func (h *SyncHandler) SubmitSlack(c *gin.Context) {
	h.submit(c, entity.SourceKindChat)
}

// SubmitGitHub 提交 GitHub 同步任务
// @Summary 从 GitHub 仓库同步文档和 issue 到指定上下文
// @Tags Sync
// @Accept json
// @Produce json
// @Param body body dto.SyncRequest true "同步请求"
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/sync/github [post]
func (h *SyncHandler) SubmitGitHub(c *gin.Context) {
	h.submit(c, entity.SourceKindRepository)
}

func (h *SyncHandler) submit(c *gin.Context, kind entity.SourceKind) {
	var req dto.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	job, err := h.svc.Submit(c.Request.Context(), req.ContextID, kind, req.SourceRef)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Accepted(c, dto.NewJobResponse(job))
}

// GetJob 查询任务状态
// @Summary 查询同步任务的状态与进度
// @Tags Sync
// @Produce json
// @Param jid path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/jobs/{jid} [get]
func (h *SyncHandler) GetJob(c *gin.Context) {
	job, err := h.svc.Status(c.Request.Context(), c.Param("jid"))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.NewJobResponse(job))
}

// ListJobs 查询任务列表
// @Summary 按上下文/状态查询同步任务
// @Tags Sync
// @Produce json
// @Param context_id query string false "上下文 ID"
// @Param status query string false "任务状态"
// @Success 200 {object} dto.Response[dto.JobListResponse]
// @Router /v1/jobs [get]
func (h *SyncHandler) ListJobs(c *gin.Context) {
	filter := &repository.SyncJobFilter{
		ContextID: strings.TrimSpace(c.Query("context_id")),
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		filter.Status = entity.JobStatus(status)
	}
	if kind := strings.TrimSpace(c.Query("source_kind")); kind != "" {
		filter.SourceKind = entity.SourceKind(kind)
	}

	jobs, err := h.svc.List(c.Request.Context(), filter, 0)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	resp := dto.JobListResponse{Jobs: make([]*dto.JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, dto.NewJobResponse(job))
	}
	dto.Success(c, resp)
}

// CancelJob 取消任务
// @Summary 请求取消同步任务，已写入的数据保留
// @Tags Sync
// @Produce json
// @Param jid path string true "任务 ID"
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/jobs/{jid}/cancel [post]
func (h *SyncHandler) CancelJob(c *gin.Context) {
	job, err := h.svc.Cancel(c.Request.Context(), c.Param("jid"))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Accepted(c, dto.NewJobResponse(job))
}
