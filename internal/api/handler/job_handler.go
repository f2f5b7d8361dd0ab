package handler

import (
	"context"

	"ats-rank-go/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
)

// JobStore 岗位的持久化接口，由MySQL适配器实现
type JobStore interface {
	UpsertJob(ctx context.Context, job *models.Job) error
	GetJobByID(ctx context.Context, jobID string) (*models.Job, error)
	ListJobsByRecruiter(ctx context.Context, recruiterID string) ([]models.Job, error)
}

// JDIndexer 岗位描述的向量化与入库接口，由JDProcessor实现
type JDIndexer interface {
	IndexJobDescription(ctx context.Context, recruiterID, jobID, jdText string) (int, error)
	GetJobDescriptionVector(ctx context.Context, jobID, jdText string) ([]float64, error)
}

// JobHandler 岗位管理接口
type JobHandler struct {
	jobs   JobStore
	jd     JDIndexer
	logger zerolog.Logger
}

// NewJobHandler 创建岗位管理Handler
func NewJobHandler(jobs JobStore, jd JDIndexer, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		jd:     jd,
		logger: logger.With().Str("component", "job_handler").Logger(),
	}
}

// upsertJobRequest 创建或更新岗位的请求体
type upsertJobRequest struct {
	JobID              string   `json:"job_id"`
	JobTitle           string   `json:"job_title"`
	Department         string   `json:"department"`
	Location           string   `json:"location"`
	JobDescriptionText string   `json:"job_description_text"`
	RequiredSkills     []string `json:"required_skills"`
	Status             string   `json:"status"`
}

// UpsertJob 创建或更新岗位，同时对岗位描述做分块入库和整体向量化。
// POST /api/v1/jobs
func (h *JobHandler) UpsertJob(c context.Context, ctx *app.RequestContext) {
	rid := recruiterID(ctx)
	if rid == "" {
		ctx.JSON(consts.StatusUnauthorized, utils.H{"error": "缺少招聘方身份"})
		return
	}

	var req upsertJobRequest
	if err := ctx.BindAndValidate(&req); err != nil {
		respondBadRequest(ctx, "请求体解析失败: "+err.Error())
		return
	}
	if req.JobTitle == "" || req.JobDescriptionText == "" {
		respondBadRequest(ctx, "job_title和job_description_text不能为空")
		return
	}

	if req.JobID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			respondError(ctx, err)
			return
		}
		req.JobID = id.String()
	}
	if req.Status == "" {
		req.Status = models.JobStatusActive
	}

	skillsJSON, err := models.StringsToJSON(req.RequiredSkills)
	if err != nil {
		respondBadRequest(ctx, "required_skills序列化失败")
		return
	}

	job := &models.Job{
		JobID:              req.JobID,
		RecruiterID:        rid,
		JobTitle:           req.JobTitle,
		Department:         req.Department,
		Location:           req.Location,
		JobDescriptionText: req.JobDescriptionText,
		RequiredSkillsJSON: skillsJSON,
		Status:             req.Status,
	}
	if err := h.jobs.UpsertJob(c, job); err != nil {
		h.logger.Error().Err(err).Str("job_id", req.JobID).Msg("保存岗位失败")
		respondError(ctx, err)
		return
	}

	// 岗位描述变化后重建向量索引，失败不回滚岗位本身
	chunkCount, err := h.jd.IndexJobDescription(c, rid, req.JobID, req.JobDescriptionText)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", req.JobID).Msg("岗位描述分块入库失败")
	}
	if _, err := h.jd.GetJobDescriptionVector(c, req.JobID, req.JobDescriptionText); err != nil {
		h.logger.Warn().Err(err).Str("job_id", req.JobID).Msg("岗位描述向量化失败")
	}

	ctx.JSON(consts.StatusOK, utils.H{
		"job_id":      req.JobID,
		"chunk_count": chunkCount,
	})
}

// GetJob 查询单个岗位。
// GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("job_id")
	if jobID == "" {
		respondBadRequest(ctx, "缺少job_id")
		return
	}

	job, err := h.jobs.GetJobByID(c, jobID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if rid := recruiterID(ctx); rid != "" && job.RecruiterID != rid {
		ctx.JSON(consts.StatusForbidden, utils.H{"error": "无权访问该岗位"})
		return
	}

	skills, _ := models.JSONToStrings(job.RequiredSkillsJSON)
	ctx.JSON(consts.StatusOK, utils.H{
		"job_id":               job.JobID,
		"job_title":            job.JobTitle,
		"department":           job.Department,
		"location":             job.Location,
		"job_description_text": job.JobDescriptionText,
		"required_skills":      skills,
		"status":               job.Status,
		"created_at":           job.CreatedAt,
		"updated_at":           job.UpdatedAt,
	})
}

// ListJobs 列出当前招聘方的全部岗位。
// GET /api/v1/jobs
func (h *JobHandler) ListJobs(c context.Context, ctx *app.RequestContext) {
	rid := recruiterID(ctx)
	if rid == "" {
		ctx.JSON(consts.StatusUnauthorized, utils.H{"error": "缺少招聘方身份"})
		return
	}

	jobs, err := h.jobs.ListJobsByRecruiter(c, rid)
	if err != nil {
		respondError(ctx, err)
		return
	}

	items := make([]utils.H, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, utils.H{
			"job_id":     job.JobID,
			"job_title":  job.JobTitle,
			"status":     job.Status,
			"created_at": job.CreatedAt,
		})
	}
	ctx.JSON(consts.StatusOK, utils.H{"jobs": items, "total": len(items)})
}
