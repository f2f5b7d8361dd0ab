package handler

import (
	"context"
	"errors"
	"time"

	"ats-rank-go/internal/storage"
	"ats-rank-go/internal/storage/models"
	"ats-rank-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SingleEvaluator 单候选人同步评估接口，由ranker.Orchestrator实现
type SingleEvaluator interface {
	EvaluateSingle(ctx context.Context, recruiterID, jobID, fileName string) (*types.CandidateResult, error)
	SkillDetails(ctx context.Context, recruiterID, jobID, fileName string) (*types.SkillMatch, error)
}

// RankResultCache 批量评估结果的缓存读取接口，由Redis适配器实现
type RankResultCache interface {
	GetCachedRankedBatch(ctx context.Context, recruiterID, jobID string) (*types.RankedBatch, error)
}

// RankResultStore 批量评估结果的持久化读取接口，由MySQL适配器实现
type RankResultStore interface {
	ListRankResults(ctx context.Context, jobID string) ([]models.JobCandidateScore, error)
}

// RankHandler 候选人评估接口。
// 单人评估与技能明细同步返回；批量评估走消息队列异步执行，结果通过查询接口获取。
type RankHandler struct {
	evaluator   SingleEvaluator
	publisher   EventPublisher
	cache       RankResultCache
	store       RankResultStore
	exchange    string
	routingKey  string
	defaultMode types.CostMode
	logger      zerolog.Logger
}

// NewRankHandler 创建评估Handler
func NewRankHandler(
	evaluator SingleEvaluator,
	publisher EventPublisher,
	cache RankResultCache,
	store RankResultStore,
	exchange, routingKey, defaultMode string,
	logger zerolog.Logger,
) *RankHandler {
	mode := types.CostMode(defaultMode)
	if !mode.Valid() {
		mode = types.CostModeAuto
	}
	return &RankHandler{
		evaluator:   evaluator,
		publisher:   publisher,
		cache:       cache,
		store:       store,
		exchange:    exchange,
		routingKey:  routingKey,
		defaultMode: mode,
		logger:      logger.With().Str("component", "rank_handler").Logger(),
	}
}

// EvaluateSingle 同步评估单个候选人。
// POST /api/v1/jobs/:job_id/candidates/:file_name/evaluate
func (h *RankHandler) EvaluateSingle(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("job_id")
	fileName := ctx.Param("file_name")
	rid := recruiterID(ctx)
	if jobID == "" || fileName == "" {
		respondBadRequest(ctx, "缺少job_id或file_name")
		return
	}

	result, err := h.evaluator.EvaluateSingle(c, rid, jobID, fileName)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Str("file_name", fileName).Msg("单人评估失败")
		respondError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, result)
}

// SkillDetails 返回单个候选人的技能对照明细。
// GET /api/v1/jobs/:job_id/candidates/:file_name/skills
func (h *RankHandler) SkillDetails(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("job_id")
	fileName := ctx.Param("file_name")
	rid := recruiterID(ctx)
	if jobID == "" || fileName == "" {
		respondBadRequest(ctx, "缺少job_id或file_name")
		return
	}

	match, err := h.evaluator.SkillDetails(c, rid, jobID, fileName)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, match)
}

// rankRequest 批量评估请求体。
// 评估始终覆盖该岗位下的全部简历，粒度与结果缓存一致。
type rankRequest struct {
	Mode string `json:"mode"`
}

// RequestRank 发起一次异步批量评估，立即返回202。
// POST /api/v1/jobs/:job_id/rank
func (h *RankHandler) RequestRank(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("job_id")
	rid := recruiterID(ctx)
	if jobID == "" {
		respondBadRequest(ctx, "缺少job_id")
		return
	}
	if rid == "" {
		ctx.JSON(consts.StatusUnauthorized, utils.H{"error": "缺少招聘方身份"})
		return
	}

	var req rankRequest
	if err := ctx.BindAndValidate(&req); err != nil && len(ctx.Request.Body()) > 0 {
		respondBadRequest(ctx, "请求体解析失败: "+err.Error())
		return
	}
	mode := types.CostMode(req.Mode)
	if req.Mode == "" {
		mode = h.defaultMode
	} else if !mode.Valid() {
		respondBadRequest(ctx, "mode必须是fast、auto或full之一")
		return
	}

	msg := storage.RankRequestedMessage{
		RecruiterID: rid,
		JobID:       jobID,
		Mode:        string(mode),
		RequestedAt: time.Now(),
	}
	if err := h.publisher.PublishJSON(c, h.exchange, h.routingKey, msg, true); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("发布批量评估请求失败")
		respondError(ctx, err)
		return
	}

	ctx.JSON(consts.StatusAccepted, utils.H{
		"job_id": jobID,
		"mode":   string(mode),
		"status": "queued",
	})
}

// GetRankResults 查询批量评估结果。
// 优先读Redis缓存，缓存过期后回退MySQL持久化结果。
// GET /api/v1/jobs/:job_id/rank
func (h *RankHandler) GetRankResults(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("job_id")
	rid := recruiterID(ctx)
	if jobID == "" {
		respondBadRequest(ctx, "缺少job_id")
		return
	}

	batch, err := h.cache.GetCachedRankedBatch(c, rid, jobID)
	if err == nil && batch != nil {
		ctx.JSON(consts.StatusOK, utils.H{"source": "cache", "result": batch})
		return
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("读取评估缓存失败，回退数据库")
	}

	rows, err := h.store.ListRankResults(c, jobID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if len(rows) == 0 {
		ctx.JSON(consts.StatusNotFound, utils.H{"error": "该岗位暂无评估结果"})
		return
	}

	candidates := make([]utils.H, 0, len(rows))
	for _, row := range rows {
		matched, _ := models.JSONToStrings(row.MatchedSkillsJSON)
		missing, _ := models.JSONToStrings(row.MissingSkillsJSON)
		candidates = append(candidates, utils.H{
			"file_name":          row.FileName,
			"keyword_score":      row.KeywordScore,
			"embedding_score":    row.EmbeddingScore,
			"llm_score":          row.LLMScore,
			"prelim_score":       row.PrelimScore,
			"final_score":        row.FinalScore,
			"matched_skills":     matched,
			"missing_skills":     missing,
			"skill_match_status": row.SkillMatchStatus,
		})
	}
	resp := utils.H{
		"source":     "store",
		"job_id":     jobID,
		"candidates": candidates,
	}
	if len(rows) > 0 {
		resp["mode"] = rows[0].RankMode
		if rows[0].EvaluatedAt != nil {
			resp["evaluated_at"] = rows[0].EvaluatedAt
		}
	}
	ctx.JSON(consts.StatusOK, resp)
}
