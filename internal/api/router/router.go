package router

import (
	"context"

	"ats-rank-go/internal/api/handler"
	"ats-rank-go/internal/config"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// Handlers 路由注册需要的全部Handler
type Handlers struct {
	Upload *handler.UploadHandler
	Job    *handler.JobHandler
	Rank   *handler.RankHandler
	Chat   *handler.ChatHandler
}

// RegisterRoutes 注册API路由。
// 健康检查不鉴权；/api/v1下的接口通过X-API-Key认证，密钥映射为招聘方ID写入请求上下文。
func RegisterRoutes(h *server.Hertz, cfg *config.ServerConfig, hs *Handlers) {
	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api := h.Group("/api/v1")
	if len(cfg.APIKeys) > 0 {
		api.Use(apiKeyAuth(cfg.APIKeys))
	}

	api.POST("/resumes", hs.Upload.UploadResume)

	api.POST("/jobs", hs.Job.UpsertJob)
	api.GET("/jobs", hs.Job.ListJobs)
	api.GET("/jobs/:job_id", hs.Job.GetJob)

	api.POST("/jobs/:job_id/rank", hs.Rank.RequestRank)
	api.GET("/jobs/:job_id/rank", hs.Rank.GetRankResults)
	api.POST("/jobs/:job_id/candidates/:file_name/evaluate", hs.Rank.EvaluateSingle)
	api.GET("/jobs/:job_id/candidates/:file_name/skills", hs.Rank.SkillDetails)
	api.POST("/jobs/:job_id/candidates/:file_name/chat", hs.Chat.Chat)

	api.GET("/chat/sessions", hs.Chat.ListSessions)
	api.GET("/chat/sessions/:session_id/history", hs.Chat.SessionHistory)
	api.DELETE("/chat/sessions/:session_id", hs.Chat.ClearSession)
}

// apiKeyAuth 构建API密钥认证中间件，校验通过后把对应的招聘方ID放入请求上下文
func apiKeyAuth(apiKeys map[string]string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:X-API-Key", ""),
		keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
			rid, ok := apiKeys[key]
			if !ok {
				return false, nil
			}
			ctx.Set(handler.RecruiterIDKey, rid)
			return true, nil
		}),
	)
}
