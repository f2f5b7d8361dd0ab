package handler

import (
	"context"

	"ats-rank-go/internal/ranker"
	"ats-rank-go/internal/types"

	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
)

// QAService 简历问答服务接口，由agent.ResumeQAAgent实现
type QAService interface {
	Ask(ctx context.Context, sessionID, question string, filter ranker.ChunkFilter) (string, error)
	History(ctx context.Context, sessionID string) ([]*schema.Message, error)
	ListSessions(ctx context.Context) ([]string, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// ChatHandler 针对单份简历的多轮问答接口
type ChatHandler struct {
	qa     QAService
	logger zerolog.Logger
}

// NewChatHandler 创建问答Handler
func NewChatHandler(qa QAService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		qa:     qa,
		logger: logger.With().Str("component", "chat_handler").Logger(),
	}
}

// chatRequest 问答请求体，session_id为空时开启新会话
type chatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// Chat 基于指定岗位下某份简历的内容回答问题。
// POST /api/v1/jobs/:job_id/candidates/:file_name/chat
func (h *ChatHandler) Chat(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("job_id")
	fileName := ctx.Param("file_name")
	rid := recruiterID(ctx)
	if jobID == "" || fileName == "" {
		respondBadRequest(ctx, "缺少job_id或file_name")
		return
	}

	var req chatRequest
	if err := ctx.BindAndValidate(&req); err != nil {
		respondBadRequest(ctx, "请求体解析失败: "+err.Error())
		return
	}
	if req.SessionID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			respondError(ctx, err)
			return
		}
		req.SessionID = id.String()
	}

	filter := ranker.ChunkFilter{
		RecruiterID: rid,
		JobID:       jobID,
		DocType:     types.DocTypeResume,
		FileName:    fileName,
	}
	answer, err := h.qa.Ask(c, req.SessionID, req.Question, filter)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("简历问答失败")
		respondError(ctx, err)
		return
	}

	ctx.JSON(consts.StatusOK, utils.H{
		"session_id": req.SessionID,
		"answer":     answer,
	})
}

// ListSessions 列出当前存在历史的问答会话。
// GET /api/v1/chat/sessions
func (h *ChatHandler) ListSessions(c context.Context, ctx *app.RequestContext) {
	sessions, err := h.qa.ListSessions(c)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// SessionHistory 返回一个问答会话的完整历史。
// GET /api/v1/chat/sessions/:session_id/history
func (h *ChatHandler) SessionHistory(c context.Context, ctx *app.RequestContext) {
	sessionID := ctx.Param("session_id")
	if sessionID == "" {
		respondBadRequest(ctx, "缺少session_id")
		return
	}

	history, err := h.qa.History(c, sessionID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	messages := make([]utils.H, 0, len(history))
	for _, msg := range history {
		if msg == nil {
			continue
		}
		messages = append(messages, utils.H{
			"role":    string(msg.Role),
			"content": msg.Content,
		})
	}
	ctx.JSON(consts.StatusOK, utils.H{
		"session_id": sessionID,
		"messages":   messages,
	})
}

// ClearSession 清除一个问答会话的记忆。
// DELETE /api/v1/chat/sessions/:session_id
func (h *ChatHandler) ClearSession(c context.Context, ctx *app.RequestContext) {
	sessionID := ctx.Param("session_id")
	if sessionID == "" {
		respondBadRequest(ctx, "缺少session_id")
		return
	}
	if err := h.qa.ClearSession(c, sessionID); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"session_id": sessionID, "cleared": true})
}
