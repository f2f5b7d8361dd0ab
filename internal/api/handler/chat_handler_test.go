package handler_test

import (
	"context"
	"encoding/json"
	"testing"

	"ats-rank-go/internal/api/handler"
	"ats-rank-go/internal/ranker"
	"ats-rank-go/internal/types"

	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQAService struct {
	answer     string
	err        error
	lastFilter ranker.ChunkFilter
	cleared    []string
	sessions   []string
	history    map[string][]*schema.Message
}

func (s *stubQAService) Ask(ctx context.Context, sessionID, question string, filter ranker.ChunkFilter) (string, error) {
	s.lastFilter = filter
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *stubQAService) History(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.history[sessionID], nil
}

func (s *stubQAService) ListSessions(ctx context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sessions, nil
}

func (s *stubQAService) ClearSession(ctx context.Context, sessionID string) error {
	s.cleared = append(s.cleared, sessionID)
	return nil
}

func TestChatHandler_Chat(t *testing.T) {
	qa := &stubQAService{answer: "候选人有三年Go开发经验。"}
	h := handler.NewChatHandler(qa, zerolog.Nop())

	e := newTestEngine()
	e.POST("/api/v1/jobs/:job_id/candidates/:file_name/chat", h.Chat)

	body := `{"session_id":"sess-1","question":"他有几年Go经验？"}`
	w := ut.PerformRequest(e, "POST", "/api/v1/jobs/job-1/candidates/wang_wu.pdf/chat",
		&ut.Body{Body: jsonBody(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"},
		ut.Header{Key: "X-Recruiter-ID", Value: "rec-1"})
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var got struct {
		SessionID string `json:"session_id"`
		Answer    string `json:"answer"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &got))
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "候选人有三年Go开发经验。", got.Answer)

	// 检索范围锁定到该岗位下的这一份简历
	assert.Equal(t, "rec-1", qa.lastFilter.RecruiterID)
	assert.Equal(t, "job-1", qa.lastFilter.JobID)
	assert.Equal(t, "wang_wu.pdf", qa.lastFilter.FileName)
	assert.Equal(t, types.DocTypeResume, qa.lastFilter.DocType)
}

func TestChatHandler_Chat_GeneratesSessionID(t *testing.T) {
	qa := &stubQAService{answer: "好的"}
	h := handler.NewChatHandler(qa, zerolog.Nop())

	e := newTestEngine()
	e.POST("/api/v1/jobs/:job_id/candidates/:file_name/chat", h.Chat)

	body := `{"question":"简历里提到过Kubernetes吗？"}`
	w := ut.PerformRequest(e, "POST", "/api/v1/jobs/job-1/candidates/a.pdf/chat",
		&ut.Body{Body: jsonBody(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body(), &got))
	assert.NotEmpty(t, got["session_id"])
}

func TestChatHandler_Chat_EmptyQuestion(t *testing.T) {
	qa := &stubQAService{err: ranker.NewValidationError("job-1", "问题不能为空")}
	h := handler.NewChatHandler(qa, zerolog.Nop())

	e := newTestEngine()
	e.POST("/api/v1/jobs/:job_id/candidates/:file_name/chat", h.Chat)

	body := `{"question":""}`
	w := ut.PerformRequest(e, "POST", "/api/v1/jobs/job-1/candidates/a.pdf/chat",
		&ut.Body{Body: jsonBody(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestChatHandler_ListSessions(t *testing.T) {
	qa := &stubQAService{sessions: []string{"sess-1", "sess-2"}}
	h := handler.NewChatHandler(qa, zerolog.Nop())

	e := newTestEngine()
	e.GET("/api/v1/chat/sessions", h.ListSessions)

	w := ut.PerformRequest(e, "GET", "/api/v1/chat/sessions", nil)
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var got struct {
		Sessions []string `json:"sessions"`
		Total    int      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &got))
	assert.Equal(t, []string{"sess-1", "sess-2"}, got.Sessions)
	assert.Equal(t, 2, got.Total)
}

func TestChatHandler_SessionHistory(t *testing.T) {
	qa := &stubQAService{history: map[string][]*schema.Message{
		"sess-1": {
			schema.UserMessage("他会Go吗？"),
			schema.AssistantMessage("会，有五年经验。", nil),
		},
	}}
	h := handler.NewChatHandler(qa, zerolog.Nop())

	e := newTestEngine()
	e.GET("/api/v1/chat/sessions/:session_id/history", h.SessionHistory)

	w := ut.PerformRequest(e, "GET", "/api/v1/chat/sessions/sess-1/history", nil)
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var got struct {
		SessionID string `json:"session_id"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &got))
	assert.Equal(t, "sess-1", got.SessionID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "他会Go吗？", got.Messages[0].Content)
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

func TestChatHandler_SessionHistory_Empty(t *testing.T) {
	qa := &stubQAService{}
	h := handler.NewChatHandler(qa, zerolog.Nop())

	e := newTestEngine()
	e.GET("/api/v1/chat/sessions/:session_id/history", h.SessionHistory)

	w := ut.PerformRequest(e, "GET", "/api/v1/chat/sessions/unknown/history", nil)
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var got struct {
		Messages []interface{} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &got))
	assert.Empty(t, got.Messages)
}

func TestChatHandler_ClearSession(t *testing.T) {
	qa := &stubQAService{}
	h := handler.NewChatHandler(qa, zerolog.Nop())

	e := newTestEngine()
	e.DELETE("/api/v1/chat/sessions/:session_id", h.ClearSession)

	w := ut.PerformRequest(e, "DELETE", "/api/v1/chat/sessions/sess-9", nil)
	require.Equal(t, 200, w.Result().StatusCode())
	assert.Equal(t, []string{"sess-9"}, qa.cleared)
}
