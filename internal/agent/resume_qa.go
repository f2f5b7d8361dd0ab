package agent

import (
	"context"
	"fmt"
	"strings"

	"ats-rank-go/internal/ranker"
	"ats-rank-go/internal/storage"
	"ats-rank-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 10
	defaultContextTopK  = 5

	resumeQASystemPrompt = `你是一个招聘助理。你只能依据下面给出的简历片段回答招聘方的问题。
如果简历片段中没有相关信息，直接回答"简历中未提及"，不要编造内容。
回答使用与提问相同的语言。`

	rephraseSystemPrompt = `根据对话历史，把用户的最新问题改写成一个不依赖上下文、可以独立理解的完整问题。
只输出改写后的问题本身，不要解释，不要回答问题。`
)

// ChunkSearcher 按向量检索相似简历片段
type ChunkSearcher interface {
	SearchSimilarChunks(ctx context.Context, queryVector []float64, limit int, filter ranker.ChunkFilter) ([]storage.ScoredChunk, error)
}

// ResumeQAAgent 基于已入库的简历分块回答招聘方的提问。
// 每次提问先向量检索相关片段作为上下文，再带上会话历史调用大模型。
type ResumeQAAgent struct {
	chatModel    model.ToolCallingChatModel
	embedder     ranker.TextEmbedder
	searcher     ChunkSearcher
	memory       ChatMemory
	historyLimit int
	contextTopK  int
	logger       zerolog.Logger
}

// ResumeQAOption ResumeQAAgent 的配置选项
type ResumeQAOption func(*ResumeQAAgent)

// WithHistoryLimit 设置带入提示词的历史消息数
func WithHistoryLimit(limit int) ResumeQAOption {
	return func(a *ResumeQAAgent) {
		if limit > 0 {
			a.historyLimit = limit
		}
	}
}

// WithContextTopK 设置每次检索的上下文分块数
func WithContextTopK(topK int) ResumeQAOption {
	return func(a *ResumeQAAgent) {
		if topK > 0 {
			a.contextTopK = topK
		}
	}
}

// NewResumeQAAgent 创建简历问答代理
func NewResumeQAAgent(
	chatModel model.ToolCallingChatModel,
	embedder ranker.TextEmbedder,
	searcher ChunkSearcher,
	memory ChatMemory,
	logger zerolog.Logger,
	opts ...ResumeQAOption,
) (*ResumeQAAgent, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("聊天模型不能为空")
	}
	if embedder == nil {
		return nil, fmt.Errorf("向量化组件不能为空")
	}
	if searcher == nil {
		return nil, fmt.Errorf("分块检索组件不能为空")
	}
	if memory == nil {
		memory = NewInMemoryChatMemory()
	}

	a := &ResumeQAAgent{
		chatModel:    chatModel,
		embedder:     embedder,
		searcher:     searcher,
		memory:       memory,
		historyLimit: defaultHistoryLimit,
		contextTopK:  defaultContextTopK,
		logger:       logger.With().Str("component", "resume_qa").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Ask 回答一次提问。sessionID标识会话，filter限定检索范围（通常指定recruiter、job和文件名）。
func (a *ResumeQAAgent) Ask(ctx context.Context, sessionID, question string, filter ranker.ChunkFilter) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ranker.NewValidationError(filter.JobID, "问题不能为空")
	}

	// 检索范围固定为简历分块
	if filter.DocType == "" {
		filter.DocType = types.DocTypeResume
	}

	history, err := a.memory.GetHistory(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("读取会话历史失败: %w", err)
	}
	if len(history) > a.historyLimit {
		history = history[len(history)-a.historyLimit:]
	}

	// 多轮会话里问题常带指代（"他的上一家公司呢"），改写成独立问题后再检索。
	// 改写结果只用于检索，发给模型的仍是原始提问。
	searchQuery := a.rephraseQuestion(ctx, history, question)

	contextText, err := a.retrieveContext(ctx, searchQuery, filter)
	if err != nil {
		return "", fmt.Errorf("检索简历上下文失败: %w", err)
	}

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(
		fmt.Sprintf("%s\n\n简历片段：\n%s", resumeQASystemPrompt, contextText)))
	messages = append(messages, history...)

	userMessage := schema.UserMessage(question)
	messages = append(messages, userMessage)

	reply, err := a.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("调用聊天模型失败: %w", err)
	}

	if err := a.memory.AddMessages(ctx, sessionID, []*schema.Message{userMessage, reply}); err != nil {
		// 历史写入失败不影响本次回答
		a.logger.Warn().Err(err).Str("session_id", sessionID).Msg("保存会话历史失败")
	}

	return reply.Content, nil
}

// ClearSession 清除某个会话的历史
func (a *ResumeQAAgent) ClearSession(ctx context.Context, sessionID string) error {
	return a.memory.ClearHistory(ctx, sessionID)
}

// History 返回某个会话的完整历史消息
func (a *ResumeQAAgent) History(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	return a.memory.GetHistory(ctx, sessionID)
}

// ListSessions 返回当前存在历史的会话ID
func (a *ResumeQAAgent) ListSessions(ctx context.Context) ([]string, error) {
	return a.memory.ListSessions(ctx)
}

// rephraseQuestion 结合历史把追问改写为独立问题。
// 历史为空或改写失败时直接返回原始提问。
func (a *ResumeQAAgent) rephraseQuestion(ctx context.Context, history []*schema.Message, question string) string {
	if len(history) == 0 {
		return question
	}

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(rephraseSystemPrompt))
	messages = append(messages, history...)
	messages = append(messages, schema.UserMessage(question))

	reply, err := a.chatModel.Generate(ctx, messages)
	if err != nil {
		a.logger.Warn().Err(err).Msg("问题改写失败，使用原始提问检索")
		return question
	}
	rephrased := strings.TrimSpace(reply.Content)
	if rephrased == "" {
		return question
	}
	return rephrased
}

// retrieveContext 将问题向量化后检索最相关的简历片段并拼接为上下文
func (a *ResumeQAAgent) retrieveContext(ctx context.Context, question string, filter ranker.ChunkFilter) (string, error) {
	vectors, err := a.embedder.EmbedStrings(ctx, []string{question})
	if err != nil {
		return "", err
	}
	if len(vectors) == 0 {
		return "", fmt.Errorf("问题向量化返回空结果")
	}

	hits, err := a.searcher.SearchSimilarChunks(ctx, vectors[0], a.contextTopK, filter)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "（没有检索到相关的简历内容）", nil
	}

	var sb strings.Builder
	for i, hit := range hits {
		sb.WriteString(fmt.Sprintf("[片段%d 来自 %s]\n%s\n\n", i+1, hit.Chunk.FileName, hit.Chunk.Content))
	}
	return strings.TrimSpace(sb.String()), nil
}
