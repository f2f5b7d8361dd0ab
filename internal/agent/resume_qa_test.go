package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"ats-rank-go/internal/ranker"
	"ats-rank-go/internal/storage"
	"ats-rank-go/internal/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQAEmbedder struct {
	mu        sync.Mutex
	calls     int
	err       error
	lastTexts []string
}

func (s *stubQAEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastTexts = texts
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (s *stubQAEmbedder) GetDimensions() int { return 3 }

type stubSearcher struct {
	hits       []storage.ScoredChunk
	err        error
	lastFilter ranker.ChunkFilter
}

func (s *stubSearcher) SearchSimilarChunks(_ context.Context, _ []float64, _ int, filter ranker.ChunkFilter) ([]storage.ScoredChunk, error) {
	s.lastFilter = filter
	return s.hits, s.err
}

func TestResumeQAAgent_Ask(t *testing.T) {
	chatModel := NewMockChatClient("候选人有五年Go开发经验。", nil)
	searcher := &stubSearcher{
		hits: []storage.ScoredChunk{
			{Chunk: types.TextChunk{FileName: "a.pdf", Content: "五年Go后端开发经验"}, Score: 0.9},
		},
	}
	memory := NewInMemoryChatMemory()

	qa, err := NewResumeQAAgent(chatModel, &stubQAEmbedder{}, searcher, memory, zerolog.Nop())
	require.NoError(t, err)

	answer, err := qa.Ask(context.Background(), "sess-1", "候选人有几年Go经验？", ranker.ChunkFilter{
		RecruiterID: "r1",
		JobID:       "job-1",
		FileName:    "a.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "候选人有五年Go开发经验。", answer)

	// 检索范围应固定为简历分块
	assert.Equal(t, types.DocTypeResume, searcher.lastFilter.DocType)

	// 系统提示词中应携带检索到的片段
	require.Len(t, chatModel.ReceivedMessages, 1)
	systemContent := chatModel.ReceivedMessages[0][0].Content
	assert.True(t, strings.Contains(systemContent, "五年Go后端开发经验"))

	// 一问一答两条消息都应进入会话历史
	history, err := memory.GetHistory(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestResumeQAAgent_Ask_HistoryCarried(t *testing.T) {
	chatModel := NewMockChatClientSequential([]MockResponse{
		{Content: "第一轮回答"},
		{Content: "候选人在Kubernetes方面的经验如何？"}, // 第二轮的改写结果
		{Content: "第二轮回答"},
	})
	searcher := &stubSearcher{
		hits: []storage.ScoredChunk{
			{Chunk: types.TextChunk{FileName: "a.pdf", Content: "精通Kubernetes"}},
		},
	}
	memory := NewInMemoryChatMemory()
	embedder := &stubQAEmbedder{}

	qa, err := NewResumeQAAgent(chatModel, embedder, searcher, memory, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	answer, err := qa.Ask(ctx, "sess-2", "第一个问题", ranker.ChunkFilter{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, "第一轮回答", answer)

	answer, err = qa.Ask(ctx, "sess-2", "这方面呢？", ranker.ChunkFilter{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, "第二轮回答", answer)

	// 第二轮先改写再回答，共三次模型调用
	require.Len(t, chatModel.ReceivedMessages, 3)

	// 改写结果只用于检索，不改变发给模型的原始提问
	require.Len(t, embedder.lastTexts, 1)
	assert.Equal(t, "候选人在Kubernetes方面的经验如何？", embedder.lastTexts[0])

	// 回答调用应带上第一轮的一问一答：system + 2条历史 + 原始新问题
	answerCall := chatModel.ReceivedMessages[2]
	require.Len(t, answerCall, 4)
	assert.Equal(t, "这方面呢？", answerCall[3].Content)
}

func TestResumeQAAgent_Ask_RephraseFallsBack(t *testing.T) {
	chatModel := NewMockChatClientSequential([]MockResponse{
		{Content: "第一轮回答"},
		{Error: errors.New("模型限流")}, // 改写失败
		{Content: "第二轮回答"},
	})
	memory := NewInMemoryChatMemory()
	embedder := &stubQAEmbedder{}

	qa, err := NewResumeQAAgent(chatModel, embedder, &stubSearcher{}, memory, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = qa.Ask(ctx, "sess-6", "第一个问题", ranker.ChunkFilter{JobID: "job-1"})
	require.NoError(t, err)

	answer, err := qa.Ask(ctx, "sess-6", "第二个问题", ranker.ChunkFilter{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, "第二轮回答", answer)

	// 改写失败时回退为原始提问检索
	require.Len(t, embedder.lastTexts, 1)
	assert.Equal(t, "第二个问题", embedder.lastTexts[0])
}

func TestResumeQAAgent_Sessions(t *testing.T) {
	chatModel := NewMockChatClient("好的。", nil)
	memory := NewInMemoryChatMemory()

	qa, err := NewResumeQAAgent(chatModel, &stubQAEmbedder{}, &stubSearcher{}, memory, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = qa.Ask(ctx, "sess-b", "问题一", ranker.ChunkFilter{JobID: "job-1"})
	require.NoError(t, err)
	_, err = qa.Ask(ctx, "sess-a", "问题二", ranker.ChunkFilter{JobID: "job-1"})
	require.NoError(t, err)

	sessions, err := qa.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-a", "sess-b"}, sessions)

	history, err := qa.History(ctx, "sess-b")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "问题一", history[0].Content)
	assert.Equal(t, "好的。", history[1].Content)
}

func TestResumeQAAgent_Ask_EmptyQuestion(t *testing.T) {
	qa, err := NewResumeQAAgent(NewMockChatClient("", nil), &stubQAEmbedder{}, &stubSearcher{}, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = qa.Ask(context.Background(), "sess-3", "   ", ranker.ChunkFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ranker.ErrValidation))
}

func TestResumeQAAgent_Ask_NoHits(t *testing.T) {
	chatModel := NewMockChatClient("简历中未提及。", nil)
	qa, err := NewResumeQAAgent(chatModel, &stubQAEmbedder{}, &stubSearcher{}, nil, zerolog.Nop())
	require.NoError(t, err)

	answer, err := qa.Ask(context.Background(), "sess-4", "候选人会弹钢琴吗？", ranker.ChunkFilter{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, "简历中未提及。", answer)

	systemContent := chatModel.ReceivedMessages[0][0].Content
	assert.True(t, strings.Contains(systemContent, "没有检索到"))
}

func TestResumeQAAgent_Ask_EmbedderError(t *testing.T) {
	qa, err := NewResumeQAAgent(
		NewMockChatClient("", nil),
		&stubQAEmbedder{err: errors.New("embedding服务不可用")},
		&stubSearcher{}, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = qa.Ask(context.Background(), "sess-5", "任意问题", ranker.ChunkFilter{})
	require.Error(t, err)
}
