package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ats-rank-go/internal/agent"
	"ats-rank-go/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJD     = "负责后端开发，要求熟悉 Go、Redis 和 Docker。"
	testResume = "三年后端经验，精通 Go 与 Redis。"
)

func TestExtractAndMatchHappyPath(t *testing.T) {
	mock := agent.NewMockChatClientSequential([]agent.MockResponse{
		{Content: `{"required_skills": ["Go", "Redis", "Docker"]}`},
		{Content: `{"llm_score": 80, "matched_skills": ["Go", "Redis"], "missing_skills": ["Docker"]}`},
	})
	extractor := NewTwoStageSkillExtractor(mock, zerolog.Nop())

	result := extractor.ExtractAndMatch(context.Background(), testJD, testResume)

	assert.Equal(t, types.SkillMatchOK, result.Status)
	assert.Equal(t, []string{"Go", "Redis", "Docker"}, result.RequiredSkills)
	assert.Equal(t, []string{"Go", "Redis"}, result.MatchedSkills)
	assert.Equal(t, []string{"Docker"}, result.MissingSkills)
	assert.Equal(t, 80, result.LLMScore)
	assert.Equal(t, 67, result.KeywordScore, "关键词得分应为 round(2/3*100)")

	// 第一阶段只允许看到JD，禁止泄露简历内容
	require.Len(t, mock.ReceivedMessages, 2)
	stageOnePrompt := mock.ReceivedMessages[0][1].Content
	assert.Contains(t, stageOnePrompt, testJD)
	assert.NotContains(t, stageOnePrompt, testResume, "第一阶段提示词不允许包含简历")

	stageTwoPrompt := mock.ReceivedMessages[1][1].Content
	assert.Contains(t, stageTwoPrompt, "Docker")
	assert.Contains(t, stageTwoPrompt, testResume)
}

func TestExtractAndMatchWithChatter(t *testing.T) {
	// 模型输出夹杂Markdown与解释文本时仍应能解析
	mock := agent.NewMockChatClientSequential([]agent.MockResponse{
		{Content: "好的，以下是抽取结果：\n```json\n{\"required_skills\": [\"Kubernetes\"]}\n```"},
		{Content: "```json\n{\"llm_score\": 70, \"matched_skills\": [\"Kubernetes\"], \"missing_skills\": []}\n```\n以上就是判定结果。"},
	})
	extractor := NewTwoStageSkillExtractor(mock, zerolog.Nop())

	result := extractor.ExtractAndMatch(context.Background(), testJD, testResume)

	assert.Equal(t, types.SkillMatchOK, result.Status)
	assert.Equal(t, []string{"Kubernetes"}, result.MatchedSkills)
	assert.Equal(t, 100, result.KeywordScore)
}

func TestExtractAndMatchNoRequirements(t *testing.T) {
	mock := agent.NewMockChatClientSequential([]agent.MockResponse{
		{Content: `{"required_skills": []}`},
	})
	extractor := NewTwoStageSkillExtractor(mock, zerolog.Nop())

	result := extractor.ExtractAndMatch(context.Background(), "招聘行政前台一名。", testResume)

	assert.Equal(t, types.SkillMatchNoRequirements, result.Status)
	assert.Equal(t, 0, result.LLMScore)
	assert.Equal(t, 0, result.KeywordScore)
	assert.Empty(t, result.MatchedSkills)
	assert.Empty(t, result.MissingSkills)
	assert.Len(t, mock.ReceivedMessages, 1, "清单为空时不应发起第二阶段调用")
}

func TestExtractAndMatchReconciliation(t *testing.T) {
	// 第二阶段输出注入了清单外技能，且同一技能同时出现在两个列表
	mock := agent.NewMockChatClientSequential([]agent.MockResponse{
		{Content: `{"required_skills": ["Go", "Redis", "Docker"]}`},
		{Content: `{"llm_score": 60, "matched_skills": ["Go", "Excel"], "missing_skills": ["redis", "Go", "Docker", "沟通能力"]}`},
	})
	extractor := NewTwoStageSkillExtractor(mock, zerolog.Nop())

	result := extractor.ExtractAndMatch(context.Background(), testJD, testResume)

	assert.Equal(t, types.SkillMatchOK, result.Status)
	assert.Equal(t, []string{"Go"}, result.MatchedSkills, "清单外技能必须被丢弃")
	assert.Equal(t, []string{"Redis", "Docker"}, result.MissingSkills, "已匹配技能不得再出现在缺失列表，比较不区分大小写")
	assert.Equal(t, 33, result.KeywordScore, "关键词得分应按对账后列表重新计算")
}

func TestExtractAndMatchSalvagesBareScore(t *testing.T) {
	mock := agent.NewMockChatClientSequential([]agent.MockResponse{
		{Content: `{"required_skills": ["Go"]}`},
		{Content: "这位候选人整体匹配度大约是 75%，技能方面比较全面。"},
	})
	extractor := NewTwoStageSkillExtractor(mock, zerolog.Nop())

	result := extractor.ExtractAndMatch(context.Background(), testJD, testResume)

	assert.Equal(t, types.SkillMatchOK, result.Status)
	assert.Equal(t, 75, result.LLMScore, "应从不可解析输出中抢救裸百分比")
	assert.Empty(t, result.MatchedSkills)
	assert.Empty(t, result.MissingSkills)
	assert.Equal(t, 0, result.KeywordScore)
}

func TestExtractAndMatchDegraded(t *testing.T) {
	t.Run("第一阶段调用失败", func(t *testing.T) {
		mock := agent.NewMockChatClientSequential([]agent.MockResponse{
			{Error: errors.New("模型服务超时")},
		})
		extractor := NewTwoStageSkillExtractor(mock, zerolog.Nop())

		result := extractor.ExtractAndMatch(context.Background(), testJD, testResume)

		assert.Equal(t, types.SkillMatchDegraded, result.Status)
		assert.Equal(t, 0, result.LLMScore)
		assert.Empty(t, result.MatchedSkills)
	})

	t.Run("第二阶段输出完全不可解析", func(t *testing.T) {
		mock := agent.NewMockChatClientSequential([]agent.MockResponse{
			{Content: `{"required_skills": ["Go"]}`},
			{Content: "抱歉，我无法完成这个判定任务。"},
		})
		extractor := NewTwoStageSkillExtractor(mock, zerolog.Nop())

		result := extractor.ExtractAndMatch(context.Background(), testJD, testResume)

		assert.Equal(t, types.SkillMatchDegraded, result.Status)
		assert.Equal(t, 0, result.LLMScore)
	})

	t.Run("模型返回空响应", func(t *testing.T) {
		mock := agent.NewMockChatClientSequential([]agent.MockResponse{
			{Content: ""},
		})
		extractor := NewTwoStageSkillExtractor(mock, zerolog.Nop())

		result := extractor.ExtractAndMatch(context.Background(), testJD, testResume)

		assert.Equal(t, types.SkillMatchDegraded, result.Status)
	})
}

func TestExtractRequiredSkillsDeduplicates(t *testing.T) {
	mock := agent.NewMockChatClientSequential([]agent.MockResponse{
		{Content: `{"required_skills": ["Go", "go", " Go ", "", "Redis"]}`},
		{Content: `{"llm_score": 50, "matched_skills": [], "missing_skills": ["Go", "Redis"]}`},
	})
	extractor := NewTwoStageSkillExtractor(mock, zerolog.Nop())

	result := extractor.ExtractAndMatch(context.Background(), testJD, testResume)

	assert.Equal(t, []string{"Go", "Redis"}, result.RequiredSkills, "清单应去重并丢弃空白项")
}

func TestUnmarshalModelJSON(t *testing.T) {
	t.Run("带BOM与前后杂音", func(t *testing.T) {
		var payload stageOnePayload
		err := unmarshalModelJSON("\uFEFF以下是结果 {\"required_skills\": [\"Go\"]} 完毕", &payload)
		require.NoError(t, err)
		assert.Equal(t, []string{"Go"}, payload.RequiredSkills)
	})

	t.Run("字符串内部未转义引号可被修复", func(t *testing.T) {
		var payload stageTwoPayload
		raw := `{"llm_score": 80, "matched_skills": ["精通"Go"开发"], "missing_skills": []}`
		err := unmarshalModelJSON(raw, &payload)
		require.NoError(t, err)
		assert.Equal(t, 80, payload.LLMScore)
		require.Len(t, payload.MatchedSkills, 1)
		assert.True(t, strings.Contains(payload.MatchedSkills[0], "Go"))
	})

	t.Run("找不到JSON对象", func(t *testing.T) {
		var payload stageOnePayload
		err := unmarshalModelJSON("完全没有结构化内容", &payload)
		assert.Error(t, err)
	})
}

func TestSalvageBareScore(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		ok      bool
	}{
		{"字段形式", `llm_score: 88`, 88, true},
		{"带引号字段", `"llm_score": 92,`, 92, true},
		{"裸百分比", "匹配度大约 75% 左右", 75, true},
		{"超出范围", "得分 400%", 0, false},
		{"无任何分数", "无法判定", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := salvageBareScore(tt.content)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
