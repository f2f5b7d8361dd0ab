package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIntoChunks_Empty(t *testing.T) {
	assert.Nil(t, SplitIntoChunks("", 800))
	assert.Nil(t, SplitIntoChunks("   \n\n  \n", 800))
}

func TestSplitIntoChunks_MergesShortParagraphs(t *testing.T) {
	text := "姓名：张三\n\n电话：13800000000\n\n邮箱：zhang@example.com"
	chunks := SplitIntoChunks(text, 800)
	require.Len(t, chunks, 1, "短段落应合并为一个分块")
	assert.Contains(t, chunks[0], "张三")
	assert.Contains(t, chunks[0], "zhang@example.com")
}

func TestSplitIntoChunks_RespectsMaxChars(t *testing.T) {
	// 构造一个远超maxChars的长段落
	sentence := "负责核心交易系统的设计与开发，主导了订单服务的性能优化。"
	text := strings.Repeat(sentence, 50)

	chunks := SplitIntoChunks(text, 200)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 200, "分块%d超出最大长度", i)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestSplitIntoChunks_SplitsOnSentenceBoundary(t *testing.T) {
	text := strings.Repeat("这是一个句子。", 100)
	chunks := SplitIntoChunks(text, 100)
	require.Greater(t, len(chunks), 1)
	// 除最后一块外，每块都应在句号处结束
	for _, c := range chunks[:len(chunks)-1] {
		runes := []rune(c)
		assert.Equal(t, '。', runes[len(runes)-1])
	}
}

func TestSplitIntoChunks_PreservesAllContent(t *testing.T) {
	text := "工作经历\n\n2019-2023 某公司 高级工程师\n\n项目经历\n\n主导了支付网关重构"
	chunks := SplitIntoChunks(text, 800)
	joined := strings.Join(chunks, "\n")
	for _, keyword := range []string{"工作经历", "高级工程师", "支付网关重构"} {
		assert.Contains(t, joined, keyword)
	}
}

func TestSplitIntoChunks_HardCutWithoutBoundary(t *testing.T) {
	// 无任何句子结束符的连续文本也应被切开
	text := strings.Repeat("连续文本无标点", 100)
	chunks := SplitIntoChunks(text, 150)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 150)
	}
}
