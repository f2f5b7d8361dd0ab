package ranker

import (
	"math"
	"strings"
	"unicode/utf8"
)

// keywordMinRunes 过滤短词的长度阈值，介词、冠词等噪声词基本都在其下
const keywordMinRunes = 4

// KeywordScore 计算简历对 JD 的关键词覆盖率得分 (0-100)
// 纯函数，不做任何 I/O，JD 无有效词时返回 0
func KeywordScore(resumeText, jdText string) int {
	jdTokens := keywordTokens(jdText)
	if len(jdTokens) == 0 {
		return 0
	}
	resumeTokens := keywordTokens(resumeText)
	matched := 0
	for tok := range jdTokens {
		if _, ok := resumeTokens[tok]; ok {
			matched++
		}
	}
	score := int(math.Round(float64(matched) / float64(len(jdTokens)) * 100))
	if score > 100 {
		score = 100
	}
	return score
}

// keywordTokens 小写化后按空白切词，仅保留长度大于阈值的词
func keywordTokens(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if utf8.RuneCountInString(w) > keywordMinRunes {
			tokens[w] = struct{}{}
		}
	}
	return tokens
}
