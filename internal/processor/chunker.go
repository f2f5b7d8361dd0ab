package processor

import (
	"strings"
)

const (
	// defaultChunkMaxChars 单个分块的最大字符数（按rune计）
	defaultChunkMaxChars = 800
	// minParagraphChars 小于该长度的段落会与相邻段落合并
	minParagraphChars = 50
)

// SplitIntoChunks 将简历全文按段落切分为适合向量化的分块。
// 规则：按空行分段，过短的段落向后合并，超长的段落按句子边界再切。
func SplitIntoChunks(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = defaultChunkMaxChars
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	// 合并短段落
	merged := make([]string, 0, len(paragraphs))
	var buf strings.Builder
	for _, p := range paragraphs {
		if buf.Len() > 0 && len([]rune(buf.String()))+len([]rune(p)) > maxChars {
			merged = append(merged, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(p)
		if len([]rune(buf.String())) >= minParagraphChars && len([]rune(buf.String())) >= maxChars/2 {
			merged = append(merged, buf.String())
			buf.Reset()
		}
	}
	if buf.Len() > 0 {
		merged = append(merged, buf.String())
	}

	// 超长分块按句子再切
	var chunks []string
	for _, m := range merged {
		if len([]rune(m)) <= maxChars {
			chunks = append(chunks, m)
			continue
		}
		chunks = append(chunks, splitOversize(m, maxChars)...)
	}
	return chunks
}

// splitParagraphs 按空行切分并去掉空白段
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sentenceEnders 中英文句子结束符
var sentenceEnders = []rune{'。', '！', '？', ';', '；', '.', '!', '?', '\n'}

func isSentenceEnd(r rune) bool {
	for _, e := range sentenceEnders {
		if r == e {
			return true
		}
	}
	return false
}

// splitOversize 将超长段落按句子边界切成不超过maxChars的片段，
// 找不到句子边界时硬切
func splitOversize(text string, maxChars int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > maxChars {
		cut := -1
		for i := maxChars; i > maxChars/2; i-- {
			if isSentenceEnd(runes[i-1]) {
				cut = i
				break
			}
		}
		if cut < 0 {
			cut = maxChars
		}
		piece := strings.TrimSpace(string(runes[:cut]))
		if piece != "" {
			out = append(out, piece)
		}
		runes = runes[cut:]
	}
	rest := strings.TrimSpace(string(runes))
	if rest != "" {
		out = append(out, rest)
	}
	return out
}
