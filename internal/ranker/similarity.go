package ranker

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"
)

// SimilarityScorer 基于嵌入向量余弦相似度的语义评分器
type SimilarityScorer struct {
	embedder TextEmbedder
	logger   zerolog.Logger
}

// NewSimilarityScorer 创建语义评分器
func NewSimilarityScorer(embedder TextEmbedder, logger zerolog.Logger) *SimilarityScorer {
	return &SimilarityScorer{
		embedder: embedder,
		logger:   logger.With().Str("component", "SimilarityScorer").Logger(),
	}
}

// Score 计算简历与 JD 的语义相似度得分，0-100 保留两位小数
// 任一文本为空白时直接返回 0，不调用嵌入服务
// 嵌入服务失败时返回 ErrSignalUnavailable，调用方应将该信号视为缺失而非 0 分
func (s *SimilarityScorer) Score(ctx context.Context, resumeText, jdText string) (float64, error) {
	if strings.TrimSpace(resumeText) == "" || strings.TrimSpace(jdText) == "" {
		return 0, nil
	}

	vectors, err := s.embedder.EmbedStrings(ctx, []string{resumeText, jdText})
	if err != nil {
		s.logger.Warn().Err(err).Msg("嵌入服务调用失败，语义信号缺失")
		return 0, NewSignalUnavailableError("", "", err.Error())
	}
	if len(vectors) < 2 {
		return 0, NewSignalUnavailableError("", "", "嵌入服务返回的向量数量不足")
	}

	sim := cosineSimilarity(vectors[0], vectors[1])
	return math.Round(sim*100*100) / 100, nil
}

// cosineSimilarity 余弦相似度，维度不一致或零向量按 0 处理
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
