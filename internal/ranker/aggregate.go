package ranker

import (
	"math"

	"ats-rank-go/internal/types"
)

// WeightPolicy 一组信号权重，权重和应为 1
type WeightPolicy struct {
	Embedding float64 `yaml:"embedding"`
	LLM       float64 `yaml:"llm"`
	Keyword   float64 `yaml:"keyword"`
}

// AggregatorWeights 三条评估路径各自的权重策略，全部可经配置覆盖
type AggregatorWeights struct {
	// BatchWithLLM 批量评估且 LLM 信号可用
	BatchWithLLM WeightPolicy `yaml:"batch_with_llm"`
	// BatchWithoutLLM 批量评估且 LLM 信号缺失或被成本档位跳过
	BatchWithoutLLM WeightPolicy `yaml:"batch_without_llm"`
	// Single 单候选人对比
	Single WeightPolicy `yaml:"single"`
}

// DefaultAggregatorWeights 默认权重策略
func DefaultAggregatorWeights() AggregatorWeights {
	return AggregatorWeights{
		BatchWithLLM:    WeightPolicy{Embedding: 0.4, LLM: 0.4, Keyword: 0.2},
		BatchWithoutLLM: WeightPolicy{Embedding: 0.7, LLM: 0, Keyword: 0.3},
		Single:          WeightPolicy{Embedding: 0.2, LLM: 0.3, Keyword: 0.5},
	}
}

// Aggregator 多信号加权聚合器
type Aggregator struct {
	weights AggregatorWeights
}

// NewAggregator 创建聚合器，零值权重配置回退到默认策略
func NewAggregator(weights AggregatorWeights) *Aggregator {
	if weights == (AggregatorWeights{}) {
		weights = DefaultAggregatorWeights()
	}
	return &Aggregator{weights: weights}
}

// BatchScore 批量路径的最终得分
// LLM 信号缺失时自动退回无 LLM 权重策略，其余缺失信号按剩余权重归一
func (a *Aggregator) BatchScore(signals types.SignalScores) int {
	policy := a.weights.BatchWithoutLLM
	if signals.LLM != nil {
		policy = a.weights.BatchWithLLM
	}
	return weightedScore(signals, policy)
}

// SingleScore 单候选人对比路径的最终得分
// LLM 信号缺失时同样退回无 LLM 权重策略
func (a *Aggregator) SingleScore(signals types.SignalScores) int {
	policy := a.weights.Single
	if signals.LLM == nil {
		policy = a.weights.BatchWithoutLLM
	}
	return weightedScore(signals, policy)
}

// PrelimScore 廉价信号初排得分 round(0.5*kw + 0.5*emb)
// 嵌入信号缺失时仅用关键词得分
func PrelimScore(signals types.SignalScores) int {
	if signals.Embedding == nil {
		return clampScore(signals.Keyword)
	}
	return clampScore(int(math.Round(0.5*float64(signals.Keyword) + 0.5*(*signals.Embedding))))
}

// weightedScore 按权重策略加权求和。
// 缺失的信号连同其权重一起剔除，剩余权重重新归一，缺失不计为0分。
func weightedScore(signals types.SignalScores, policy WeightPolicy) int {
	total := policy.Keyword * float64(signals.Keyword)
	weightSum := policy.Keyword
	if signals.Embedding != nil {
		total += policy.Embedding * (*signals.Embedding)
		weightSum += policy.Embedding
	}
	if signals.LLM != nil {
		total += policy.LLM * float64(*signals.LLM)
		weightSum += policy.LLM
	}
	if weightSum <= 0 {
		return 0
	}
	return clampScore(int(math.Round(total / weightSum)))
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
