package ranker

import (
	"context"
	"sort"
	"time"

	"ats-rank-go/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	// defaultAutoTopK auto 档位下进入 LLM 精排的候选人数
	defaultAutoTopK = 5
	// defaultCheapScoreConcurrency 廉价信号评分的并发上限
	defaultCheapScoreConcurrency = 4
)

// Orchestrator 批量评估编排器
// 流程：取文本 -> 全员廉价信号初排 -> 按成本档位选择 LLM 精排对象 -> 终排
type Orchestrator struct {
	retriever  *Retriever
	scorer     *SimilarityScorer
	extractor  SkillExtractor
	aggregator *Aggregator
	topK       int
	parallel   int
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// OrchestratorOption 编排器配置选项
type OrchestratorOption func(*Orchestrator)

// WithAutoTopK 设置 auto 档位进入 LLM 精排的候选人数
func WithAutoTopK(k int) OrchestratorOption {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithCheapScoreConcurrency 设置廉价信号评分的并发上限
func WithCheapScoreConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallel = n
		}
	}
}

// NewOrchestrator 创建批量评估编排器
func NewOrchestrator(
	retriever *Retriever,
	scorer *SimilarityScorer,
	extractor SkillExtractor,
	aggregator *Aggregator,
	logger zerolog.Logger,
	options ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		retriever:  retriever,
		scorer:     scorer,
		extractor:  extractor,
		aggregator: aggregator,
		topK:       defaultAutoTopK,
		parallel:   defaultCheapScoreConcurrency,
		logger:     logger.With().Str("component", "Orchestrator").Logger(),
		tracer:     otel.Tracer("ats-rank-go/ranker"),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// batchItem 评估过程中的候选人中间态，带简历全文供 LLM 精排使用
type batchItem struct {
	doc    types.ResumeDoc
	result types.CandidateResult
}

// EvaluateBatch 对一个岗位下的全部简历执行批量评估并排序
// 单个候选人的 LLM 信号失败只影响该候选人自身的权重策略，不会中断整个批次
func (o *Orchestrator) EvaluateBatch(ctx context.Context, recruiterID, jobID string, mode types.CostMode) (*types.RankedBatch, error) {
	if recruiterID == "" || jobID == "" {
		return nil, NewValidationError(jobID, "recruiterID和jobID不能为空")
	}
	if !mode.Valid() {
		return nil, NewValidationError(jobID, "未知的成本档位: "+string(mode))
	}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.EvaluateBatch",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("rank.mode", string(mode)),
		))
	defer span.End()

	jdText, docs, err := o.retriever.FetchBatch(ctx, recruiterID, jobID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 阶段一：全员廉价信号评分，按下标写入保证结果顺序与调度无关
	items := make([]batchItem, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallel)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			items[i] = batchItem{
				doc: doc,
				result: types.CandidateResult{
					FileName:    doc.FileName,
					CandidateID: doc.CandidateID,
				},
			}
			signals := types.SignalScores{Keyword: KeywordScore(doc.Text, jdText)}
			emb, err := o.scorer.Score(gctx, doc.Text, jdText)
			if err != nil {
				// 语义信号缺失按缺失处理，绝不当作 0 分
				o.logger.Warn().Err(err).Str("file_name", doc.FileName).Msg("语义信号缺失，初排退回关键词")
			} else {
				signals.Embedding = &emb
			}
			items[i].result.Signals = signals
			items[i].result.PrelimScore = PrelimScore(signals)
			return nil
		})
	}
	// 评分协程不返回错误，Wait 仅做同步
	_ = g.Wait()

	// 阶段二：初排，稳定排序保证同分时保持检索顺序
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].result.PrelimScore > items[b].result.PrelimScore
	})

	// 阶段三：按成本档位对头部候选人做 LLM 精排
	llmCount := 0
	switch mode {
	case types.CostModeFull:
		llmCount = len(items)
	case types.CostModeAuto:
		llmCount = o.topK
		if llmCount > len(items) {
			llmCount = len(items)
		}
	}

	for i := 0; i < llmCount; i++ {
		skills := o.extractor.ExtractAndMatch(ctx, jdText, items[i].doc.Text)
		items[i].result.Skills = skills
		if skills.Status == types.SkillMatchOK {
			llmScore := skills.LLMScore
			items[i].result.Signals.LLM = &llmScore
		} else {
			// 降级或清单为空时该候选人退回无 LLM 权重策略
			o.logger.Info().
				Str("file_name", items[i].doc.FileName).
				Str("skill_status", string(skills.Status)).
				Msg("LLM信号缺失，该候选人按无LLM策略计分")
		}
	}

	// 阶段四：终排，稳定排序保证同分时保持此前的相对顺序
	for i := range items {
		items[i].result.FinalScore = o.aggregator.BatchScore(items[i].result.Signals)
	}
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].result.FinalScore > items[b].result.FinalScore
	})

	candidates := make([]types.CandidateResult, len(items))
	for i := range items {
		candidates[i] = items[i].result
	}

	span.SetAttributes(
		attribute.Int("rank.candidate_count", len(candidates)),
		attribute.Int("rank.llm_count", llmCount),
	)
	o.logger.Info().
		Str("job_id", jobID).
		Str("mode", string(mode)).
		Int("candidate_count", len(candidates)).
		Int("llm_count", llmCount).
		Msg("批量评估完成")

	return &types.RankedBatch{
		RecruiterID: recruiterID,
		JobID:       jobID,
		Mode:        mode,
		Candidates:  candidates,
		EvaluatedAt: time.Now().Unix(),
	}, nil
}

// EvaluateSingle 对单个候选人执行三信号完整评估
func (o *Orchestrator) EvaluateSingle(ctx context.Context, recruiterID, jobID, fileName string) (*types.CandidateResult, error) {
	if recruiterID == "" || jobID == "" || fileName == "" {
		return nil, NewValidationError(jobID, "recruiterID、jobID和fileName不能为空")
	}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.EvaluateSingle",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("resume.file_name", fileName),
		))
	defer span.End()

	jdText, resumeText, err := o.retriever.FetchTexts(ctx, recruiterID, jobID, fileName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	signals := types.SignalScores{Keyword: KeywordScore(resumeText, jdText)}
	emb, err := o.scorer.Score(ctx, resumeText, jdText)
	if err != nil {
		o.logger.Warn().Err(err).Str("file_name", fileName).Msg("语义信号缺失")
	} else {
		signals.Embedding = &emb
	}

	skills := o.extractor.ExtractAndMatch(ctx, jdText, resumeText)
	if skills.Status == types.SkillMatchOK {
		llmScore := skills.LLMScore
		signals.LLM = &llmScore
	}

	return &types.CandidateResult{
		FileName:    fileName,
		Signals:     signals,
		PrelimScore: PrelimScore(signals),
		FinalScore:  o.aggregator.SingleScore(signals),
		Skills:      skills,
	}, nil
}

// SkillDetails 只执行两阶段技能抽取，返回清单与匹配明细
func (o *Orchestrator) SkillDetails(ctx context.Context, recruiterID, jobID, fileName string) (*types.SkillMatch, error) {
	if recruiterID == "" || jobID == "" || fileName == "" {
		return nil, NewValidationError(jobID, "recruiterID、jobID和fileName不能为空")
	}

	jdText, resumeText, err := o.retriever.FetchTexts(ctx, recruiterID, jobID, fileName)
	if err != nil {
		return nil, err
	}
	return o.extractor.ExtractAndMatch(ctx, jdText, resumeText), nil
}
