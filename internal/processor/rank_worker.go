package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ats-rank-go/internal/storage"
	"ats-rank-go/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var rankWorkerTracer = otel.Tracer("ats-rank-go/processor/rank_worker")

// RankWorker 异步批量评估工作器。
// 消费排序请求消息，持分布式锁执行批量评估，结果写入缓存和数据库。
type RankWorker struct {
	evaluator   BatchEvaluator
	cache       RankCache
	sink        RankResultSink
	locker      RankLocker
	defaultMode types.CostMode
	logger      zerolog.Logger
}

// RankWorkerOption 工作器配置选项
type RankWorkerOption func(*RankWorker)

// WithDefaultMode 设置消息未指定档位时的默认成本档位
func WithDefaultMode(mode types.CostMode) RankWorkerOption {
	return func(w *RankWorker) {
		if mode.Valid() {
			w.defaultMode = mode
		}
	}
}

// NewRankWorker 创建批量评估工作器。cache、sink和locker允许为nil，为nil时跳过对应步骤。
func NewRankWorker(
	evaluator BatchEvaluator,
	cache RankCache,
	sink RankResultSink,
	locker RankLocker,
	logger zerolog.Logger,
	opts ...RankWorkerOption,
) (*RankWorker, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("批量评估器不能为空")
	}

	w := &RankWorker{
		evaluator:   evaluator,
		cache:       cache,
		sink:        sink,
		locker:      locker,
		defaultMode: types.CostModeAuto,
		logger:      logger.With().Str("component", "rank_worker").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// HandleRankRequest 处理一条排序请求。
// 同一岗位的并发请求由分布式锁串行化，拿不到锁说明另一实例正在评估，直接跳过。
func (w *RankWorker) HandleRankRequest(ctx context.Context, msg storage.RankRequestedMessage) error {
	ctx, span := rankWorkerTracer.Start(ctx, "RankWorker.HandleRankRequest",
		trace.WithAttributes(
			attribute.String("job.id", msg.JobID),
			attribute.String("rank.mode", msg.Mode),
		))
	defer span.End()

	log := w.logger.With().Str("recruiter_id", msg.RecruiterID).Str("job_id", msg.JobID).Logger()

	if msg.RecruiterID == "" || msg.JobID == "" {
		err := fmt.Errorf("排序请求缺少recruiterID或jobID")
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	mode := types.CostMode(msg.Mode)
	if !mode.Valid() {
		mode = w.defaultMode
	}

	if w.locker != nil {
		lockValue, err := w.locker.AcquireRankLock(ctx, msg.RecruiterID, msg.JobID)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("获取评估锁失败: %w", err)
		}
		if lockValue == "" {
			log.Info().Msg("岗位正在被其他实例评估，跳过本次请求")
			span.SetStatus(codes.Ok, "lock held elsewhere")
			return nil
		}
		defer func() {
			if released, err := w.locker.ReleaseRankLock(ctx, msg.RecruiterID, msg.JobID, lockValue); err != nil {
				log.Warn().Err(err).Msg("释放评估锁失败")
			} else if !released {
				log.Warn().Msg("评估锁已被他人持有，未释放")
			}
		}()
	}

	batch, err := w.evaluator.EvaluateBatch(ctx, msg.RecruiterID, msg.JobID, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate failed")
		return fmt.Errorf("批量评估失败: %w", err)
	}

	if w.cache != nil {
		if err := w.cache.CacheRankedBatch(ctx, batch); err != nil {
			log.Warn().Err(err).Msg("缓存评估结果失败")
		}
	}
	if w.sink != nil {
		if err := w.sink.SaveRankResults(ctx, batch); err != nil {
			span.RecordError(err)
			return fmt.Errorf("持久化评估结果失败: %w", err)
		}
	}

	span.SetAttributes(attribute.Int("rank.candidate_count", len(batch.Candidates)))
	span.SetStatus(codes.Ok, "")
	log.Info().
		Str("mode", string(mode)).
		Int("candidate_count", len(batch.Candidates)).
		Msg("异步批量评估完成")
	return nil
}

// MessageHandler 返回适配RabbitMQ消费者的处理函数
func (w *RankWorker) MessageHandler(timeout time.Duration) func([]byte) bool {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return func(body []byte) bool {
		var msg storage.RankRequestedMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			w.logger.Error().Err(err).Msg("排序请求消息解析失败，丢弃")
			return true
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := w.HandleRankRequest(ctx, msg); err != nil {
			w.logger.Error().Err(err).Str("job_id", msg.JobID).Msg("排序请求处理失败")
			return false
		}
		return true
	}
}
