package processor

import (
	"context"

	"ats-rank-go/internal/ranker"
	"ats-rank-go/internal/types"
)

// TextExtractor 从原始简历文件提取纯文本
type TextExtractor interface {
	ExtractFromBytes(ctx context.Context, data []byte, uri string) (string, error)
}

// FileStore 原始文件与解析文本的对象存储
type FileStore interface {
	GetResumeFile(ctx context.Context, objectKey string) ([]byte, error)
	UploadParsedText(ctx context.Context, submissionUUID string, text string) (string, error)
}

// ChunkIndexer 分块向量的写入与清理
type ChunkIndexer interface {
	UpsertChunks(ctx context.Context, chunks []types.TextChunk, vectors [][]float64) ([]string, error)
	DeleteChunks(ctx context.Context, filter ranker.ChunkFilter) error
}

// SubmissionStore 简历提交记录的状态维护
type SubmissionStore interface {
	UpdateSubmissionStatus(ctx context.Context, submissionUUID string, status string) error
	UpdateSubmissionFields(ctx context.Context, submissionUUID string, updates map[string]interface{}) error
}

// BatchEvaluator 批量评估入口
type BatchEvaluator interface {
	EvaluateBatch(ctx context.Context, recruiterID, jobID string, mode types.CostMode) (*types.RankedBatch, error)
}

// RankResultSink 评估结果的持久化
type RankResultSink interface {
	SaveRankResults(ctx context.Context, batch *types.RankedBatch) error
}

// RankCache 评估结果的缓存
type RankCache interface {
	CacheRankedBatch(ctx context.Context, batch *types.RankedBatch) error
}

// RankLocker 批量评估的分布式锁
type RankLocker interface {
	AcquireRankLock(ctx context.Context, recruiterID, jobID string) (string, error)
	ReleaseRankLock(ctx context.Context, recruiterID, jobID, lockValue string) (bool, error)
}
