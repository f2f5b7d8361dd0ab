package processor

import (
	"context"
	"fmt"
	"strings"

	"ats-rank-go/internal/ranker"
	"ats-rank-go/internal/tracing"
	"ats-rank-go/internal/types"

	"github.com/rs/zerolog"
)

// JDFileName 岗位描述在向量库中的统一文件名标识
const JDFileName = "job_description"

// JobCache 岗位文本与向量的缓存层
type JobCache interface {
	SetJobText(ctx context.Context, jobID string, text string) error
	GetJobText(ctx context.Context, jobID string) (string, error)
	SetJobVector(ctx context.Context, jobID string, vector []float64, modelVersion string) error
	GetJobVector(ctx context.Context, jobID string) ([]float64, string, error)
}

// JobVectorStore 岗位向量的持久化存储
type JobVectorStore interface {
	SaveJobVector(ctx context.Context, jobID string, vector []float64, modelVersion string) error
	GetJobVectorByID(ctx context.Context, jobID string) ([]float64, string, error)
}

// JDProcessor 岗位描述处理器：JD向量化（带两级缓存）和JD分块入向量库
type JDProcessor struct {
	embedder     ranker.TextEmbedder
	indexer      ChunkIndexer
	cache        JobCache
	store        JobVectorStore
	modelVersion string
	chunkSize    int
	logger       zerolog.Logger
}

// NewJDProcessor 创建岗位描述处理器。cache和store允许为nil，为nil时跳过对应层。
func NewJDProcessor(
	embedder ranker.TextEmbedder,
	indexer ChunkIndexer,
	cache JobCache,
	store JobVectorStore,
	modelVersion string,
	logger zerolog.Logger,
) (*JDProcessor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("向量化组件不能为空")
	}
	if indexer == nil {
		return nil, fmt.Errorf("分块索引组件不能为空")
	}
	if modelVersion == "" {
		modelVersion = "text-embedding-v3"
	}

	return &JDProcessor{
		embedder:     embedder,
		indexer:      indexer,
		cache:        cache,
		store:        store,
		modelVersion: modelVersion,
		chunkSize:    defaultChunkMaxChars,
		logger:       logger.With().Str("component", "jd_processor").Logger(),
	}, nil
}

// GetJobDescriptionVector 返回岗位描述的整体向量。
// 查找顺序：Redis缓存 -> MySQL -> 现算。现算结果回填两级存储。
func (p *JDProcessor) GetJobDescriptionVector(ctx context.Context, jobID, jdText string) ([]float64, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID不能为空")
	}

	if p.cache != nil {
		if vector, version, err := p.cache.GetJobVector(ctx, jobID); err == nil && len(vector) > 0 && version == p.modelVersion {
			return vector, nil
		}
	}

	if p.store != nil {
		if vector, version, err := p.store.GetJobVectorByID(ctx, jobID); err == nil && len(vector) > 0 && version == p.modelVersion {
			if p.cache != nil {
				if cacheErr := p.cache.SetJobVector(ctx, jobID, vector, version); cacheErr != nil {
					p.logger.Warn().Err(cacheErr).Str("job_id", jobID).Msg("回填JD向量缓存失败")
				}
			}
			return vector, nil
		}
	}

	if strings.TrimSpace(jdText) == "" {
		return nil, fmt.Errorf("岗位 %s 无缓存向量且JD文本为空", jobID)
	}

	vectors, err := p.embedder.EmbedStrings(ctx, []string{jdText})
	if err != nil {
		return nil, fmt.Errorf("JD向量化失败: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("JD向量化返回空结果")
	}
	vector := vectors[0]

	if p.store != nil {
		if err := p.store.SaveJobVector(ctx, jobID, vector, p.modelVersion); err != nil {
			p.logger.Warn().Err(err).Str("job_id", jobID).Msg("持久化JD向量失败")
		}
	}
	if p.cache != nil {
		if err := p.cache.SetJobVector(ctx, jobID, vector, p.modelVersion); err != nil {
			p.logger.Warn().Err(err).Str("job_id", jobID).Msg("缓存JD向量失败")
		}
	}
	return vector, nil
}

// IndexJobDescription 将岗位描述分块写入向量库，供评估时检索JD文本。
// 岗位更新时重复调用，旧分块先清理。
func (p *JDProcessor) IndexJobDescription(ctx context.Context, recruiterID, jobID, jdText string) (int, error) {
	if recruiterID == "" || jobID == "" {
		return 0, fmt.Errorf("recruiterID和jobID不能为空")
	}
	if strings.TrimSpace(jdText) == "" {
		return 0, fmt.Errorf("JD文本不能为空")
	}

	pieces := SplitIntoChunks(jdText, p.chunkSize)
	if len(pieces) == 0 {
		return 0, fmt.Errorf("JD分块结果为空")
	}

	vectors, err := p.embedder.EmbedStrings(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("JD分块向量化失败: %w", err)
	}
	if len(vectors) != len(pieces) {
		return 0, fmt.Errorf("向量数量(%d)与分块数量(%d)不一致", len(vectors), len(pieces))
	}

	chunks := make([]types.TextChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = types.TextChunk{
			DocType:     types.DocTypeJD,
			RecruiterID: recruiterID,
			JobID:       jobID,
			FileName:    JDFileName,
			ChunkIndex:  i,
			Content:     piece,
		}
	}

	delFilter := ranker.ChunkFilter{
		RecruiterID: recruiterID,
		JobID:       jobID,
		DocType:     types.DocTypeJD,
	}
	if err := p.indexer.DeleteChunks(ctx, delFilter); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("清理旧JD分块失败，继续写入")
	}

	if _, err := p.indexer.UpsertChunks(ctx, chunks, vectors); err != nil {
		return 0, fmt.Errorf("写入JD分块失败: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.SetJobText(ctx, jobID, jdText); err != nil {
			p.logger.Warn().Err(err).Str("job_id", jobID).Msg("缓存JD文本失败")
		}
	}

	p.logger.Info().Str("job_id", jobID).Int("chunk_count", len(chunks)).
		Str("jd_preview", tracing.SafeJDContent(jdText)).Msg("JD入库完成")
	return len(chunks), nil
}
