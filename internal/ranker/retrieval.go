package ranker

import (
	"context"
	"fmt"
	"strings"

	"ats-rank-go/internal/types"

	"github.com/rs/zerolog"
)

// Retriever 从分块存储还原 JD 与简历全文的检索适配器
// 分块按存储层返回顺序拼接，不做二次排序
type Retriever struct {
	store  ChunkStore
	logger zerolog.Logger
}

// NewRetriever 创建检索适配器
func NewRetriever(store ChunkStore, logger zerolog.Logger) *Retriever {
	return &Retriever{
		store:  store,
		logger: logger.With().Str("component", "Retriever").Logger(),
	}
}

// FetchTexts 拉取指定岗位的 JD 全文和指定文件名的简历全文
// 任一侧没有分块时返回 ErrNotFound
func (r *Retriever) FetchTexts(ctx context.Context, recruiterID, jobID, fileName string) (string, string, error) {
	jdChunks, err := r.store.GetChunks(ctx, ChunkFilter{
		RecruiterID: recruiterID,
		JobID:       jobID,
		DocType:     types.DocTypeJD,
	})
	if err != nil {
		return "", "", fmt.Errorf("拉取JD分块失败: %w", err)
	}
	if len(jdChunks) == 0 {
		return "", "", NewNotFoundError(jobID, "", "JD分块不存在")
	}

	resumeChunks, err := r.store.GetChunks(ctx, ChunkFilter{
		RecruiterID: recruiterID,
		JobID:       jobID,
		DocType:     types.DocTypeResume,
		FileName:    fileName,
	})
	if err != nil {
		return "", "", fmt.Errorf("拉取简历分块失败: %w", err)
	}
	if len(resumeChunks) == 0 {
		return "", "", NewNotFoundError(jobID, fileName, "简历分块不存在")
	}

	return joinChunks(jdChunks), joinChunks(resumeChunks), nil
}

// FetchBatch 拉取 JD 全文和该岗位下全部简历全文
// 简历按文件名聚合，聚合顺序为分块首次出现的顺序
func (r *Retriever) FetchBatch(ctx context.Context, recruiterID, jobID string) (string, []types.ResumeDoc, error) {
	jdChunks, err := r.store.GetChunks(ctx, ChunkFilter{
		RecruiterID: recruiterID,
		JobID:       jobID,
		DocType:     types.DocTypeJD,
	})
	if err != nil {
		return "", nil, fmt.Errorf("拉取JD分块失败: %w", err)
	}
	if len(jdChunks) == 0 {
		return "", nil, NewNotFoundError(jobID, "", "JD分块不存在")
	}

	resumeChunks, err := r.store.GetChunks(ctx, ChunkFilter{
		RecruiterID: recruiterID,
		JobID:       jobID,
		DocType:     types.DocTypeResume,
	})
	if err != nil {
		return "", nil, fmt.Errorf("拉取简历分块失败: %w", err)
	}
	if len(resumeChunks) == 0 {
		return "", nil, NewNotFoundError(jobID, "", "该岗位下没有任何简历")
	}

	// 按文件名聚合，保持首次出现顺序
	order := make([]string, 0)
	grouped := make(map[string][]types.TextChunk)
	candidateIDs := make(map[string]string)
	for _, chunk := range resumeChunks {
		if _, ok := grouped[chunk.FileName]; !ok {
			order = append(order, chunk.FileName)
			candidateIDs[chunk.FileName] = chunk.CandidateID
		}
		grouped[chunk.FileName] = append(grouped[chunk.FileName], chunk)
	}

	docs := make([]types.ResumeDoc, 0, len(order))
	for _, fileName := range order {
		docs = append(docs, types.ResumeDoc{
			FileName:    fileName,
			CandidateID: candidateIDs[fileName],
			Text:        joinChunks(grouped[fileName]),
		})
	}

	r.logger.Debug().
		Str("job_id", jobID).
		Int("jd_chunks", len(jdChunks)).
		Int("resume_count", len(docs)).
		Msg("批量文本检索完成")

	return joinChunks(jdChunks), docs, nil
}

// joinChunks 按传入顺序用换行符拼接分块内容
func joinChunks(chunks []types.TextChunk) string {
	var sb strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(chunk.Content)
	}
	return sb.String()
}
