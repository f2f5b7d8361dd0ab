package ranker

import (
	"context"

	"ats-rank-go/internal/types"

	"github.com/cloudwego/eino/components/embedding"
)

// ChunkFilter 向量库分块检索的精确匹配条件，空字段不参与过滤
type ChunkFilter struct {
	RecruiterID string
	JobID       string
	DocType     types.DocType
	FileName    string
}

//
// 存储相关接口
//

// ChunkStore 文本分块存储接口，由向量库适配器实现
type ChunkStore interface {
	// GetChunks 按过滤条件拉取分块，返回顺序即存储层返回顺序
	GetChunks(ctx context.Context, filter ChunkFilter) ([]types.TextChunk, error)
}

//
// 向量嵌入相关接口
//

// TextEmbedder 文本向量化接口 (符合 cloudwego/eino 规范)
type TextEmbedder interface {
	// EmbedStrings 将文本转换为向量表示
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)

	// GetDimensions 返回嵌入向量的维度
	GetDimensions() int
}

//
// LLM 技能抽取相关接口
//

// SkillExtractor 两阶段技能抽取器接口
type SkillExtractor interface {
	// ExtractAndMatch 先从 JD 抽取技能清单，再对照简历逐项判定
	// 失败时返回降级的全零结果而非错误
	ExtractAndMatch(ctx context.Context, jobDescription string, resumeText string) *types.SkillMatch
}
