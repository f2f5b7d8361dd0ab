package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ats-rank-go/internal/ranker"
	"ats-rank-go/internal/storage"
	"ats-rank-go/internal/storage/models"
	"ats-rank-go/internal/tracing"
	"ats-rank-go/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ingestTracer = otel.Tracer("ats-rank-go/processor/ingest")

// IngestPipeline 简历入库流水线：下载 -> 提取文本 -> 分块 -> 向量化 -> 写入向量库。
// 由RabbitMQ的简历上传消息驱动，每条消息处理一份简历。
type IngestPipeline struct {
	files       FileStore
	extractor   TextExtractor
	embedder    ranker.TextEmbedder
	indexer     ChunkIndexer
	submissions SubmissionStore
	chunkSize   int
	logger      zerolog.Logger
}

// IngestOption 入库流水线配置选项
type IngestOption func(*IngestPipeline)

// WithChunkSize 设置分块的最大字符数
func WithChunkSize(size int) IngestOption {
	return func(p *IngestPipeline) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// NewIngestPipeline 创建简历入库流水线
func NewIngestPipeline(
	files FileStore,
	extractor TextExtractor,
	embedder ranker.TextEmbedder,
	indexer ChunkIndexer,
	submissions SubmissionStore,
	logger zerolog.Logger,
	opts ...IngestOption,
) (*IngestPipeline, error) {
	if files == nil || extractor == nil || embedder == nil || indexer == nil || submissions == nil {
		return nil, fmt.Errorf("入库流水线依赖不完整")
	}

	p := &IngestPipeline{
		files:       files,
		extractor:   extractor,
		embedder:    embedder,
		indexer:     indexer,
		submissions: submissions,
		chunkSize:   defaultChunkMaxChars,
		logger:      logger.With().Str("component", "ingest_pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ProcessUploadedResume 处理一条简历上传消息，幂等：
// 重复消费会先清掉旧分块再重新写入，分块point ID是确定性生成的。
func (p *IngestPipeline) ProcessUploadedResume(ctx context.Context, msg storage.ResumeUploadedMessage) error {
	ctx, span := ingestTracer.Start(ctx, "IngestPipeline.ProcessUploadedResume",
		trace.WithAttributes(
			attribute.String("submission.uuid", msg.SubmissionUUID),
			attribute.String("submission.file_name", msg.OriginalFilename),
		))
	defer span.End()

	log := p.logger.With().Str("submission_uuid", msg.SubmissionUUID).Str("file_name", msg.OriginalFilename).Logger()

	if msg.SubmissionUUID == "" || msg.OriginalFilePathOSS == "" {
		err := NewDownloadError(msg.SubmissionUUID, "消息缺少必要字段")
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := p.submissions.UpdateSubmissionStatus(ctx, msg.SubmissionUUID, models.StatusParsing); err != nil {
		log.Warn().Err(err).Msg("更新状态为PARSING失败，继续处理")
	}

	// 下载原始文件
	raw, err := p.files.GetResumeFile(ctx, msg.OriginalFilePathOSS)
	if err != nil {
		p.markFailed(ctx, msg.SubmissionUUID, models.StatusParseFailed, log)
		span.RecordError(err)
		span.SetStatus(codes.Error, "download failed")
		return NewDownloadError(msg.SubmissionUUID, err.Error())
	}

	// 提取文本
	text, err := p.extractor.ExtractFromBytes(ctx, raw, msg.OriginalFilename)
	if err != nil {
		p.markFailed(ctx, msg.SubmissionUUID, models.StatusParseFailed, log)
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return NewParseError(msg.SubmissionUUID, err.Error())
	}
	if strings.TrimSpace(text) == "" {
		p.markFailed(ctx, msg.SubmissionUUID, models.StatusParseFailed, log)
		return NewParseError(msg.SubmissionUUID, "简历未提取出任何文本")
	}
	// 日志只留截断后的预览，简历全文不进日志
	log.Debug().Int("text_length", len(text)).
		Str("text_preview", tracing.SafeResumeContent(text)).
		Msg("简历文本提取完成")

	// 解析文本归档到对象存储，失败不阻断流水线
	parsedPath, err := p.files.UploadParsedText(ctx, msg.SubmissionUUID, text)
	if err != nil {
		log.Warn().Err(err).Msg("上传解析文本失败，继续入库")
		parsedPath = ""
	}

	// 分块并向量化
	pieces := SplitIntoChunks(text, p.chunkSize)
	if len(pieces) == 0 {
		p.markFailed(ctx, msg.SubmissionUUID, models.StatusParseFailed, log)
		return NewParseError(msg.SubmissionUUID, "分块结果为空")
	}

	vectors, err := p.embedder.EmbedStrings(ctx, pieces)
	if err != nil {
		p.markFailed(ctx, msg.SubmissionUUID, models.StatusIndexFailed, log)
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return NewEmbedError(msg.SubmissionUUID, err.Error())
	}
	if len(vectors) != len(pieces) {
		p.markFailed(ctx, msg.SubmissionUUID, models.StatusIndexFailed, log)
		return NewEmbedError(msg.SubmissionUUID,
			fmt.Sprintf("向量数量(%d)与分块数量(%d)不一致", len(vectors), len(pieces)))
	}

	chunks := make([]types.TextChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = types.TextChunk{
			DocType:     types.DocTypeResume,
			RecruiterID: msg.RecruiterID,
			JobID:       msg.TargetJobID,
			CandidateID: "",
			FileName:    msg.OriginalFilename,
			ChunkIndex:  i,
			Content:     piece,
		}
	}

	// 重复消费时先清理旧分块，分块数变少也不会留下孤儿点
	delFilter := ranker.ChunkFilter{
		RecruiterID: msg.RecruiterID,
		JobID:       msg.TargetJobID,
		DocType:     types.DocTypeResume,
		FileName:    msg.OriginalFilename,
	}
	if err := p.indexer.DeleteChunks(ctx, delFilter); err != nil {
		log.Warn().Err(err).Msg("清理旧分块失败，继续写入")
	}

	if _, err := p.indexer.UpsertChunks(ctx, chunks, vectors); err != nil {
		p.markFailed(ctx, msg.SubmissionUUID, models.StatusIndexFailed, log)
		span.RecordError(err)
		span.SetStatus(codes.Error, "index failed")
		return NewIndexError(msg.SubmissionUUID, err.Error())
	}

	updates := map[string]interface{}{
		"processing_status": models.StatusIndexed,
		"chunk_count":       len(chunks),
	}
	if parsedPath != "" {
		updates["parsed_text_path_oss"] = parsedPath
	}
	if err := p.submissions.UpdateSubmissionFields(ctx, msg.SubmissionUUID, updates); err != nil {
		span.RecordError(err)
		return NewUpdateError(msg.SubmissionUUID, err.Error())
	}

	span.SetAttributes(attribute.Int("ingest.chunk_count", len(chunks)))
	span.SetStatus(codes.Ok, "")
	log.Info().Int("chunk_count", len(chunks)).Msg("简历入库完成")
	return nil
}

// markFailed 将提交置为失败状态，失败本身只记日志
func (p *IngestPipeline) markFailed(ctx context.Context, submissionUUID, status string, log zerolog.Logger) {
	if err := p.submissions.UpdateSubmissionStatus(ctx, submissionUUID, status); err != nil {
		log.Error().Err(err).Str("status", status).Msg("更新失败状态出错")
	}
}

// MessageHandler 返回适配RabbitMQ消费者的处理函数。
// 返回true表示ack；解析失败或处理失败返回false触发重新投递。
func (p *IngestPipeline) MessageHandler(timeout time.Duration) func([]byte) bool {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return func(body []byte) bool {
		var msg storage.ResumeUploadedMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			// 消息体损坏，重投也不会成功
			p.logger.Error().Err(err).Msg("简历上传消息解析失败，丢弃")
			return true
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := p.ProcessUploadedResume(ctx, msg); err != nil {
			p.logger.Error().Err(err).Str("submission_uuid", msg.SubmissionUUID).Msg("简历入库失败")
			return false
		}
		return true
	}
}
