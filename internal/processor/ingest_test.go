package processor

import (
	"context"
	"errors"
	"testing"

	"ats-rank-go/internal/ranker"
	"ats-rank-go/internal/storage"
	"ats-rank-go/internal/storage/models"
	"ats-rank-go/internal/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFileStore struct {
	file      []byte
	getErr    error
	uploadErr error
}

func (s *stubFileStore) GetResumeFile(_ context.Context, _ string) ([]byte, error) {
	return s.file, s.getErr
}

func (s *stubFileStore) UploadParsedText(_ context.Context, submissionUUID string, _ string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return "resume/" + submissionUUID + "/parsed_text.txt", nil
}

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) ExtractFromBytes(_ context.Context, _ []byte, _ string) (string, error) {
	return s.text, s.err
}

type stubIngestEmbedder struct {
	err error
}

func (s *stubIngestEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2}
	}
	return out, nil
}

func (s *stubIngestEmbedder) GetDimensions() int { return 2 }

type stubIndexer struct {
	upserted   []types.TextChunk
	deleted    []ranker.ChunkFilter
	upsertErr  error
	deleteErr  error
}

func (s *stubIndexer) UpsertChunks(_ context.Context, chunks []types.TextChunk, vectors [][]float64) ([]string, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.upserted = append(s.upserted, chunks...)
	ids := make([]string, len(chunks))
	return ids, nil
}

func (s *stubIndexer) DeleteChunks(_ context.Context, filter ranker.ChunkFilter) error {
	s.deleted = append(s.deleted, filter)
	return s.deleteErr
}

type stubSubmissions struct {
	statuses []string
	fields   []map[string]interface{}
}

func (s *stubSubmissions) UpdateSubmissionStatus(_ context.Context, _ string, status string) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *stubSubmissions) UpdateSubmissionFields(_ context.Context, _ string, updates map[string]interface{}) error {
	s.fields = append(s.fields, updates)
	return nil
}

func newTestPipeline(t *testing.T, files *stubFileStore, extractor *stubExtractor, indexer *stubIndexer, subs *stubSubmissions) *IngestPipeline {
	t.Helper()
	p, err := NewIngestPipeline(files, extractor, &stubIngestEmbedder{}, indexer, subs, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func uploadedMsg() storage.ResumeUploadedMessage {
	return storage.ResumeUploadedMessage{
		SubmissionUUID:      "sub-1",
		RecruiterID:         "r1",
		TargetJobID:         "job-1",
		OriginalFilename:    "a.pdf",
		OriginalFilePathOSS: "resume/sub-1/original.pdf",
	}
}

func TestIngestPipeline_ProcessUploadedResume(t *testing.T) {
	files := &stubFileStore{file: []byte("%PDF-raw")}
	extractor := &stubExtractor{text: "工作经历\n\n五年Go后端开发经验，负责高并发系统设计。"}
	indexer := &stubIndexer{}
	subs := &stubSubmissions{}

	p := newTestPipeline(t, files, extractor, indexer, subs)
	err := p.ProcessUploadedResume(context.Background(), uploadedMsg())
	require.NoError(t, err)

	// 先置PARSING，最终通过fields更新为INDEXED
	require.NotEmpty(t, subs.statuses)
	assert.Equal(t, models.StatusParsing, subs.statuses[0])
	require.Len(t, subs.fields, 1)
	assert.Equal(t, models.StatusIndexed, subs.fields[0]["processing_status"])
	assert.Equal(t, len(indexer.upserted), subs.fields[0]["chunk_count"])

	// 分块携带完整的归属信息
	require.NotEmpty(t, indexer.upserted)
	first := indexer.upserted[0]
	assert.Equal(t, types.DocTypeResume, first.DocType)
	assert.Equal(t, "r1", first.RecruiterID)
	assert.Equal(t, "job-1", first.JobID)
	assert.Equal(t, "a.pdf", first.FileName)
	assert.Equal(t, 0, first.ChunkIndex)

	// 写入前应清理旧分块
	require.Len(t, indexer.deleted, 1)
	assert.Equal(t, "a.pdf", indexer.deleted[0].FileName)
}

func TestIngestPipeline_DownloadFailure(t *testing.T) {
	files := &stubFileStore{getErr: errors.New("对象不存在")}
	subs := &stubSubmissions{}

	p := newTestPipeline(t, files, &stubExtractor{}, &stubIndexer{}, subs)
	err := p.ProcessUploadedResume(context.Background(), uploadedMsg())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResumeDownloadFailed))
	assert.Contains(t, subs.statuses, models.StatusParseFailed)
}

func TestIngestPipeline_EmptyText(t *testing.T) {
	files := &stubFileStore{file: []byte("%PDF-raw")}
	extractor := &stubExtractor{text: "   \n  "}
	subs := &stubSubmissions{}

	p := newTestPipeline(t, files, extractor, &stubIndexer{}, subs)
	err := p.ProcessUploadedResume(context.Background(), uploadedMsg())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParseTextFailed))
}

func TestIngestPipeline_EmbedFailure(t *testing.T) {
	files := &stubFileStore{file: []byte("%PDF-raw")}
	extractor := &stubExtractor{text: "五年Go后端开发经验"}
	indexer := &stubIndexer{}
	subs := &stubSubmissions{}

	p, err := NewIngestPipeline(files, extractor, &stubIngestEmbedder{err: errors.New("embedding超时")}, indexer, subs, zerolog.Nop())
	require.NoError(t, err)

	err = p.ProcessUploadedResume(context.Background(), uploadedMsg())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbedFailed))
	assert.Contains(t, subs.statuses, models.StatusIndexFailed)
	assert.Empty(t, indexer.upserted)
}

func TestIngestPipeline_ParsedTextUploadFailureIsNonFatal(t *testing.T) {
	files := &stubFileStore{file: []byte("%PDF-raw"), uploadErr: errors.New("minio不可用")}
	extractor := &stubExtractor{text: "五年Go后端开发经验"}
	indexer := &stubIndexer{}
	subs := &stubSubmissions{}

	p := newTestPipeline(t, files, extractor, indexer, subs)
	err := p.ProcessUploadedResume(context.Background(), uploadedMsg())
	require.NoError(t, err, "解析文本归档失败不应阻断入库")
	require.Len(t, subs.fields, 1)
	_, hasPath := subs.fields[0]["parsed_text_path_oss"]
	assert.False(t, hasPath, "归档失败时不应写入解析文本路径")
}

func TestIngestPipeline_MessageHandler(t *testing.T) {
	files := &stubFileStore{file: []byte("%PDF-raw")}
	extractor := &stubExtractor{text: "五年Go后端开发经验"}
	p := newTestPipeline(t, files, extractor, &stubIndexer{}, &stubSubmissions{})

	handler := p.MessageHandler(0)

	// 损坏的消息体直接ack丢弃
	assert.True(t, handler([]byte("not-json")))

	// 正常消息处理成功后ack
	body := []byte(`{"submission_uuid":"sub-1","recruiter_id":"r1","target_job_id":"job-1","original_filename":"a.pdf","original_file_path_oss":"resume/sub-1/original.pdf"}`)
	assert.True(t, handler(body))
}
