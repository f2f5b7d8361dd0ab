package processor

import (
	"context"
	"errors"
	"testing"

	"ats-rank-go/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJobCache struct {
	texts   map[string]string
	vectors map[string][]float64
	version string
}

func newStubJobCache() *stubJobCache {
	return &stubJobCache{
		texts:   make(map[string]string),
		vectors: make(map[string][]float64),
	}
}

func (s *stubJobCache) SetJobText(_ context.Context, jobID, text string) error {
	s.texts[jobID] = text
	return nil
}

func (s *stubJobCache) GetJobText(_ context.Context, jobID string) (string, error) {
	if text, ok := s.texts[jobID]; ok {
		return text, nil
	}
	return "", errors.New("cache miss")
}

func (s *stubJobCache) SetJobVector(_ context.Context, jobID string, vector []float64, version string) error {
	s.vectors[jobID] = vector
	s.version = version
	return nil
}

func (s *stubJobCache) GetJobVector(_ context.Context, jobID string) ([]float64, string, error) {
	if v, ok := s.vectors[jobID]; ok {
		return v, s.version, nil
	}
	return nil, "", errors.New("cache miss")
}

type stubJobVectorStore struct {
	vectors map[string][]float64
	version string
	saves   int
}

func newStubJobVectorStore() *stubJobVectorStore {
	return &stubJobVectorStore{vectors: make(map[string][]float64)}
}

func (s *stubJobVectorStore) SaveJobVector(_ context.Context, jobID string, vector []float64, version string) error {
	s.vectors[jobID] = vector
	s.version = version
	s.saves++
	return nil
}

func (s *stubJobVectorStore) GetJobVectorByID(_ context.Context, jobID string) ([]float64, string, error) {
	if v, ok := s.vectors[jobID]; ok {
		return v, s.version, nil
	}
	return nil, "", errors.New("not found")
}

func newTestJDProcessor(t *testing.T, cache *stubJobCache, store *stubJobVectorStore, indexer *stubIndexer) *JDProcessor {
	t.Helper()
	var c JobCache
	if cache != nil {
		c = cache
	}
	var s JobVectorStore
	if store != nil {
		s = store
	}
	p, err := NewJDProcessor(&stubIngestEmbedder{}, indexer, c, s, "text-embedding-v3", zerolog.Nop())
	require.NoError(t, err)
	return p
}

func TestJDProcessor_GetJobDescriptionVector_ComputesAndBackfills(t *testing.T) {
	cache := newStubJobCache()
	store := newStubJobVectorStore()
	p := newTestJDProcessor(t, cache, store, &stubIndexer{})

	vector, err := p.GetJobDescriptionVector(context.Background(), "job-1", "五年Go后端开发经验，熟悉Kubernetes")
	require.NoError(t, err)
	require.NotEmpty(t, vector)

	// 现算结果应回填缓存和持久层
	assert.Contains(t, cache.vectors, "job-1")
	assert.Equal(t, 1, store.saves)
}

func TestJDProcessor_GetJobDescriptionVector_CacheHit(t *testing.T) {
	cache := newStubJobCache()
	cache.vectors["job-1"] = []float64{0.5, 0.6}
	cache.version = "text-embedding-v3"
	store := newStubJobVectorStore()
	p := newTestJDProcessor(t, cache, store, &stubIndexer{})

	vector, err := p.GetJobDescriptionVector(context.Background(), "job-1", "")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.6}, vector)
	assert.Equal(t, 0, store.saves, "缓存命中时不应触发计算和写库")
}

func TestJDProcessor_GetJobDescriptionVector_StoreHitBackfillsCache(t *testing.T) {
	cache := newStubJobCache()
	store := newStubJobVectorStore()
	store.vectors["job-1"] = []float64{0.7, 0.8}
	store.version = "text-embedding-v3"
	p := newTestJDProcessor(t, cache, store, &stubIndexer{})

	vector, err := p.GetJobDescriptionVector(context.Background(), "job-1", "")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.7, 0.8}, vector)
	assert.Contains(t, cache.vectors, "job-1", "持久层命中应回填缓存")
}

func TestJDProcessor_GetJobDescriptionVector_EmptyText(t *testing.T) {
	p := newTestJDProcessor(t, newStubJobCache(), newStubJobVectorStore(), &stubIndexer{})
	_, err := p.GetJobDescriptionVector(context.Background(), "job-miss", "  ")
	require.Error(t, err)
}

func TestJDProcessor_IndexJobDescription(t *testing.T) {
	cache := newStubJobCache()
	indexer := &stubIndexer{}
	p := newTestJDProcessor(t, cache, newStubJobVectorStore(), indexer)

	count, err := p.IndexJobDescription(context.Background(), "r1", "job-1", "岗位职责\n\n负责后端服务开发\n\n任职要求\n\n五年以上Go经验")
	require.NoError(t, err)
	require.Greater(t, count, 0)

	// 分块应标记为JD类型并携带归属
	require.NotEmpty(t, indexer.upserted)
	for _, chunk := range indexer.upserted {
		assert.Equal(t, types.DocTypeJD, chunk.DocType)
		assert.Equal(t, "job-1", chunk.JobID)
		assert.Equal(t, JDFileName, chunk.FileName)
	}

	// 重建前应清掉旧JD分块
	require.Len(t, indexer.deleted, 1)
	assert.Equal(t, types.DocTypeJD, indexer.deleted[0].DocType)

	// JD文本同时进缓存
	assert.Equal(t, "岗位职责\n\n负责后端服务开发\n\n任职要求\n\n五年以上Go经验", cache.texts["job-1"])
}

func TestJDProcessor_IndexJobDescription_Validation(t *testing.T) {
	p := newTestJDProcessor(t, nil, nil, &stubIndexer{})

	_, err := p.IndexJobDescription(context.Background(), "", "job-1", "文本")
	require.Error(t, err)

	_, err = p.IndexJobDescription(context.Background(), "r1", "job-1", "   ")
	require.Error(t, err)
}
