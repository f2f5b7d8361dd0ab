package storage_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ats-rank-go/internal/config"
	"ats-rank-go/internal/ranker"
	"ats-rank-go/internal/storage"
	"ats-rank-go/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collectionOKBody = `{"result": {"config": {"params": {"vectors": {"size": 4, "distance": "Cosine"}}}}}`

func newTestQdrant(t *testing.T, handler http.HandlerFunc) *storage.Qdrant {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "test_chunks",
		Dimension:  4,
	}

	client, err := storage.NewQdrant(cfg, zerolog.Nop(), storage.WithHTTPTimeout(5*time.Second))
	require.NoError(t, err, "应该成功创建Qdrant客户端")
	return client
}

// TestQdrant_NewQdrant 测试Qdrant客户端初始化
func TestQdrant_NewQdrant(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/test_chunks" && r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(collectionOKBody))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	require.NotNil(t, client)
}

// TestQdrant_NewQdrant_CreatesMissingCollection 集合不存在时应自动创建
func TestQdrant_NewQdrant_CreatesMissingCollection(t *testing.T) {
	var createReq map[string]interface{}
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/collections/test_chunks" && r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status": {"error": "collection not found"}}`))
		case r.URL.Path == "/collections/test_chunks" && r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &createReq))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": true, "status": "ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	require.NotNil(t, client)

	require.NotNil(t, createReq, "应发送创建集合请求")
	vectors, ok := createReq["vectors"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(4), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

// TestQdrant_UpsertChunks 测试分块写入及point ID的确定性
func TestQdrant_UpsertChunks(t *testing.T) {
	var upsertReqs []map[string]interface{}
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/collections/test_chunks" && r.Method == http.MethodGet:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(collectionOKBody))
		case r.URL.Path == "/collections/test_chunks/points" && r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			var req map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &req))
			upsertReqs = append(upsertReqs, req)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"operation_id": 1, "status": "completed"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	chunks := []types.TextChunk{
		{
			DocType:     types.DocTypeResume,
			RecruiterID: "recruiter-1",
			JobID:       "job-1",
			CandidateID: "cand-1",
			FileName:    "a.pdf",
			ChunkIndex:  0,
			Content:     "三年后端开发经验",
		},
	}
	vectors := [][]float64{{0.1, 0.2, 0.3, 0.4}}

	ctx := context.Background()
	ids, err := client.UpsertChunks(ctx, chunks, vectors)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	// 同一分块重复写入得到同一个point ID
	ids2, err := client.UpsertChunks(ctx, chunks, vectors)
	require.NoError(t, err)
	assert.Equal(t, ids[0], ids2[0], "point ID应是确定性的")

	require.Len(t, upsertReqs, 2)
	points, ok := upsertReqs[0]["points"].([]interface{})
	require.True(t, ok)
	require.Len(t, points, 1)
	payload := points[0].(map[string]interface{})["payload"].(map[string]interface{})
	assert.Equal(t, "resume", payload["doc_type"])
	assert.Equal(t, "job-1", payload["job_id"])
	assert.Equal(t, "a.pdf", payload["file_name"])
	assert.Equal(t, "三年后端开发经验", payload["content"])
}

// TestQdrant_UpsertChunks_DimensionMismatch 向量维度不匹配时应报错
func TestQdrant_UpsertChunks_DimensionMismatch(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/test_chunks" && r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(collectionOKBody))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	chunks := []types.TextChunk{{FileName: "a.pdf"}}
	_, err := client.UpsertChunks(context.Background(), chunks, [][]float64{{0.1, 0.2}})
	require.Error(t, err)
}

// TestQdrant_GetChunks 测试过滤条件构造与分块排序
func TestQdrant_GetChunks(t *testing.T) {
	var scrollReq map[string]interface{}
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/collections/test_chunks" && r.Method == http.MethodGet:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(collectionOKBody))
		case r.URL.Path == "/collections/test_chunks/points/scroll" && r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &scrollReq))
			// 故意乱序返回，GetChunks应按chunk_index排好
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{
				"result": {
					"points": [
						{"id": "p2", "payload": {"doc_type": "resume", "job_id": "job-1", "file_name": "a.pdf", "chunk_index": 1, "content": "第二段"}},
						{"id": "p1", "payload": {"doc_type": "resume", "job_id": "job-1", "file_name": "a.pdf", "chunk_index": 0, "content": "第一段"}}
					],
					"next_page_offset": null
				}
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	chunks, err := client.GetChunks(context.Background(), ranker.ChunkFilter{
		RecruiterID: "recruiter-1",
		JobID:       "job-1",
		DocType:     types.DocTypeResume,
		FileName:    "a.pdf",
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, "第一段", chunks[0].Content)
	assert.Equal(t, "第二段", chunks[1].Content)

	// 四个过滤字段都应出现在must子句中
	filter, ok := scrollReq["filter"].(map[string]interface{})
	require.True(t, ok, "应携带过滤条件")
	must, ok := filter["must"].([]interface{})
	require.True(t, ok)
	require.Len(t, must, 4)
	keys := make([]string, 0, len(must))
	for _, cond := range must {
		keys = append(keys, cond.(map[string]interface{})["key"].(string))
	}
	assert.ElementsMatch(t, []string{"recruiter_id", "job_id", "doc_type", "file_name"}, keys)
}

// TestQdrant_SearchSimilarChunks 测试相似检索结果转换
func TestQdrant_SearchSimilarChunks(t *testing.T) {
	client := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/collections/test_chunks" && r.Method == http.MethodGet:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(collectionOKBody))
		case r.URL.Path == "/collections/test_chunks/points/search" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{
				"result": [
					{"id": "p1", "score": 0.95, "payload": {"doc_type": "resume", "file_name": "a.pdf", "chunk_index": 0, "content": "精通Go与Redis"}}
				],
				"time": 0.001
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	hits, err := client.SearchSimilarChunks(context.Background(), []float64{0.1, 0.2, 0.3, 0.4}, 10, ranker.ChunkFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 0.95, float64(hits[0].Score), 0.001)
	assert.Equal(t, "a.pdf", hits[0].Chunk.FileName)
	assert.Equal(t, "精通Go与Redis", hits[0].Chunk.Content)
}
