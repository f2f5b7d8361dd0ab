package parser_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"ats-rank-go/internal/config"
	"ats-rank-go/internal/parser"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeEmbeddingServer(t *testing.T, dimensions int) (*httptest.Server, *[]map[string]interface{}) {
	t.Helper()

	var requests []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")

		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &req))
		requests = append(requests, req)

		// 兼容单文本(string)和多文本([]string)两种输入
		count := 1
		if arr, ok := req["input"].([]interface{}); ok {
			count = len(arr)
		}

		data := make([]map[string]interface{}, count)
		for i := 0; i < count; i++ {
			vec := make([]float64, dimensions)
			for j := range vec {
				vec[j] = float64(i+1) * 0.01
			}
			// 乱序返回index，验证调用方按index归位
			data[count-1-i] = map[string]interface{}{
				"object":    "embedding",
				"embedding": vec,
				"index":     i,
			}
		}

		resp := map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req["model"],
			"usage":  map[string]int{"prompt_tokens": 10, "total_tokens": 10},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

// TestAliyunEmbedder_EmbedStrings 测试多文本向量化及index归位
func TestAliyunEmbedder_EmbedStrings(t *testing.T) {
	server, requests := newFakeEmbeddingServer(t, 4)

	embedder, err := parser.NewAliyunEmbedder("test-key", config.EmbeddingConfig{
		Model:      "text-embedding-v3",
		Dimensions: 4,
		BaseURL:    server.URL,
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4, embedder.GetDimensions())

	embeddings, err := embedder.EmbedStrings(context.Background(), []string{"你好，世界", "这是一个测试文本"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	for i, emb := range embeddings {
		assert.Len(t, emb, 4, "第%d个向量维度应为4", i)
	}
	// index归位：第一个文本对应的向量值应为0.01
	assert.InDelta(t, 0.01, embeddings[0][0], 1e-9)
	assert.InDelta(t, 0.02, embeddings[1][0], 1e-9)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "text-embedding-v3", req["model"])
	assert.Equal(t, float64(4), req["dimensions"])
}

// TestAliyunEmbedder_EmbedStrings_SingleText 单文本输入应以string形式发送
func TestAliyunEmbedder_EmbedStrings_SingleText(t *testing.T) {
	server, requests := newFakeEmbeddingServer(t, 4)

	embedder, err := parser.NewAliyunEmbedder("test-key", config.EmbeddingConfig{
		Model:      "text-embedding-v3",
		Dimensions: 4,
		BaseURL:    server.URL,
	}, zerolog.Nop())
	require.NoError(t, err)

	embeddings, err := embedder.EmbedStrings(context.Background(), []string{"只有一段文本"})
	require.NoError(t, err)
	require.Len(t, embeddings, 1)

	req := (*requests)[0]
	_, isString := req["input"].(string)
	assert.True(t, isString, "单文本时input应为string")
}

// TestAliyunEmbedder_EmbedStrings_EmptyInput 空输入不应发起HTTP请求
func TestAliyunEmbedder_EmbedStrings_EmptyInput(t *testing.T) {
	server, requests := newFakeEmbeddingServer(t, 4)

	embedder, err := parser.NewAliyunEmbedder("test-key", config.EmbeddingConfig{
		Dimensions: 4,
		BaseURL:    server.URL,
	}, zerolog.Nop())
	require.NoError(t, err)

	embeddings, err := embedder.EmbedStrings(context.Background(), nil)
	require.NoError(t, err, "空输入应返回空切片而非错误")
	require.NotNil(t, embeddings)
	require.Empty(t, embeddings)
	assert.Empty(t, *requests, "空输入不应调用远端接口")
}

// TestAliyunEmbedder_EmbedStrings_APIError 接口报错时应透传错误信息
func TestAliyunEmbedder_EmbedStrings_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "Invalid API-key provided.", "type": "invalid_request_error", "code": "invalid_api_key"}`))
	}))
	defer server.Close()

	embedder, err := parser.NewAliyunEmbedder("bad-key", config.EmbeddingConfig{
		Dimensions: 4,
		BaseURL:    server.URL,
	}, zerolog.Nop())
	require.NoError(t, err)

	_, err = embedder.EmbedStrings(context.Background(), []string{"任意文本"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API-key")
}

// TestAliyunEmbedder_NewAliyunEmbedder_NoAPIKey 缺少API Key时初始化应失败
func TestAliyunEmbedder_NewAliyunEmbedder_NoAPIKey(t *testing.T) {
	_, err := parser.NewAliyunEmbedder("", config.EmbeddingConfig{}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API密钥不能为空")
}
