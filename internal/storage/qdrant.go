package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"ats-rank-go/internal/config"
	"ats-rank-go/internal/ranker"
	"ats-rank-go/internal/tracing"
	"ats-rank-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// 定义Qdrant的专用tracer
var qdrantTracer = otel.Tracer("ats-rank-go/storage/qdrant")

// ChunkPointIDNamespace 用于为文本块生成确定性的Qdrant point ID。
// 同一个文档的同一个分块总是得到同一个point ID，重复写入天然幂等。
var ChunkPointIDNamespace = uuid.Must(uuid.FromString("b1f4a9d0-4d2e-4f6a-9c38-2d7f0e5b8c41"))

// 确保Qdrant实现了ranker.ChunkStore接口
var _ ranker.ChunkStore = (*Qdrant)(nil)

// Qdrant 提供向量数据库功能：分块存取、相似检索
type Qdrant struct {
	endpoint       string
	collectionName string
	vectorSize     int
	distanceMetric string
	apiKey         string
	httpClient     *http.Client
	logger         zerolog.Logger
}

// ScoredChunk 表示一次相似度检索命中的分块
type ScoredChunk struct {
	Chunk types.TextChunk
	Score float32
}

// QdrantOption 定义Qdrant构造函数选项
type QdrantOption func(*Qdrant)

// WithDistanceMetric 设置距离度量
func WithDistanceMetric(metric string) QdrantOption {
	return func(q *Qdrant) {
		q.distanceMetric = metric
	}
}

// WithHTTPTimeout 设置HTTP客户端超时
func WithHTTPTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant 创建Qdrant客户端并确保集合存在
func NewQdrant(cfg *config.QdrantConfig, logger zerolog.Logger, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:6333"
	}

	collectionName := cfg.Collection
	if collectionName == "" {
		collectionName = "rank_chunks"
	}

	vectorSize := cfg.Dimension
	if vectorSize <= 0 {
		vectorSize = 1024 // 与阿里云Embedding维度一致
	}

	q := &Qdrant{
		endpoint:       endpoint,
		collectionName: collectionName,
		vectorSize:     vectorSize,
		distanceMetric: "Cosine",
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         logger.With().Str("component", "qdrant").Logger(),
	}

	for _, opt := range opts {
		opt(q)
	}

	if err := q.ensureCollectionExists(context.Background()); err != nil {
		return nil, fmt.Errorf("确保集合 '%s' 存在失败: %w", collectionName, err)
	}

	q.logger.Info().Str("endpoint", endpoint).Str("collection", collectionName).Msg("Qdrant客户端初始化成功")
	return q, nil
}

// ensureCollectionExists 确保向量集合存在，不存在则创建
func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.EnsureCollectionExists",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "check_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
	)

	var collectionInfo struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	statusCode, err := q.doRequestWithStatus(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", q.collectionName), nil, &collectionInfo)
	if err != nil {
		if statusCode == http.StatusNotFound {
			span.AddEvent("collection_not_found", trace.WithAttributes(
				attribute.String("action", "create_collection"),
			))
			q.logger.Info().Str("collection", q.collectionName).Msg("集合不存在，创建新集合")
			return q.createCollection(ctx)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	existingSize := collectionInfo.Result.Config.Params.Vectors.Size
	existingDistance := collectionInfo.Result.Config.Params.Vectors.Distance

	span.SetAttributes(
		attribute.Int("collection.existing_vector_size", existingSize),
		attribute.String("collection.existing_distance", existingDistance),
	)

	if existingSize != q.vectorSize || existingDistance != q.distanceMetric {
		q.logger.Warn().
			Int("existing_size", existingSize).
			Str("existing_distance", existingDistance).
			Int("expected_size", q.vectorSize).
			Str("expected_distance", q.distanceMetric).
			Msg("现有集合配置与当前配置不匹配")
		span.AddEvent("collection_config_mismatch", trace.WithAttributes(
			attribute.Int("expected_vector_size", q.vectorSize),
			attribute.String("expected_distance", q.distanceMetric),
		))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// createCollection 创建新的向量集合
func (q *Qdrant) createCollection(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CreateCollection",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "create_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
		attribute.String("db.vector.distance", q.distanceMetric),
	)

	createReqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.vectorSize,
			"distance": q.distanceMetric,
		},
		"optimizers_config": map[string]interface{}{
			"default_segment_number": 2,
		},
	}

	if err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collectionName), createReqBody, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	q.logger.Info().Str("collection", q.collectionName).Int("vector_size", q.vectorSize).Msg("已创建Qdrant集合")
	return nil
}

// chunkPointID 基于分块身份字段生成确定性的point ID
func chunkPointID(chunk types.TextChunk) string {
	idSource := fmt.Sprintf("recruiter:%s|job:%s|doc:%s|file:%s|chunk:%d",
		chunk.RecruiterID, chunk.JobID, chunk.DocType, chunk.FileName, chunk.ChunkIndex)
	return uuid.NewV5(ChunkPointIDNamespace, idSource).String()
}

// UpsertChunks 将分块与对应向量写入集合，返回point ID列表。
// point ID是确定性生成的，重复写入同一分块只会覆盖而不会产生重复点。
func (q *Qdrant) UpsertChunks(ctx context.Context, chunks []types.TextChunk, vectors [][]float64) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.UpsertChunks",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "upsert_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("chunks.count", len(chunks)),
	)

	if len(chunks) != len(vectors) {
		err := fmt.Errorf("分块数量(%d)与向量数量(%d)不匹配", len(chunks), len(vectors))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(chunks) == 0 {
		span.SetStatus(codes.Ok, "no chunks to upsert")
		return []string{}, nil
	}

	// span里只留截断后的内容预览，不落全量文本
	span.SetAttributes(
		attribute.String("first_chunk.file_name", chunks[0].FileName),
		attribute.String("first_chunk.content_preview",
			tracing.SafeAttributeValue("content", chunks[0].Content, tracing.MaxQdrantLength)),
	)

	points := make([]interface{}, 0, len(chunks))
	ids := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if len(vectors[i]) != q.vectorSize {
			err := fmt.Errorf("向量维度(%d)与配置维度(%d)不匹配", len(vectors[i]), q.vectorSize)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		pointID := chunkPointID(chunk)
		ids = append(ids, pointID)

		points = append(points, map[string]interface{}{
			"id":     pointID,
			"vector": vectors[i],
			"payload": map[string]interface{}{
				"doc_type":     string(chunk.DocType),
				"recruiter_id": chunk.RecruiterID,
				"job_id":       chunk.JobID,
				"candidate_id": chunk.CandidateID,
				"file_name":    chunk.FileName,
				"chunk_index":  chunk.ChunkIndex,
				"content":      chunk.Content,
			},
		})
	}

	requestBody := map[string]interface{}{"points": points}
	if err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName), requestBody, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("points.count", len(points)))
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// buildFilterConditions 将过滤条件转换为Qdrant的must匹配子句，空字段不参与过滤
func buildFilterConditions(filter ranker.ChunkFilter) []map[string]interface{} {
	var must []map[string]interface{}
	addMatch := func(key, value string) {
		if value == "" {
			return
		}
		must = append(must, map[string]interface{}{
			"key":   key,
			"match": map[string]interface{}{"value": value},
		})
	}
	addMatch("recruiter_id", filter.RecruiterID)
	addMatch("job_id", filter.JobID)
	addMatch("doc_type", string(filter.DocType))
	addMatch("file_name", filter.FileName)
	return must
}

// GetChunks 按过滤条件scroll出全部匹配的分块。
// 结果按 (file_name, chunk_index) 排序，保证同一文档内分块按入库顺序返回。
func (q *Qdrant) GetChunks(ctx context.Context, filter ranker.ChunkFilter) ([]types.TextChunk, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.GetChunks",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "qdrant"),
			attribute.String("db.operation", "scroll"),
			attribute.String("db.collection", q.collectionName),
			attribute.String("filter.job_id", filter.JobID),
			attribute.String("filter.doc_type", string(filter.DocType)),
			attribute.String("filter.file_name", filter.FileName),
		),
	)
	defer span.End()

	must := buildFilterConditions(filter)

	var chunks []types.TextChunk
	var nextOffset interface{}
	for {
		scrollReqBody := map[string]interface{}{
			"with_payload": true,
			"with_vector":  false,
			"limit":        256,
		}
		if len(must) > 0 {
			scrollReqBody["filter"] = map[string]interface{}{"must": must}
		}
		if nextOffset != nil {
			scrollReqBody["offset"] = nextOffset
		}

		var scrollResp struct {
			Result struct {
				Points []struct {
					ID      string                 `json:"id"`
					Payload map[string]interface{} `json:"payload"`
				} `json:"points"`
				NextPageOffset interface{} `json:"next_page_offset"`
			} `json:"result"`
		}

		if err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/scroll", q.collectionName), scrollReqBody, &scrollResp); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to scroll chunks")
			return nil, err
		}

		for _, point := range scrollResp.Result.Points {
			chunks = append(chunks, chunkFromPayload(point.ID, point.Payload))
		}

		if scrollResp.Result.NextPageOffset == nil {
			break
		}
		nextOffset = scrollResp.Result.NextPageOffset
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].FileName != chunks[j].FileName {
			return chunks[i].FileName < chunks[j].FileName
		}
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})

	span.SetAttributes(attribute.Int("chunks.count", len(chunks)))
	span.SetStatus(codes.Ok, "")
	return chunks, nil
}

// SearchSimilarChunks 以查询向量检索最相似的分块，用于问答场景的上下文召回
func (q *Qdrant) SearchSimilarChunks(ctx context.Context, queryVector []float64, limit int, filter ranker.ChunkFilter) ([]ScoredChunk, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.SearchSimilarChunks",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "search_vectors"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("search.limit", limit),
		attribute.Int("query_vector.size", len(queryVector)),
	)

	if len(queryVector) != q.vectorSize {
		err := fmt.Errorf("查询向量维度(%d)与配置维度(%d)不匹配", len(queryVector), q.vectorSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	searchReq := map[string]interface{}{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if must := buildFilterConditions(filter); len(must) > 0 {
		searchReq["filter"] = map[string]interface{}{"must": must}
	}

	var result struct {
		Result []struct {
			ID      string                 `json:"id"`
			Score   float32                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}

	if err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collectionName), searchReq, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits := make([]ScoredChunk, 0, len(result.Result))
	for _, point := range result.Result {
		hits = append(hits, ScoredChunk{
			Chunk: chunkFromPayload(point.ID, point.Payload),
			Score: point.Score,
		})
	}

	span.SetAttributes(attribute.Int("search.results.count", len(hits)))
	span.SetStatus(codes.Ok, "")
	return hits, nil
}

// DeleteChunks 按过滤条件删除分块，用于重新入库前清理旧数据
func (q *Qdrant) DeleteChunks(ctx context.Context, filter ranker.ChunkFilter) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.DeleteChunks",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "delete_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("filter.job_id", filter.JobID),
		attribute.String("filter.file_name", filter.FileName),
	)

	must := buildFilterConditions(filter)
	if len(must) == 0 {
		err := fmt.Errorf("删除分块必须指定至少一个过滤条件")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	reqBody := map[string]interface{}{
		"filter": map[string]interface{}{"must": must},
	}

	if err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collectionName), reqBody, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CountPoints 获取集合中的点数量
func (q *Qdrant) CountPoints(ctx context.Context) (int64, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CountPoints",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "count_points"),
		attribute.String("db.collection", q.collectionName),
	)

	countReqBody := map[string]interface{}{"exact": true}

	var result struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}

	if err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", q.collectionName), countReqBody, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int64("qdrant.points.count", result.Result.Count))
	span.SetStatus(codes.Ok, "")
	return result.Result.Count, nil
}

// chunkFromPayload 将Qdrant payload还原为TextChunk
func chunkFromPayload(pointID string, payload map[string]interface{}) types.TextChunk {
	chunk := types.TextChunk{PointID: pointID}
	if v, ok := payload["doc_type"].(string); ok {
		chunk.DocType = types.DocType(v)
	}
	if v, ok := payload["recruiter_id"].(string); ok {
		chunk.RecruiterID = v
	}
	if v, ok := payload["job_id"].(string); ok {
		chunk.JobID = v
	}
	if v, ok := payload["candidate_id"].(string); ok {
		chunk.CandidateID = v
	}
	if v, ok := payload["file_name"].(string); ok {
		chunk.FileName = v
	}
	if v, ok := payload["chunk_index"].(float64); ok {
		chunk.ChunkIndex = int(v)
	}
	if v, ok := payload["content"].(string); ok {
		chunk.Content = v
	}
	return chunk
}

// doRequest 发送一次Qdrant HTTP请求并解析JSON响应
func (q *Qdrant) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	_, err := q.doRequestWithStatus(ctx, method, path, body, result)
	return err
}

// doRequestWithStatus 同doRequest，额外返回HTTP状态码，便于调用方区分404
func (q *Qdrant) doRequestWithStatus(ctx context.Context, method, path string, body interface{}, result interface{}) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", path),
	)

	var req *http.Request
	var err error

	if body != nil {
		var jsonBody []byte
		jsonBody, err = json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return 0, err
		}

		req, err = http.NewRequestWithContext(ctx, method, q.endpoint+path, bytes.NewBuffer(jsonBody))
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")

		span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, q.endpoint+path, nil)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return 0, err
		}
	}

	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return 0, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return resp.StatusCode, err
	}

	span.SetAttributes(attribute.Int("http.response.body.size", len(respBody)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("qdrant API error: status=%d, body=%s", resp.StatusCode, string(respBody))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return resp.StatusCode, err
	}

	if result != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return resp.StatusCode, err
		}
	}

	span.SetStatus(codes.Ok, "")
	return resp.StatusCode, nil
}
