package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"ats-rank-go/internal/config"
	"ats-rank-go/internal/constants"
	"ats-rank-go/internal/types"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrCacheMiss 表示键不存在，包装底层的redis.Nil
var ErrCacheMiss = redis.Nil

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("ats-rank-go/storage/redis")

// Redis操作前缀采样率配置
var redisKeySamplingRates = map[string]float64{
	"app:rank:session:": 0.25, // 排名会话缓存采样25%
	"app:rank:detail:":  0.25,
	"app:rank:lock:":    0.5, // 锁操作采样50%
	"app:job:":          0.1, // 岗位缓存采样10%
	"app:chat:":         0.05,
}

// 随机数生成器
var (
	rnd      *rand.Rand
	rndMutex sync.Mutex
)

func init() {
	source := rand.NewSource(time.Now().UnixNano())
	rnd = rand.New(source)
}

// shouldSampleRedisOp 根据key前缀决定是否需要创建span
func shouldSampleRedisOp(key string) bool {
	if key == "" {
		return false
	}

	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return randFloat() < rate
		}
	}

	// 默认采样率5%
	return randFloat() < 0.05
}

func randFloat() float64 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return rnd.Float64()
}

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter 创建Redis客户端连接
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		// 连接生命周期
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetRankCacheExpireDuration 返回排名结果缓存的过期时间
func (r *Redis) GetRankCacheExpireDuration() time.Duration {
	if r.config != nil && r.config.RankCacheExpireSeconds > 0 {
		return time.Duration(r.config.RankCacheExpireSeconds) * time.Second
	}
	return constants.RankCacheDuration
}

// CacheRankedBatch 缓存一次批量评估的完整结果。
// 除了完整的JSON明细，还向ZSET写入 文件名->最终分 的排行，便于只取Top-N时不必反序列化全量结果。
func (r *Redis) CacheRankedBatch(ctx context.Context, batch *types.RankedBatch) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	if batch == nil || len(batch.Candidates) == 0 {
		return nil // 不缓存空结果
	}

	detailJSON, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("序列化批量评估结果失败: %w", err)
	}

	sessionKey := fmt.Sprintf(constants.KeyRankSession, batch.RecruiterID, batch.JobID)
	detailKey := fmt.Sprintf(constants.KeyRankDetail, batch.RecruiterID, batch.JobID)
	ttl := r.GetRankCacheExpireDuration()

	members := make([]redis.Z, len(batch.Candidates))
	for i, candidate := range batch.Candidates {
		members[i] = redis.Z{
			Score:  float64(candidate.FinalScore),
			Member: candidate.FileName,
		}
	}

	pipe := r.Client.Pipeline()
	pipe.Del(ctx, sessionKey)
	pipe.ZAdd(ctx, sessionKey, members...)
	pipe.Expire(ctx, sessionKey, ttl)
	pipe.Set(ctx, detailKey, detailJSON, ttl)

	_, err = pipe.Exec(ctx)
	return err
}

// GetCachedRankedBatch 读取缓存的批量评估结果，缓存未命中时返回ErrCacheMiss
func (r *Redis) GetCachedRankedBatch(ctx context.Context, recruiterID, jobID string) (*types.RankedBatch, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis client is not initialized")
	}

	detailKey := fmt.Sprintf(constants.KeyRankDetail, recruiterID, jobID)
	detailJSON, err := r.Client.Get(ctx, detailKey).Result()
	if err != nil {
		return nil, err // 包括 redis.Nil
	}

	var batch types.RankedBatch
	if err := json.Unmarshal([]byte(detailJSON), &batch); err != nil {
		return nil, fmt.Errorf("反序列化批量评估缓存失败: %w", err)
	}
	return &batch, nil
}

// GetTopRankedFiles 从排行ZSET中按最终分从高到低取前limit个文件名
func (r *Redis) GetTopRankedFiles(ctx context.Context, recruiterID, jobID string, limit int64) ([]string, error) {
	ctx, span := redisTracer.Start(ctx, "Redis.GetTopRankedFiles", trace.WithAttributes(
		semconv.DBSystemRedis,
		attribute.String("rank.recruiter_id", recruiterID),
		attribute.String("rank.job_id", jobID),
		attribute.Int64("rank.limit", limit),
	))
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	sessionKey := fmt.Sprintf(constants.KeyRankSession, recruiterID, jobID)
	files, err := r.Client.ZRevRange(ctx, sessionKey, 0, limit-1).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("rank.results.count", len(files)))
	span.SetStatus(codes.Ok, "")
	return files, nil
}

// InvalidateRankCache 使某岗位的排名缓存失效，岗位描述或简历集合变化后调用
func (r *Redis) InvalidateRankCache(ctx context.Context, recruiterID, jobID string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	sessionKey := fmt.Sprintf(constants.KeyRankSession, recruiterID, jobID)
	detailKey := fmt.Sprintf(constants.KeyRankDetail, recruiterID, jobID)
	return r.Client.Del(ctx, sessionKey, detailKey).Err()
}

// SetJobText 缓存岗位描述全文
func (r *Redis) SetJobText(ctx context.Context, jobID string, text string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyJobDescriptionText, jobID)
	return r.Client.Set(ctx, key, text, constants.JDCacheDuration).Err()
}

// GetJobText 读取缓存的岗位描述全文
func (r *Redis) GetJobText(ctx context.Context, jobID string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyJobDescriptionText, jobID)
	return r.Client.Get(ctx, key).Result()
}

// SetJobVector 将JD向量和模型版本存入Redis HASH。
// 使用HASH可以将向量和模型版本存在同一个key下，便于管理。
func (r *Redis) SetJobVector(ctx context.Context, jobID string, vector []float64, modelVersion string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}

	cacheKey := fmt.Sprintf(constants.KeyJobDescriptionVector, jobID)

	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("序列化向量失败: %w", err)
	}

	pipe := r.Client.Pipeline()
	pipe.HSet(ctx, cacheKey, "vector", vectorJSON)
	pipe.HSet(ctx, cacheKey, "model_version", modelVersion)
	pipe.Expire(ctx, cacheKey, constants.JDCacheDuration)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("设置JD向量缓存失败: %w", err)
	}
	return nil
}

// GetJobVector 从Redis HASH中获取JD向量和模型版本
func (r *Redis) GetJobVector(ctx context.Context, jobID string) ([]float64, string, error) {
	if r.Client == nil {
		return nil, "", fmt.Errorf("redis client is not initialized")
	}

	cacheKey := fmt.Sprintf(constants.KeyJobDescriptionVector, jobID)

	vals, err := r.Client.HMGet(ctx, cacheKey, "vector", "model_version").Result()
	if err != nil {
		return nil, "", err
	}

	if len(vals) < 2 || vals[0] == nil {
		return nil, "", fmt.Errorf("未找到JD向量缓存，jobID=%s: %w", jobID, ErrCacheMiss)
	}
	vectorJSON, ok := vals[0].(string)
	if !ok || vectorJSON == "" {
		return nil, "", fmt.Errorf("向量缓存格式错误")
	}
	var vector []float64
	if err := json.Unmarshal([]byte(vectorJSON), &vector); err != nil {
		return nil, "", fmt.Errorf("反序列化向量失败: %w", err)
	}

	modelVersion := ""
	if vals[1] != nil {
		if v, ok := vals[1].(string); ok {
			modelVersion = v
		}
	}

	return vector, modelVersion, nil
}

// AcquireRankLock 尝试获取某岗位批量评估的分布式锁，避免并发重复评估。
// 成功时返回锁持有者标识，未获取到时返回空字符串。
func (r *Redis) AcquireRankLock(ctx context.Context, recruiterID, jobID string) (string, error) {
	lockKey := fmt.Sprintf(constants.KeyRankLock, recruiterID, jobID)
	return r.AcquireLock(ctx, lockKey, constants.RankLockDuration)
}

// ReleaseRankLock 释放批量评估锁
func (r *Redis) ReleaseRankLock(ctx context.Context, recruiterID, jobID, lockValue string) (bool, error) {
	lockKey := fmt.Sprintf(constants.KeyRankLock, recruiterID, jobID)
	return r.ReleaseLock(ctx, lockKey, lockValue)
}

// AcquireLock 尝试获取一个分布式锁
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	// 随机值作为锁的持有者标识
	lockValue := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	return "", nil
}

// ReleaseLock 释放一个分布式锁，使用Lua脚本保证原子性
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	// 只有锁的持有者才能删除key
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}

	if released, ok := res.(int64); ok && released == 1 {
		return true, nil
	}

	return false, nil // 锁不存在或不属于当前持有者
}

// Get 获取键的值
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span

	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Get", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "GET"),
			attribute.String("db.redis.key", key),
			// 避免与redisotel hook产生的span重复
			attribute.Bool("otel.propagate_to_child", false),
		)
	}

	val, err := r.Client.Get(ctx, key).Result()

	if span != nil {
		if err != nil {
			// key不存在不算作错误
			if err == redis.Nil {
				span.SetStatus(codes.Ok, "key not found")
				span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
			} else {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return "", err
		}

		span.SetAttributes(
			attribute.Bool("db.redis.key_exists", true),
			attribute.Int("db.redis.value_length", len(val)),
		)
		span.SetStatus(codes.Ok, "")
	}

	return val, err
}

// Set 设置键的值
func (r *Redis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span

	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Set", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "SET"),
			attribute.String("db.redis.key", key),
			attribute.Int("db.redis.value_length", len(value)),
			attribute.Bool("otel.propagate_to_child", false),
		)

		if expiration > 0 {
			span.SetAttributes(attribute.Int64("db.redis.expiration_ms", expiration.Milliseconds()))
		}
	}

	err := r.Client.Set(ctx, key, value, expiration).Err()

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
	}

	return err
}
