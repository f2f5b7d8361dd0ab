package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ats-rank-go/internal/constants"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
)

// RedisChatMemory 使用Redis LIST持久化问答会话历史，
// 每个会话一个key，带过期时间淘汰冷会话
type RedisChatMemory struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisChatMemory 创建Redis版会话记忆。
// ttl为0时使用默认的会话记忆过期时间。
func NewRedisChatMemory(client *redis.Client, ttl time.Duration) (*RedisChatMemory, error) {
	if client == nil {
		return nil, fmt.Errorf("redis客户端不能为空")
	}
	if ttl <= 0 {
		ttl = constants.ChatMemoryDuration
	}

	return &RedisChatMemory{
		client: client,
		ttl:    ttl,
	}, nil
}

func chatMemoryKey(sessionID string) string {
	return fmt.Sprintf(constants.KeyChatMemory, sessionID)
}

// GetHistory 实现 ChatMemory 接口
func (rcm *RedisChatMemory) GetHistory(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	key := chatMemoryKey(sessionID)

	serialized, err := rcm.client.LRange(ctx, key, 0, -1).Result()
	if errors.Is(err, redis.Nil) {
		return []*schema.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取会话 %s 历史失败: %w", sessionID, err)
	}

	messages := make([]*schema.Message, 0, len(serialized))
	for _, sm := range serialized {
		var msg schema.Message
		if err := json.Unmarshal([]byte(sm), &msg); err != nil {
			return nil, fmt.Errorf("解析会话 %s 的历史消息失败: %w", sessionID, err)
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

// AddMessages 实现 ChatMemory 接口。
// 写入和续期放在同一个pipeline里，避免消息写入后key不被续期。
func (rcm *RedisChatMemory) AddMessages(ctx context.Context, sessionID string, messages []*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}
	key := chatMemoryKey(sessionID)

	pipe := rcm.client.TxPipeline()
	for _, message := range messages {
		if message == nil {
			return fmt.Errorf("会话 %s 的消息列表中包含nil消息", sessionID)
		}
		serialized, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("序列化会话 %s 的消息失败: %w", sessionID, err)
		}
		pipe.RPush(ctx, key, serialized)
	}
	pipe.Expire(ctx, key, rcm.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入会话 %s 历史失败: %w", sessionID, err)
	}
	return nil
}

// ListSessions 实现 ChatMemory 接口。
// 通过SCAN遍历会话key前缀，不会阻塞Redis。
func (rcm *RedisChatMemory) ListSessions(ctx context.Context) ([]string, error) {
	pattern := fmt.Sprintf(constants.KeyChatMemory, "*")
	prefix := fmt.Sprintf(constants.KeyChatMemory, "")

	sessions := make([]string, 0)
	var cursor uint64
	for {
		keys, next, err := rcm.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("扫描会话key失败: %w", err)
		}
		for _, key := range keys {
			sessions = append(sessions, strings.TrimPrefix(key, prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(sessions)
	return sessions, nil
}

// ClearHistory 实现 ChatMemory 接口
func (rcm *RedisChatMemory) ClearHistory(ctx context.Context, sessionID string) error {
	if err := rcm.client.Del(ctx, chatMemoryKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("清除会话 %s 历史失败: %w", sessionID, err)
	}
	return nil
}
