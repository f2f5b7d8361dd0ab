package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// ChatMemory 问答会话历史存储接口
type ChatMemory interface {
	// GetHistory 获取指定会话的历史消息，会话不存在时返回空切片
	GetHistory(ctx context.Context, sessionID string) ([]*schema.Message, error)

	// AddMessages 向指定会话追加一批消息
	AddMessages(ctx context.Context, sessionID string, messages []*schema.Message) error

	// ClearHistory 清除指定会话的全部历史，不存在时静默成功
	ClearHistory(ctx context.Context, sessionID string) error

	// ListSessions 列出当前存在历史的会话ID
	ListSessions(ctx context.Context) ([]string, error)
}

// InMemoryChatMemory 是 ChatMemory 的内存实现，仅用于测试和单机场景
type InMemoryChatMemory struct {
	mu        sync.RWMutex
	histories map[string][]*schema.Message
}

// NewInMemoryChatMemory 创建内存版会话记忆
func NewInMemoryChatMemory() *InMemoryChatMemory {
	return &InMemoryChatMemory{
		histories: make(map[string][]*schema.Message),
	}
}

func (m *InMemoryChatMemory) GetHistory(_ context.Context, sessionID string) ([]*schema.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history, ok := m.histories[sessionID]
	if !ok {
		return []*schema.Message{}, nil
	}
	// 返回副本，防止外部修改内部切片
	cpy := make([]*schema.Message, len(history))
	copy(cpy, history)
	return cpy, nil
}

func (m *InMemoryChatMemory) AddMessages(_ context.Context, sessionID string, messages []*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}
	for _, msg := range messages {
		if msg == nil {
			return fmt.Errorf("会话 %s 的消息列表中包含nil消息", sessionID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories[sessionID] = append(m.histories[sessionID], messages...)
	return nil
}

func (m *InMemoryChatMemory) ClearHistory(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.histories, sessionID)
	return nil
}

func (m *InMemoryChatMemory) ListSessions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]string, 0, len(m.histories))
	for id := range m.histories {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}
