package constants

import "time"

const (
	// JDCacheDuration JD文本缓存过期时间
	JDCacheDuration = 24 * time.Hour

	// RankCacheDuration 批量评估结果缓存过期时间
	RankCacheDuration = 4 * time.Hour

	// ChatMemoryDuration 问答会话记忆过期时间
	ChatMemoryDuration = 4 * time.Hour

	// RankLockDuration 批量评估分布式锁的持有时长
	RankLockDuration = 2 * time.Minute
)
