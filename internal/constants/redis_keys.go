package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// RankModulePrefix 排序模块
	RankModulePrefix = "rank"
	// JobModulePrefix 岗位模块
	JobModulePrefix = "job"
	// ChatModulePrefix 问答模块
	ChatModulePrefix = "chat"

	// EntitySession 评估会话实体
	EntitySession = "session"
	// EntityDetail 评估明细实体
	EntityDetail = "detail"
	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityText 文本实体
	EntityText = "text"
	// EntityVector 向量实体
	EntityVector = "vector"
	// EntityMemory 会话记忆实体
	EntityMemory = "memory"

	// KeyRankSession 批量评估结果缓存 (ZSET, member为文件名, score为最终得分)
	// 格式: app:rank:session:{jobID}:{recruiterID}
	KeyRankSession = AppPrefix + ":" + RankModulePrefix + ":" + EntitySession + ":%s:%s"

	// KeyRankDetail 批量评估明细缓存 (STRING, JSON序列化的RankedBatch)
	// 格式: app:rank:detail:{jobID}:{recruiterID}
	KeyRankDetail = AppPrefix + ":" + RankModulePrefix + ":" + EntityDetail + ":%s:%s"

	// KeyRankLock 批量评估分布式锁 (STRING)
	// 格式: app:rank:lock:{jobID}:{recruiterID}
	KeyRankLock = AppPrefix + ":" + RankModulePrefix + ":" + EntityLock + ":%s:%s"

	// KeyJobDescriptionText JD文本缓存 (STRING)
	// 格式: app:job:text:{jobID}
	KeyJobDescriptionText = AppPrefix + ":" + JobModulePrefix + ":" + EntityText + ":%s"

	// KeyJobDescriptionVector JD向量缓存 (HASH)
	// 格式: app:job:vector:{jobID}
	KeyJobDescriptionVector = AppPrefix + ":" + JobModulePrefix + ":" + EntityVector + ":%s"

	// KeyChatMemory 问答会话记忆 (LIST, JSON序列化的消息)
	// 格式: app:chat:memory:{sessionID}
	KeyChatMemory = AppPrefix + ":" + ChatModulePrefix + ":" + EntityMemory + ":%s"
)
