package types

// DocType 向量库中存储的文档类型
type DocType string

const (
	// DocTypeJD 岗位描述文档
	DocTypeJD DocType = "jd"
	// DocTypeResume 简历文档
	DocTypeResume DocType = "resume"
)

// CostMode 批量评估时 LLM 信号的成本档位
type CostMode string

const (
	// CostModeFast 跳过 LLM 信号，仅用廉价信号排序
	CostModeFast CostMode = "fast"
	// CostModeAuto 仅对初排名次靠前的候选人调用 LLM
	CostModeAuto CostMode = "auto"
	// CostModeFull 对全部候选人调用 LLM
	CostModeFull CostMode = "full"
)

// Valid 判断成本档位是否为已知值
func (m CostMode) Valid() bool {
	switch m {
	case CostModeFast, CostModeAuto, CostModeFull:
		return true
	}
	return false
}

// TextChunk 向量库中的一个文本分块及其载荷
type TextChunk struct {
	PointID     string  `json:"point_id"`
	DocType     DocType `json:"doc_type"`
	RecruiterID string  `json:"recruiter_id"`
	JobID       string  `json:"job_id"`
	CandidateID string  `json:"candidate_id,omitempty"`
	FileName    string  `json:"file_name,omitempty"`
	ChunkIndex  int     `json:"chunk_index"`
	Content     string  `json:"content"`
}

// ResumeDoc 按文件名聚合后的一份简历全文
type ResumeDoc struct {
	FileName    string
	CandidateID string
	Text        string
}

// SignalScores 各评分信号；指针为 nil 表示该信号缺失（不可当作 0 分证据）
type SignalScores struct {
	Keyword   int      `json:"keyword_score"`
	Embedding *float64 `json:"embedding_score,omitempty"`
	LLM       *int     `json:"llm_score,omitempty"`
}

// SkillMatchStatus 技能抽取结果的状态
type SkillMatchStatus string

const (
	// SkillMatchOK 两阶段抽取正常完成
	SkillMatchOK SkillMatchStatus = "ok"
	// SkillMatchNoRequirements 第一阶段未从 JD 中抽取到任何技能
	SkillMatchNoRequirements SkillMatchStatus = "no_requirements"
	// SkillMatchDegraded 模型输出不可解析或调用失败，结果降级为全零
	SkillMatchDegraded SkillMatchStatus = "degraded"
)

// SkillMatch 两阶段技能抽取的对账后结果
type SkillMatch struct {
	RequiredSkills []string         `json:"required_skills"`
	MatchedSkills  []string         `json:"matched_skills"`
	MissingSkills  []string         `json:"missing_skills"`
	LLMScore       int              `json:"llm_score"`
	KeywordScore   int              `json:"keyword_score"`
	Status         SkillMatchStatus `json:"status"`
}

// CandidateResult 单个候选人的完整评估结果
type CandidateResult struct {
	FileName    string       `json:"file_name"`
	CandidateID string       `json:"candidate_id,omitempty"`
	Signals     SignalScores `json:"signals"`
	PrelimScore int          `json:"prelim_score"`
	FinalScore  int          `json:"final_score"`
	Skills      *SkillMatch  `json:"skills,omitempty"`
}

// RankedBatch 一次批量评估的最终排序结果
type RankedBatch struct {
	RecruiterID string            `json:"recruiter_id"`
	JobID       string            `json:"job_id"`
	Mode        CostMode          `json:"mode"`
	Candidates  []CandidateResult `json:"candidates"`
	EvaluatedAt int64             `json:"evaluated_at"`
}
