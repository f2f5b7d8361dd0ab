package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 简历提交的处理状态流转
const (
	StatusPendingParsing  = "PENDING_PARSING"
	StatusParsing         = "PARSING"
	StatusIndexed         = "INDEXED"
	StatusParseFailed     = "PARSE_FAILED"
	StatusIndexFailed     = "INDEX_FAILED"
	StatusDuplicateSkipped = "DUPLICATE_SKIPPED"
)

// 岗位状态
const (
	JobStatusActive = "ACTIVE"
	JobStatusClosed = "CLOSED"
)

// Candidate 候选人主表
type Candidate struct {
	CandidateID     string    `gorm:"type:char(36);primaryKey"`
	PrimaryName     string    `gorm:"type:varchar(255)"`
	PrimaryPhone    string    `gorm:"type:varchar(50);uniqueIndex:idx_candidates_primary_phone_unique"`
	PrimaryEmail    string    `gorm:"type:varchar(255);uniqueIndex:idx_candidates_primary_email_unique"`
	CurrentLocation string    `gorm:"type:varchar(255)"`
	ProfileSummary  string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// Job 岗位信息表
type Job struct {
	JobID              string         `gorm:"type:char(36);primaryKey"`
	RecruiterID        string         `gorm:"type:char(36);not null;index:idx_jobs_recruiter_id"`
	JobTitle           string         `gorm:"type:varchar(255);not null"`
	Department         string         `gorm:"type:varchar(255)"`
	Location           string         `gorm:"type:varchar(255)"`
	JobDescriptionText string         `gorm:"type:text;not null"`
	RequiredSkillsJSON datatypes.JSON `gorm:"type:json"`
	Status             string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_jobs_status"`
	CreatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// JobVector 存储岗位描述的向量表示
type JobVector struct {
	JobID                 string    `gorm:"type:char(36);primaryKey"`
	VectorRepresentation  []byte    `gorm:"type:mediumblob;not null"` // JSON序列化后的向量
	EmbeddingModelVersion string    `gorm:"type:varchar(100);not null"`
	CreatedAt             time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt             time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
	Job                   Job       `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (JobVector) TableName() string {
	return "job_vectors"
}

// ResumeSubmission 简历提交/快照表，一条记录对应一份上传的简历文件
type ResumeSubmission struct {
	SubmissionUUID      string    `gorm:"type:char(36);primaryKey"`
	RecruiterID         string    `gorm:"type:char(36);not null;index:idx_rs_recruiter_id"`
	CandidateID         *string   `gorm:"type:char(36);index:idx_rs_candidate_id"`
	TargetJobID         *string   `gorm:"type:char(36);index:idx_rs_target_job_id"`
	SubmissionTimestamp time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_rs_submission_timestamp"`
	OriginalFilename    string    `gorm:"type:varchar(255);not null;index:idx_rs_original_filename"`
	OriginalFilePathOSS string    `gorm:"type:varchar(1024)"`
	ParsedTextPathOSS   string    `gorm:"type:varchar(1024)"`
	RawFileMD5          string    `gorm:"type:char(32);index:idx_rs_raw_file_md5"`
	ProcessingStatus    string    `gorm:"type:varchar(50);default:'PENDING_PARSING';index:idx_rs_processing_status"`
	ChunkCount          int       `gorm:"default:0"`
	CreatedAt           time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Job       *Job       `gorm:"foreignKey:TargetJobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (ResumeSubmission) TableName() string {
	return "resume_submissions"
}

// JobCandidateScore 岗位-候选人排序评估表，一行对应一次评估后的最终排名项
type JobCandidateScore struct {
	ScoreID           uint64         `gorm:"primaryKey;autoIncrement"`
	JobID             string         `gorm:"type:char(36);not null;index:idx_jcs_job_final,priority:1;uniqueIndex:idx_jcs_job_file_unique,priority:1"`
	RecruiterID       string         `gorm:"type:char(36);not null;index:idx_jcs_recruiter_id"`
	FileName          string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_jcs_job_file_unique,priority:2"`
	CandidateID       *string        `gorm:"type:char(36);index:idx_jcs_candidate_id"`
	KeywordScore      int            `gorm:"type:int;not null"`
	EmbeddingScore    *float64       `gorm:"type:float"`
	LLMScore          *int           `gorm:"type:int"`
	PrelimScore       int            `gorm:"type:int;not null"`
	FinalScore        int            `gorm:"type:int;not null;index:idx_jcs_job_final,priority:2"`
	MatchedSkillsJSON datatypes.JSON `gorm:"type:json"`
	MissingSkillsJSON datatypes.JSON `gorm:"type:json"`
	SkillMatchStatus  string         `gorm:"type:varchar(50)"`
	RankMode          string         `gorm:"type:varchar(20);not null"`
	EvaluatedAt       *time.Time     `gorm:"type:datetime(6)"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Job       *Job       `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (JobCandidateScore) TableName() string {
	return "job_candidate_scores"
}

// StringToJSON 将字符串直接转换为 datatypes.JSON
func StringToJSON(s string) datatypes.JSON {
	return datatypes.JSON(s)
}

// StringsToJSON 将字符串切片序列化为 datatypes.JSON
func StringsToJSON(items []string) (datatypes.JSON, error) {
	if items == nil {
		items = []string{}
	}
	bytes, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// JSONToStrings 将 datatypes.JSON 反序列化为字符串切片
func JSONToStrings(data datatypes.JSON) ([]string, error) {
	if len(data) == 0 {
		return []string{}, nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}
