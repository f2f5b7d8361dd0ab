package storage

import "time"

// ResumeUploadedMessage 简历上传事件，由上传接口发布，入库流水线消费
type ResumeUploadedMessage struct {
	SubmissionUUID      string    `json:"submission_uuid"`
	RecruiterID         string    `json:"recruiter_id"`
	TargetJobID         string    `json:"target_job_id,omitempty"`
	OriginalFilename    string    `json:"original_filename"`
	OriginalFilePathOSS string    `json:"original_file_path_oss"`
	RawFileMD5          string    `json:"raw_file_md5,omitempty"`
	SubmissionTimestamp time.Time `json:"submission_timestamp"`
}

// RankRequestedMessage 批量评估请求事件，由排名接口发布，评估消费者异步处理。
// 评估粒度固定为recruiter+job整批，与结果缓存和评估锁的粒度一致。
type RankRequestedMessage struct {
	RecruiterID string    `json:"recruiter_id"`
	JobID       string    `json:"job_id"`
	Mode        string    `json:"mode"`
	RequestedAt time.Time `json:"requested_at"`
}
