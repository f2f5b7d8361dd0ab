package ranker

import (
	"errors"
	"fmt"
)

// 定义评估流程的基础错误类型
var (
	// ErrNotFound 岗位或简历在向量库中不存在
	ErrNotFound = errors.New("目标文档不存在")
	// ErrSignalUnavailable 依赖的外部信号源（嵌入服务等）暂不可用
	ErrSignalUnavailable = errors.New("评分信号不可用")
	// ErrMalformedModelOutput 模型输出无法解析为约定结构
	ErrMalformedModelOutput = errors.New("模型输出格式错误")
	// ErrValidation 调用参数非法
	ErrValidation = errors.New("参数校验失败")
)

// RankError 包含详细上下文的评估错误
type RankError struct {
	JobID    string
	FileName string
	Op       string
	BaseErr  error
	Detail   string
}

func (e *RankError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 岗位:%s, 文件:%s): %s", e.BaseErr, e.Op, e.JobID, e.FileName, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 岗位:%s, 文件:%s)", e.BaseErr, e.Op, e.JobID, e.FileName)
}

func (e *RankError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持与哨兵错误比较
func (e *RankError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewNotFoundError(jobID, fileName, detail string) error {
	return &RankError{
		JobID:    jobID,
		FileName: fileName,
		Op:       "fetch",
		BaseErr:  ErrNotFound,
		Detail:   detail,
	}
}

func NewSignalUnavailableError(jobID, fileName, detail string) error {
	return &RankError{
		JobID:    jobID,
		FileName: fileName,
		Op:       "score",
		BaseErr:  ErrSignalUnavailable,
		Detail:   detail,
	}
}

func NewMalformedOutputError(jobID, fileName, detail string) error {
	return &RankError{
		JobID:    jobID,
		FileName: fileName,
		Op:       "extract",
		BaseErr:  ErrMalformedModelOutput,
		Detail:   detail,
	}
}

func NewValidationError(jobID, detail string) error {
	return &RankError{
		JobID:   jobID,
		Op:      "validate",
		BaseErr: ErrValidation,
		Detail:  detail,
	}
}
