package processor

import (
	"errors"
	"fmt"
)

// 定义入库流水线的基础错误类型
var (
	ErrResumeDownloadFailed = errors.New("下载简历失败")
	ErrParseTextFailed      = errors.New("提取简历文本失败")
	ErrStoreTextFailed      = errors.New("上传解析文本失败")
	ErrEmbedFailed          = errors.New("分块向量化失败")
	ErrIndexFailed          = errors.New("写入向量库失败")
	ErrUpdateStatusFailed   = errors.New("更新简历状态失败")
)

// IngestError 包含提交上下文的流水线错误
type IngestError struct {
	SubmissionUUID string
	Op             string
	BaseErr        error
	Detail         string
}

func (e *IngestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, UUID:%s): %s", e.BaseErr, e.Op, e.SubmissionUUID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, UUID:%s)", e.BaseErr, e.Op, e.SubmissionUUID)
}

func (e *IngestError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持与哨兵错误比较
func (e *IngestError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewDownloadError(uuid, detail string) error {
	return &IngestError{SubmissionUUID: uuid, Op: "download", BaseErr: ErrResumeDownloadFailed, Detail: detail}
}

func NewParseError(uuid, detail string) error {
	return &IngestError{SubmissionUUID: uuid, Op: "parse", BaseErr: ErrParseTextFailed, Detail: detail}
}

func NewStoreError(uuid, detail string) error {
	return &IngestError{SubmissionUUID: uuid, Op: "store", BaseErr: ErrStoreTextFailed, Detail: detail}
}

func NewEmbedError(uuid, detail string) error {
	return &IngestError{SubmissionUUID: uuid, Op: "embed", BaseErr: ErrEmbedFailed, Detail: detail}
}

func NewIndexError(uuid, detail string) error {
	return &IngestError{SubmissionUUID: uuid, Op: "index", BaseErr: ErrIndexFailed, Detail: detail}
}

func NewUpdateError(uuid, detail string) error {
	return &IngestError{SubmissionUUID: uuid, Op: "update", BaseErr: ErrUpdateStatusFailed, Detail: detail}
}
