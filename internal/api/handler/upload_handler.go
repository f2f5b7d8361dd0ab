package handler

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"ats-rank-go/internal/storage"
	"ats-rank-go/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ResumeFileStore 原始简历文件的对象存储接口，由MinIO适配器实现
type ResumeFileStore interface {
	UploadResumeFileStreaming(ctx context.Context, submissionUUID, fileExt string, reader io.Reader, fileSize int64) (string, string, error)
}

// SubmissionWriter 简历提交记录的持久化接口
type SubmissionWriter interface {
	CreateResumeSubmission(ctx context.Context, submission *models.ResumeSubmission) error
	GetSubmissionByMD5(ctx context.Context, recruiterID, md5Hex string) (*models.ResumeSubmission, error)
}

// EventPublisher 消息发布接口，由RabbitMQ适配器实现
type EventPublisher interface {
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error
}

// UploadHandler 简历上传接口。
// 上传只做最小工作：写对象存储、落提交记录、发布入库事件，解析和向量化由消费端异步完成。
type UploadHandler struct {
	files       ResumeFileStore
	submissions SubmissionWriter
	publisher   EventPublisher
	exchange    string
	routingKey  string
	logger      zerolog.Logger
}

// NewUploadHandler 创建简历上传Handler
func NewUploadHandler(
	files ResumeFileStore,
	submissions SubmissionWriter,
	publisher EventPublisher,
	exchange, routingKey string,
	logger zerolog.Logger,
) *UploadHandler {
	return &UploadHandler{
		files:       files,
		submissions: submissions,
		publisher:   publisher,
		exchange:    exchange,
		routingKey:  routingKey,
		logger:      logger.With().Str("component", "upload_handler").Logger(),
	}
}

// UploadResume 接收multipart上传的简历文件。
// POST /api/v1/resumes
func (h *UploadHandler) UploadResume(c context.Context, ctx *app.RequestContext) {
	rid := recruiterID(ctx)
	if rid == "" {
		ctx.JSON(consts.StatusUnauthorized, utils.H{"error": "缺少招聘方身份"})
		return
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		respondBadRequest(ctx, "缺少上传文件: "+err.Error())
		return
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".pdf" {
		respondBadRequest(ctx, "仅支持PDF格式的简历文件")
		return
	}
	targetJobID := ctx.PostForm("target_job_id")

	src, err := fileHeader.Open()
	if err != nil {
		respondError(ctx, err)
		return
	}
	defer src.Close()

	id, err := uuid.NewV7()
	if err != nil {
		respondError(ctx, err)
		return
	}
	submissionUUID := id.String()

	objectKey, md5Hex, err := h.files.UploadResumeFileStreaming(c, submissionUUID, ext, src, fileHeader.Size)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", fileHeader.Filename).Msg("上传简历到对象存储失败")
		respondError(ctx, err)
		return
	}

	submission := &models.ResumeSubmission{
		SubmissionUUID:      submissionUUID,
		RecruiterID:         rid,
		SubmissionTimestamp: time.Now(),
		OriginalFilename:    fileHeader.Filename,
		OriginalFilePathOSS: objectKey,
		RawFileMD5:          md5Hex,
		ProcessingStatus:    models.StatusPendingParsing,
	}
	if targetJobID != "" {
		submission.TargetJobID = &targetJobID
	}

	// 同一招聘方重复上传同一文件时直接跳过，不再触发解析
	if prev, derr := h.submissions.GetSubmissionByMD5(c, rid, md5Hex); derr == nil && prev != nil {
		submission.ProcessingStatus = models.StatusDuplicateSkipped
		if err := h.submissions.CreateResumeSubmission(c, submission); err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{
			"submission_uuid": submissionUUID,
			"status":          models.StatusDuplicateSkipped,
			"duplicate_of":    prev.SubmissionUUID,
		})
		return
	} else if derr != nil && !errors.Is(derr, gorm.ErrRecordNotFound) {
		h.logger.Warn().Err(derr).Msg("查重失败，按非重复处理")
	}

	if err := h.submissions.CreateResumeSubmission(c, submission); err != nil {
		respondError(ctx, err)
		return
	}

	msg := storage.ResumeUploadedMessage{
		SubmissionUUID:      submissionUUID,
		RecruiterID:         rid,
		TargetJobID:         targetJobID,
		OriginalFilename:    fileHeader.Filename,
		OriginalFilePathOSS: objectKey,
		RawFileMD5:          md5Hex,
		SubmissionTimestamp: submission.SubmissionTimestamp,
	}
	if err := h.publisher.PublishJSON(c, h.exchange, h.routingKey, msg, true); err != nil {
		h.logger.Error().Err(err).Str("submission_uuid", submissionUUID).Msg("发布简历上传事件失败")
		respondError(ctx, err)
		return
	}

	ctx.JSON(consts.StatusAccepted, utils.H{
		"submission_uuid": submissionUUID,
		"status":          models.StatusPendingParsing,
	})
}
