package handler

import (
	"errors"

	"ats-rank-go/internal/ranker"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"gorm.io/gorm"
)

// RecruiterIDKey 认证中间件写入请求上下文的招聘方ID键名
const RecruiterIDKey = "recruiter_id"

// recruiterID 从请求上下文取出认证中间件设置的招聘方ID。
// 未配置API密钥的开发环境下退化为读取请求头。
func recruiterID(ctx *app.RequestContext) string {
	if v, ok := ctx.Get(RecruiterIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return string(ctx.GetHeader("X-Recruiter-ID"))
}

// respondError 将内部错误映射为HTTP状态码并输出统一的错误结构
func respondError(ctx *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch {
	case errors.Is(err, ranker.ErrValidation):
		status = consts.StatusBadRequest
	case errors.Is(err, ranker.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		status = consts.StatusNotFound
	case errors.Is(err, ranker.ErrSignalUnavailable):
		status = consts.StatusServiceUnavailable
	case errors.Is(err, ranker.ErrMalformedModelOutput):
		status = consts.StatusBadGateway
	}
	ctx.JSON(status, utils.H{"error": err.Error()})
}

// respondBadRequest 参数类错误的快捷输出
func respondBadRequest(ctx *app.RequestContext, msg string) {
	ctx.JSON(consts.StatusBadRequest, utils.H{"error": msg})
}
