package shared

import (
	"errors"

	"github.com/cs-store/internal/http/response"
	"github.com/cs-store/internal/logger"
	"github.com/cs-store/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondErrorWithMsg 返回自定义消息错误响应，并在有原始错误时记录日志。
func RespondErrorWithMsg(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// RespondServiceError 按业务错误分类返回响应；内部错误只记录日志，不向调用方暴露细节。
func RespondServiceError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	var typed *service.Error
	if !errors.As(err, &typed) || typed.Kind == service.KindInternal {
		RespondErrorWithMsg(c, response.CodeInternal, "internal server error", err)
		return
	}
	if typed.Kind == service.KindGateway {
		RequestLog(c).Warnw("handler_gateway_error", "error", err)
	}
	response.Error(c, typed.StatusCode(), typed.Message)
}
