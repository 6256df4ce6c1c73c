package public

import (
	"io"

	"github.com/cs-store/internal/http/response"

	"github.com/gin-gonic/gin"
)

// 回调报文上限，超出视为异常请求
const maxWebhookBodyBytes = 1 << 20

// PaymentWebhook 网关回调入口：必须使用原始字节验签，不做 JSON 绑定
func (h *Handler) PaymentWebhook(c *gin.Context) {
	gateway := c.Param("gateway")
	log := requestLog(c).With("gateway", gateway)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes+1))
	if err != nil {
		log.Warnw("payment_webhook_body_read_failed", "error", err)
		response.BadRequest(c, "request body is unreadable")
		return
	}
	if len(body) > maxWebhookBodyBytes {
		log.Warnw("payment_webhook_body_too_large", "body_size", len(body))
		response.BadRequest(c, "request body is too large")
		return
	}
	log.Infow("payment_webhook_received", "client_ip", c.ClientIP(), "body_size", len(body))

	outcome, err := h.WebhookProcessor.ProcessWebhook(c.Request.Context(), gateway, body, c.Request.Header)
	if err != nil {
		log.Errorw("payment_webhook_handle_failed", "error", err)
		response.Error(c, response.CodeInternal, "internal server error")
		return
	}
	if !outcome.OK {
		response.Error(c, outcome.StatusCode, outcome.Message)
		return
	}
	response.OK(c)
}
