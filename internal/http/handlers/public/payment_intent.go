package public

import (
	"strings"
	"time"

	"github.com/cs-store/internal/http/response"
	"github.com/cs-store/internal/service"

	"github.com/gin-gonic/gin"
)

const idempotencyKeyHeader = "Idempotency-Key"

// CreatePaymentIntentRequest 创建支付意图请求
type CreatePaymentIntentRequest struct {
	OrderID        uint   `json:"order_id" binding:"required"`
	Method         string `json:"method"`
	IdempotencyKey string `json:"idempotency_key"`
}

// PaymentIntentResponse 创建支付意图响应
type PaymentIntentResponse struct {
	PaymentIntentID uint                   `json:"payment_intent_id"`
	Gateway         string                 `json:"gateway"`
	GatewayOrderID  string                 `json:"gateway_order_id"`
	Amount          string                 `json:"amount"`
	Currency        string                 `json:"currency"`
	ExpiresAt       time.Time              `json:"expires_at"`
	CheckoutPayload map[string]interface{} `json:"checkout_payload"`
}

// CreatePaymentIntent 为订单创建（或幂等重放）支付意图
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req CreatePaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "request body is invalid")
		return
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
	}

	result, err := h.PaymentIntentService.CreatePaymentIntent(c.Request.Context(), service.CreatePaymentIntentInput{
		UserID:         userID,
		OrderID:        req.OrderID,
		Method:         req.Method,
		IdempotencyKey: key,
	})
	if err != nil {
		requestLog(c).Infow("payment_intent_create_rejected",
			"user_id", userID,
			"order_id", req.OrderID,
			"error", err,
		)
		respondServiceError(c, err)
		return
	}

	response.Created(c, PaymentIntentResponse{
		PaymentIntentID: result.PaymentIntentID,
		Gateway:         result.Gateway,
		GatewayOrderID:  result.GatewayOrderID,
		Amount:          result.Amount.String(),
		Currency:        result.Currency,
		ExpiresAt:       result.ExpiresAt,
		CheckoutPayload: result.CheckoutPayload,
	})
}
