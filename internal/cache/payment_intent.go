package cache

import (
	"context"
	"strings"
	"time"

	"github.com/cs-store/internal/models"
)

const paymentIntentCacheTTL = 24 * time.Hour

// PaymentIntentSnapshot 支付意图创建结果快照，按幂等键缓存，重试请求直接返回
type PaymentIntentSnapshot struct {
	PaymentIntentID uint                   `json:"payment_intent_id"`
	OrderID         uint                   `json:"order_id"`
	UserID          uint                   `json:"user_id"`
	Gateway         string                 `json:"gateway"`
	GatewayOrderID  string                 `json:"gateway_order_id"`
	Status          string                 `json:"status"`
	Amount          models.Money           `json:"amount"`
	Currency        string                 `json:"currency"`
	ExpiresAt       time.Time              `json:"expires_at"`
	CheckoutPayload map[string]interface{} `json:"checkout_payload"`
}

func paymentIntentKey(idempotencyKey string) string {
	return "payment_intent:idem:" + strings.TrimSpace(idempotencyKey)
}

// BuildPaymentIntentSnapshot 从支付意图构建快照
func BuildPaymentIntentSnapshot(intent *models.PaymentIntent) *PaymentIntentSnapshot {
	if intent == nil {
		return nil
	}
	return &PaymentIntentSnapshot{
		PaymentIntentID: intent.ID,
		OrderID:         intent.OrderID,
		UserID:          intent.UserID,
		Gateway:         intent.Gateway,
		GatewayOrderID:  intent.GatewayOrderID,
		Status:          intent.Status,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		ExpiresAt:       intent.ExpiresAt,
		CheckoutPayload: map[string]interface{}(intent.CheckoutPayload),
	}
}

// GetPaymentIntentSnapshot 读取支付意图快照
func GetPaymentIntentSnapshot(ctx context.Context, idempotencyKey string) (*PaymentIntentSnapshot, bool, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		return nil, false, nil
	}
	var snapshot PaymentIntentSnapshot
	hit, err := GetJSON(ctx, paymentIntentKey(idempotencyKey), &snapshot)
	if err != nil || !hit {
		return nil, false, err
	}
	return &snapshot, true, nil
}

// SetPaymentIntentSnapshot 写入支付意图快照
func SetPaymentIntentSnapshot(ctx context.Context, idempotencyKey string, snapshot *PaymentIntentSnapshot) error {
	if snapshot == nil || strings.TrimSpace(idempotencyKey) == "" {
		return nil
	}
	return SetJSON(ctx, paymentIntentKey(idempotencyKey), snapshot, paymentIntentCacheTTL)
}
