package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cs-store/internal/repository"

	"gorm.io/gorm"
)

// OrderFinalizer 支付到账后将订单置为已支付，唯一写订单支付字段的入口
type OrderFinalizer struct {
	orderRepo repository.OrderRepository
}

// NewOrderFinalizer 创建订单支付终结器
func NewOrderFinalizer(orderRepo repository.OrderRepository) *OrderFinalizer {
	return &OrderFinalizer{orderRepo: orderRepo}
}

// WithTx 返回绑定事务的终结器
func (f *OrderFinalizer) WithTx(tx *gorm.DB) *OrderFinalizer {
	if tx == nil {
		return f
	}
	return &OrderFinalizer{orderRepo: f.orderRepo.WithTx(tx)}
}

// FinalizeInput 订单终结参数
type FinalizeInput struct {
	OrderID          uint
	GatewayOrderID   string
	GatewayPaymentID string
	GatewayEventID   string
	CapturedAt       time.Time
}

// FinalizeOnCapture 条件更新订单支付状态；订单已支付时不做修改并返回 false
func (f *OrderFinalizer) FinalizeOnCapture(ctx context.Context, input FinalizeInput) (bool, error) {
	paymentID := input.GatewayPaymentID
	if paymentID == "" {
		paymentID = input.GatewayEventID
	}
	updated, err := f.orderRepo.MarkPaid(repository.MarkOrderPaidInput{
		OrderID:          input.OrderID,
		GatewayOrderID:   input.GatewayOrderID,
		GatewayPaymentID: paymentID,
		PaidAt:           input.CapturedAt,
	})
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	log := paymentLogger("order_id", input.OrderID, "gateway_order_id", input.GatewayOrderID, "gateway_payment_id", paymentID)
	if updated {
		log.Infow("order_payment_finalized")
	} else {
		log.Infow("order_payment_already_finalized")
	}
	return updated, nil
}
