package models

import "time"

// PaymentIntent 支付意图：一次针对某个订单、经由某个网关的收款尝试
type PaymentIntent struct {
	ID              uint      `gorm:"primarykey" json:"id"`                                                          // 主键
	OrderID         uint      `gorm:"not null;uniqueIndex:uk_intent_order_attempt,priority:1" json:"order_id"`       // 订单ID
	AttemptNo       int       `gorm:"not null;uniqueIndex:uk_intent_order_attempt,priority:2" json:"attempt_no"`     // 第几次尝试（1-3）
	UserID          uint      `gorm:"index;not null" json:"user_id"`                                                 // 发起用户
	IdempotencyKey  string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"idempotency_key"`                 // 客户端幂等键
	Gateway         string    `gorm:"type:varchar(32);not null;index:idx_intent_gateway_order,priority:1" json:"gateway"` // 支付网关
	Amount          Money     `gorm:"type:decimal(20,2);not null" json:"amount"`                                     // 金额（主币种单位）
	Currency        string    `gorm:"type:varchar(8);not null" json:"currency"`                                      // 币种
	Status          string    `gorm:"type:varchar(32);index;not null" json:"status"`                                 // 状态
	ExpiresAt       time.Time `gorm:"index" json:"expires_at"`                                                       // 过期时间（仅提示，不主动过期）
	GatewayOrderID  string    `gorm:"type:varchar(128);index:idx_intent_gateway_order,priority:2" json:"gateway_order_id"` // 网关订单号
	CheckoutPayload JSON      `gorm:"type:json" json:"checkout_payload"`                                             // 前端收银台参数
	FailureReason   string    `gorm:"type:text" json:"failure_reason,omitempty"`                                     // 失败原因
	CreatedAt       time.Time `gorm:"index" json:"created_at"`                                                       // 创建时间
	UpdatedAt       time.Time `json:"updated_at"`                                                                    // 更新时间
}

// TableName 指定表名
func (PaymentIntent) TableName() string {
	return "payment_intents"
}
