package models

import "time"

// Order 订单表（由订单系统维护，本模块只读取归属/金额/支付状态，并仅由支付终结器写入支付字段）
type Order struct {
	ID                uint       `gorm:"primarykey" json:"id"`                                                      // 主键
	UserID            uint       `gorm:"index;not null" json:"user_id"`                                             // 下单用户
	Currency          string     `gorm:"type:varchar(8);not null" json:"currency"`                                  // 币种
	TotalAmount       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`                 // 应付金额
	PaymentStatus     string     `gorm:"type:varchar(16);index;not null;default:'pending'" json:"payment_status"`   // 支付状态
	GatewayOrderID    string     `gorm:"type:varchar(128)" json:"gateway_order_id,omitempty"`                       // 网关订单号
	GatewayPaymentID  string     `gorm:"type:varchar(128)" json:"gateway_payment_id,omitempty"`                     // 网关支付流水号
	PaymentReceivedAt *time.Time `gorm:"index" json:"payment_received_at,omitempty"`                                // 到账时间
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`                                                   // 创建时间
	UpdatedAt         time.Time  `gorm:"index" json:"updated_at"`                                                   // 更新时间
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
