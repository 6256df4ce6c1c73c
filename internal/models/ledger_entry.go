package models

import "time"

// LedgerEntry 资金账本记录，只追加不修改
type LedgerEntry struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                     // 主键
	IntentID       uint      `gorm:"index;not null" json:"intent_id"`                          // 支付意图ID
	OrderID        uint      `gorm:"index;not null" json:"order_id"`                           // 订单ID
	Gateway        string    `gorm:"type:varchar(32);not null" json:"gateway"`                 // 支付网关
	EventType      string    `gorm:"type:varchar(32);index;not null" json:"event_type"`        // authorization/capture/failure/refund
	Amount         Money     `gorm:"type:decimal(20,2);not null" json:"amount"`                // 金额（主币种单位）
	Currency       string    `gorm:"type:varchar(8);not null" json:"currency"`                 // 币种
	GatewayEventID string    `gorm:"type:varchar(128);not null" json:"gateway_event_id"`       // 网关事件ID
	DedupeKey      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"dedupe_key"` // 去重键
	OccurredAt     time.Time `gorm:"index" json:"occurred_at"`                                 // 事件发生时间
	RecordedAt     time.Time `gorm:"index" json:"recorded_at"`                                 // 入账时间
	RawPayload     string    `gorm:"type:text" json:"-"`                                       // 网关原始报文
}

// TableName 指定表名
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
