package models

import "time"

// WebhookInboxEntry 网关回调收件记录，用于吸收网关的至少一次投递
type WebhookInboxEntry struct {
	ID             uint       `gorm:"primarykey" json:"id"`                                                  // 主键
	Gateway        string     `gorm:"type:varchar(32);not null" json:"gateway"`                              // 支付网关
	DedupeKey      string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"dedupe_key"`              // 去重键
	GatewayEventID string     `gorm:"type:varchar(128);not null" json:"gateway_event_id"`                    // 网关事件ID
	EventType      string     `gorm:"type:varchar(32);not null" json:"event_type"`                           // 归一化事件类型
	Status         string     `gorm:"type:varchar(16);not null;index:idx_inbox_status_updated,priority:1" json:"status"` // 处理状态
	Attempts       int        `gorm:"not null;default:0" json:"attempts"`                                    // 处理次数
	ReceivedAt     time.Time  `gorm:"index" json:"received_at"`                                              // 接收时间
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`                                                // 处理完成时间
	ErrorDetail    string     `gorm:"type:text" json:"error_detail,omitempty"`                               // 失败原因
	RawHeaders     JSON       `gorm:"type:json" json:"raw_headers"`                                          // 原始请求头
	BodyHash       string     `gorm:"type:varchar(64);not null" json:"body_hash"`                            // 原始报文 sha256
	RawBody        string     `gorm:"type:text" json:"-"`                                                    // 原始报文（用于恢复重放）
	UpdatedAt      time.Time  `gorm:"index:idx_inbox_status_updated,priority:2" json:"updated_at"`           // 最近一次处理时间
}

// TableName 指定表名
func (WebhookInboxEntry) TableName() string {
	return "webhook_inbox"
}
