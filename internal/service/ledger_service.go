package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/models"
	"github.com/cs-store/internal/repository"

	"gorm.io/gorm"
)

// LedgerService 资金账本服务，只追加
type LedgerService struct {
	repo repository.LedgerRepository
}

// NewLedgerService 创建账本服务
func NewLedgerService(repo repository.LedgerRepository) *LedgerService {
	return &LedgerService{repo: repo}
}

// WithTx 返回绑定事务的账本服务
func (s *LedgerService) WithTx(tx *gorm.DB) *LedgerService {
	if tx == nil {
		return s
	}
	return &LedgerService{repo: s.repo.WithTx(tx)}
}

// AppendLedgerInput 追加账本参数
type AppendLedgerInput struct {
	IntentID       uint
	OrderID        uint
	Gateway        string
	EventType      string
	Amount         models.Money
	Currency       string
	GatewayEventID string
	DedupeKey      string
	OccurredAt     time.Time
	RawPayload     string
}

// Append 追加账本记录；去重键重复时返回 created=false 且不报错
func (s *LedgerService) Append(ctx context.Context, input AppendLedgerInput) (bool, error) {
	if strings.TrimSpace(input.DedupeKey) == "" {
		return false, newError(KindValidation, "ledger dedupe key is required")
	}
	if !isLedgerEventType(input.EventType) {
		return false, newError(KindValidation, "ledger event type invalid")
	}
	now := time.Now()
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	entry := &models.LedgerEntry{
		IntentID:       input.IntentID,
		OrderID:        input.OrderID,
		Gateway:        input.Gateway,
		EventType:      input.EventType,
		Amount:         input.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(input.Currency)),
		GatewayEventID: input.GatewayEventID,
		DedupeKey:      strings.TrimSpace(input.DedupeKey),
		OccurredAt:     occurredAt,
		RecordedAt:     now,
		RawPayload:     input.RawPayload,
	}
	created, err := s.repo.Append(entry)
	if err != nil {
		return false, fmt.Errorf("append ledger entry: %w", err)
	}
	if !created {
		paymentLogger("dedupe_key", entry.DedupeKey).Infow("ledger_entry_duplicate")
	}
	return created, nil
}

// ListByOrder 查询订单的账本记录
func (s *LedgerService) ListByOrder(ctx context.Context, orderID uint) ([]models.LedgerEntry, error) {
	return s.repo.ListByOrder(orderID)
}

func isLedgerEventType(eventType string) bool {
	switch eventType {
	case constants.LedgerEventAuthorization, constants.LedgerEventCapture, constants.LedgerEventFailure, constants.LedgerEventRefund:
		return true
	default:
		return false
	}
}
