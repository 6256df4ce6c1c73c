package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/models"
	"github.com/cs-store/internal/repository"

	"gorm.io/gorm"
)

// 不落库的敏感请求头
var redactedWebhookHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
}

// WebhookInboxService Webhook 收件箱服务
type WebhookInboxService struct {
	repo repository.WebhookInboxRepository
}

// NewWebhookInboxService 创建收件箱服务
func NewWebhookInboxService(repo repository.WebhookInboxRepository) *WebhookInboxService {
	return &WebhookInboxService{repo: repo}
}

// WithTx 返回绑定事务的收件箱服务
func (s *WebhookInboxService) WithTx(tx *gorm.DB) *WebhookInboxService {
	if tx == nil {
		return s
	}
	return &WebhookInboxService{repo: s.repo.WithTx(tx)}
}

// ReceiveWebhookInput 收件参数
type ReceiveWebhookInput struct {
	Gateway        string
	DedupeKey      string
	GatewayEventID string
	EventType      string
	RawBody        []byte
	Headers        http.Header
}

// Receive 写入收件记录（直接进入 processing）；去重键已存在时返回 created=false
func (s *WebhookInboxService) Receive(ctx context.Context, input ReceiveWebhookInput) (*models.WebhookInboxEntry, bool, error) {
	if strings.TrimSpace(input.DedupeKey) == "" {
		return nil, false, newError(KindValidation, "webhook dedupe key is required")
	}
	now := time.Now()
	entry := &models.WebhookInboxEntry{
		Gateway:        input.Gateway,
		DedupeKey:      strings.TrimSpace(input.DedupeKey),
		GatewayEventID: input.GatewayEventID,
		EventType:      input.EventType,
		Status:         constants.InboxStatusProcessing,
		Attempts:       1,
		ReceivedAt:     now,
		RawHeaders:     headersToJSON(input.Headers),
		BodyHash:       hashBody(input.RawBody),
		RawBody:        string(input.RawBody),
	}
	created, err := s.repo.Insert(entry)
	if err != nil {
		return nil, false, fmt.Errorf("insert webhook inbox entry: %w", err)
	}
	if !created {
		return nil, false, nil
	}
	return entry, true, nil
}

// Get 按 ID 获取收件记录
func (s *WebhookInboxService) Get(ctx context.Context, id uint) (*models.WebhookInboxEntry, error) {
	return s.repo.GetByID(id)
}

// MarkProcessed 标记处理完成
func (s *WebhookInboxService) MarkProcessed(ctx context.Context, id uint) error {
	return s.repo.MarkProcessed(id, time.Now())
}

// MarkFailed 标记处理失败
func (s *WebhookInboxService) MarkFailed(ctx context.Context, id uint, reason string) error {
	return s.repo.MarkFailed(id, reason, time.Now())
}

// ListStuck 列出超过 age 仍在处理中的收件记录
func (s *WebhookInboxService) ListStuck(ctx context.Context, age time.Duration, limit int) ([]models.WebhookInboxEntry, error) {
	return s.repo.ListStuckProcessing(time.Now().Add(-age), limit)
}

// ClaimForRedrive 抢占卡住的收件记录
func (s *WebhookInboxService) ClaimForRedrive(ctx context.Context, id uint, age time.Duration) (bool, error) {
	return s.repo.ClaimForRedrive(id, time.Now().Add(-age))
}

func headersToJSON(headers http.Header) models.JSON {
	result := make(models.JSON, len(headers))
	for key, values := range headers {
		if _, ok := redactedWebhookHeaders[strings.ToLower(key)]; ok {
			continue
		}
		result[key] = strings.Join(values, ",")
	}
	return result
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// BuildDedupeKey 生成去重键：<gateway>:<kind>:<gatewayEventID>
func BuildDedupeKey(gateway, kind, gatewayEventID string) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(gateway)),
		kind,
		strings.TrimSpace(gatewayEventID),
	}, ":")
}
