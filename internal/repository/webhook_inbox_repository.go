package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookInboxRepository Webhook 收件箱数据访问接口
type WebhookInboxRepository interface {
	Insert(entry *models.WebhookInboxEntry) (bool, error)
	GetByID(id uint) (*models.WebhookInboxEntry, error)
	GetByDedupeKey(dedupeKey string) (*models.WebhookInboxEntry, error)
	MarkProcessed(id uint, processedAt time.Time) error
	MarkFailed(id uint, detail string, failedAt time.Time) error
	ListStuckProcessing(before time.Time, limit int) ([]models.WebhookInboxEntry, error)
	ClaimForRedrive(id uint, before time.Time) (bool, error)
	WithTx(tx *gorm.DB) *GormWebhookInboxRepository
}

// GormWebhookInboxRepository GORM 实现
type GormWebhookInboxRepository struct {
	db *gorm.DB
}

// NewWebhookInboxRepository 创建收件箱仓库
func NewWebhookInboxRepository(db *gorm.DB) *GormWebhookInboxRepository {
	return &GormWebhookInboxRepository{db: db}
}

// WithTx 绑定事务
func (r *GormWebhookInboxRepository) WithTx(tx *gorm.DB) *GormWebhookInboxRepository {
	if tx == nil {
		return r
	}
	return &GormWebhookInboxRepository{db: tx}
}

// Insert 写入收件记录；去重键已存在时不写入并返回 false
func (r *GormWebhookInboxRepository) Insert(entry *models.WebhookInboxEntry) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByID 根据 ID 获取收件记录
func (r *GormWebhookInboxRepository) GetByID(id uint) (*models.WebhookInboxEntry, error) {
	if id == 0 {
		return nil, nil
	}
	var entry models.WebhookInboxEntry
	if err := r.db.First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// GetByDedupeKey 根据去重键获取收件记录
func (r *GormWebhookInboxRepository) GetByDedupeKey(dedupeKey string) (*models.WebhookInboxEntry, error) {
	dedupeKey = strings.TrimSpace(dedupeKey)
	if dedupeKey == "" {
		return nil, nil
	}
	var entry models.WebhookInboxEntry
	result := r.db.Where("dedupe_key = ?", dedupeKey).Limit(1).Find(&entry)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &entry, nil
}

// MarkProcessed 标记处理完成
func (r *GormWebhookInboxRepository) MarkProcessed(id uint, processedAt time.Time) error {
	return r.db.Model(&models.WebhookInboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       constants.InboxStatusProcessed,
			"processed_at": processedAt,
			"error_detail": "",
			"updated_at":   processedAt,
		}).Error
}

// MarkFailed 标记处理失败并记录原因
func (r *GormWebhookInboxRepository) MarkFailed(id uint, detail string, failedAt time.Time) error {
	return r.db.Model(&models.WebhookInboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       constants.InboxStatusFailed,
			"processed_at": failedAt,
			"error_detail": detail,
			"updated_at":   failedAt,
		}).Error
}

// ListStuckProcessing 列出在 before 之前进入处理且未完成的收件记录
func (r *GormWebhookInboxRepository) ListStuckProcessing(before time.Time, limit int) ([]models.WebhookInboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.WebhookInboxEntry
	err := r.db.Where("status = ? AND updated_at < ?", constants.InboxStatusProcessing, before).
		Order("updated_at asc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ClaimForRedrive 抢占一条卡住的收件记录用于重放：处理次数加一并刷新处理时间，多实例下只有一个成功
func (r *GormWebhookInboxRepository) ClaimForRedrive(id uint, before time.Time) (bool, error) {
	result := r.db.Model(&models.WebhookInboxEntry{}).
		Where("id = ? AND status = ? AND updated_at < ?", id, constants.InboxStatusProcessing, before).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + ?", 1),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
