package repository

import (
	"strings"

	"github.com/cs-store/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository 资金账本数据访问接口，只追加，不提供更新与删除
type LedgerRepository interface {
	Append(entry *models.LedgerEntry) (bool, error)
	GetByDedupeKey(dedupeKey string) (*models.LedgerEntry, error)
	ListByIntent(intentID uint) ([]models.LedgerEntry, error)
	ListByOrder(orderID uint) ([]models.LedgerEntry, error)
	WithTx(tx *gorm.DB) *GormLedgerRepository
}

// GormLedgerRepository GORM 实现
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建账本仓库
func NewLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// WithTx 绑定事务
func (r *GormLedgerRepository) WithTx(tx *gorm.DB) *GormLedgerRepository {
	if tx == nil {
		return r
	}
	return &GormLedgerRepository{db: tx}
}

// Append 追加账本记录；去重键已存在时不写入并返回 false
func (r *GormLedgerRepository) Append(entry *models.LedgerEntry) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByDedupeKey 根据去重键获取账本记录
func (r *GormLedgerRepository) GetByDedupeKey(dedupeKey string) (*models.LedgerEntry, error) {
	dedupeKey = strings.TrimSpace(dedupeKey)
	if dedupeKey == "" {
		return nil, nil
	}
	var entry models.LedgerEntry
	result := r.db.Where("dedupe_key = ?", dedupeKey).Limit(1).Find(&entry)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &entry, nil
}

// ListByIntent 列出支付意图的账本记录
func (r *GormLedgerRepository) ListByIntent(intentID uint) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.Where("intent_id = ?", intentID).Order("id asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByOrder 列出订单的账本记录
func (r *GormLedgerRepository) ListByOrder(orderID uint) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.Where("order_id = ?", orderID).Order("id asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
