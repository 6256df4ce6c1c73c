package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/cs-store/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentIntentRepository 支付意图数据访问接口
type PaymentIntentRepository interface {
	Create(intent *models.PaymentIntent) (bool, error)
	GetByID(id uint) (*models.PaymentIntent, error)
	GetByIdempotencyKey(key string) (*models.PaymentIntent, error)
	GetByGatewayOrderID(gateway, gatewayOrderID string) (*models.PaymentIntent, error)
	CountByOrder(orderID uint) (int64, error)
	ListByOrder(orderID uint) ([]models.PaymentIntent, error)
	UpdateStatus(id uint, fromStatus, toStatus string, updates map[string]interface{}) (bool, error)
	WithTx(tx *gorm.DB) *GormPaymentIntentRepository
}

// GormPaymentIntentRepository GORM 实现
type GormPaymentIntentRepository struct {
	db *gorm.DB
}

// NewPaymentIntentRepository 创建支付意图仓库
func NewPaymentIntentRepository(db *gorm.DB) *GormPaymentIntentRepository {
	return &GormPaymentIntentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentIntentRepository) WithTx(tx *gorm.DB) *GormPaymentIntentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentIntentRepository{db: tx}
}

// Create 插入支付意图；幂等键或 (order_id, attempt_no) 冲突时不插入并返回 false
func (r *GormPaymentIntentRepository) Create(intent *models.PaymentIntent) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(intent)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByID 根据 ID 获取支付意图
func (r *GormPaymentIntentRepository) GetByID(id uint) (*models.PaymentIntent, error) {
	if id == 0 {
		return nil, nil
	}
	var intent models.PaymentIntent
	if err := r.db.First(&intent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// GetByIdempotencyKey 根据幂等键获取支付意图
func (r *GormPaymentIntentRepository) GetByIdempotencyKey(key string) (*models.PaymentIntent, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var intent models.PaymentIntent
	result := r.db.Where("idempotency_key = ?", key).Limit(1).Find(&intent)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &intent, nil
}

// GetByGatewayOrderID 根据网关订单号获取支付意图
func (r *GormPaymentIntentRepository) GetByGatewayOrderID(gateway, gatewayOrderID string) (*models.PaymentIntent, error) {
	gateway = strings.TrimSpace(gateway)
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gateway == "" || gatewayOrderID == "" {
		return nil, nil
	}
	var intent models.PaymentIntent
	result := r.db.Where("gateway = ? AND gateway_order_id = ?", gateway, gatewayOrderID).
		Order("id desc").
		Limit(1).
		Find(&intent)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &intent, nil
}

// CountByOrder 统计订单下的支付意图数量
func (r *GormPaymentIntentRepository) CountByOrder(orderID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.PaymentIntent{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListByOrder 按尝试次数列出订单下的支付意图
func (r *GormPaymentIntentRepository) ListByOrder(orderID uint) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	if err := r.db.Where("order_id = ?", orderID).Order("attempt_no asc").Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

// UpdateStatus 条件更新状态（仅当当前状态等于 fromStatus），返回是否更新成功
func (r *GormPaymentIntentRepository) UpdateStatus(id uint, fromStatus, toStatus string, updates map[string]interface{}) (bool, error) {
	values := make(map[string]interface{}, len(updates)+2)
	for key, value := range updates {
		values[key] = value
	}
	values["status"] = toStatus
	values["updated_at"] = time.Now()
	result := r.db.Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
