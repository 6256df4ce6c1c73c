package repository

import (
	"errors"
	"time"

	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/models"

	"gorm.io/gorm"
)

// OrderRepository 订单数据访问接口（订单由订单系统维护，这里只读归属与金额，并仅写支付字段）
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	MarkPaid(input MarkOrderPaidInput) (bool, error)
	WithTx(tx *gorm.DB) *GormOrderRepository
}

// MarkOrderPaidInput 订单标记已支付参数
type MarkOrderPaidInput struct {
	OrderID          uint
	GatewayOrderID   string
	GatewayPaymentID string
	PaidAt           time.Time
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// Create 创建订单（供订单系统与测试使用）
func (r *GormOrderRepository) Create(order *models.Order) error {
	if order.PaymentStatus == "" {
		order.PaymentStatus = constants.OrderPaymentStatusPending
	}
	return r.db.Create(order).Error
}

// GetByID 根据 ID 获取订单
func (r *GormOrderRepository) GetByID(id uint) (*models.Order, error) {
	if id == 0 {
		return nil, nil
	}
	var order models.Order
	if err := r.db.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// MarkPaid 条件更新订单为已支付，已支付时不做任何修改；返回是否实际更新
func (r *GormOrderRepository) MarkPaid(input MarkOrderPaidInput) (bool, error) {
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", input.OrderID, constants.OrderPaymentStatusPaid).
		Updates(map[string]interface{}{
			"payment_status":      constants.OrderPaymentStatusPaid,
			"gateway_order_id":    input.GatewayOrderID,
			"gateway_payment_id":  input.GatewayPaymentID,
			"payment_received_at": paidAt,
			"updated_at":          time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
