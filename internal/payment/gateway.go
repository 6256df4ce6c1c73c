// Package payment 定义支付网关适配器契约。每个网关一个实现，处理器与意图服务只依赖这里的接口。
package payment

import (
	"context"
	"crypto/hmac"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cs-store/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrGatewayNotRegistered = errors.New("payment gateway not registered")
	ErrAmountInvalid        = errors.New("payment amount invalid")
)

// EventType 归一化后的 webhook 事件类型
type EventType string

const (
	EventCaptured EventType = "CAPTURED"
	EventFailed   EventType = "FAILED"
	EventUnknown  EventType = "UNKNOWN"
)

// CreateOrderInput 网关下单输入，金额为主币种单位
type CreateOrderInput struct {
	Amount   models.Money
	Currency string
	Receipt  string
	Notes    map[string]string
}

// CreateOrderResult 网关下单结果
type CreateOrderResult struct {
	GatewayOrderID  string
	CheckoutPayload map[string]interface{}
}

// Event 归一化后的 webhook 事件
type Event struct {
	Type             EventType
	GatewayEventID   string
	GatewayOrderID   string
	GatewayPaymentID string
	Amount           *models.Money // 网关未给出金额时为 nil
	Currency         string
	OccurredAt       time.Time

	// OrderClosed 网关订单已关闭，不再接受新的付款；单次付款失败时为 false
	OrderClosed bool
	Raw         map[string]interface{}
}

// Adapter 支付网关适配器
type Adapter interface {
	Name() string
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	// VerifyWebhookSignature 必须基于收到的原始字节校验，禁止重新序列化
	VerifyWebhookSignature(rawBody []byte, headers http.Header) bool
	// ParseWebhook 无法解析时返回 UNKNOWN 事件而不是错误
	ParseWebhook(rawBody []byte) *Event
}

// Registry 网关注册表
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry 创建网关注册表
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, adapter := range adapters {
		r.Register(adapter)
	}
	return r
}

// Register 注册网关，重复注册时覆盖
func (r *Registry) Register(adapter Adapter) {
	if r == nil || adapter == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[NormalizeName(adapter.Name())] = adapter
}

// Get 按名称获取网关
func (r *Registry) Get(name string) (Adapter, error) {
	if r == nil {
		return nil, ErrGatewayNotRegistered
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[NormalizeName(name)]
	if !ok {
		return nil, ErrGatewayNotRegistered
	}
	return adapter, nil
}

// Names 返回已注册网关名称（有序）
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeName 统一网关名称格式
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ToMinorUnits 主币种金额转最小单位（四舍五入到整数）
func ToMinorUnits(amount models.Money, scale int32) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrAmountInvalid
	}
	return amount.Decimal.Shift(scale).Round(0).IntPart(), nil
}

// FromMinorUnits 最小单位金额转主币种
func FromMinorUnits(minor int64, scale int32) models.Money {
	return models.NewMoneyFromDecimal(decimal.NewFromInt(minor).Shift(-scale))
}

// SignatureEqual 常量时间比较签名，长度不一致直接失败
func SignatureEqual(expected, received string) bool {
	if len(expected) != len(received) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(received))
}
