package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cs-store/internal/cache"
	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/logger"
	"github.com/cs-store/internal/models"
	"github.com/cs-store/internal/payment"
	"github.com/cs-store/internal/repository"

	"go.uber.org/zap"
)

const (
	maxFailureReasonLength = 500
	intentInsertRetries    = 3
)

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// PaymentIntentOptions 支付意图参数
type PaymentIntentOptions struct {
	DefaultGateway string
	ExpireMinutes  int
	MaxAttempts    int
}

// PaymentIntentService 支付意图服务
type PaymentIntentService struct {
	orderRepo      repository.OrderRepository
	intentRepo     repository.PaymentIntentRepository
	gateways       *payment.Registry
	defaultGateway string
	expireAfter    time.Duration
	maxAttempts    int
	now            func() time.Time
}

// NewPaymentIntentService 创建支付意图服务
func NewPaymentIntentService(orderRepo repository.OrderRepository, intentRepo repository.PaymentIntentRepository, gateways *payment.Registry, options PaymentIntentOptions) *PaymentIntentService {
	expireMinutes := options.ExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = constants.IntentExpireMinutesDefault
	}
	// 每个订单最多 3 次尝试，配置只能调低
	maxAttempts := options.MaxAttempts
	if maxAttempts <= 0 || maxAttempts > constants.IntentMaxAttemptsDefault {
		if maxAttempts > constants.IntentMaxAttemptsDefault {
			paymentLogger("configured", maxAttempts, "limit", constants.IntentMaxAttemptsDefault).Warnw("payment_intent_max_attempts_clamped")
		}
		maxAttempts = constants.IntentMaxAttemptsDefault
	}
	return &PaymentIntentService{
		orderRepo:      orderRepo,
		intentRepo:     intentRepo,
		gateways:       gateways,
		defaultGateway: payment.NormalizeName(options.DefaultGateway),
		expireAfter:    time.Duration(expireMinutes) * time.Minute,
		maxAttempts:    maxAttempts,
		now:            time.Now,
	}
}

// CreatePaymentIntentInput 创建支付意图请求
type CreatePaymentIntentInput struct {
	UserID         uint
	OrderID        uint
	Method         string
	IdempotencyKey string
}

// PaymentIntentResult 创建支付意图结果
type PaymentIntentResult struct {
	PaymentIntentID uint
	OrderID         uint
	Gateway         string
	GatewayOrderID  string
	Status          string
	Amount          models.Money
	Currency        string
	ExpiresAt       time.Time
	CheckoutPayload map[string]interface{}
	Replayed        bool
}

// CreatePaymentIntent 幂等创建支付意图：同一幂等键只会创建一次网关订单
func (s *PaymentIntentService) CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntentResult, error) {
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, ErrIdempotencyKeyRequired
	}
	if input.UserID == 0 {
		return nil, ErrUnauthenticated
	}

	existing, err := s.lookupExisting(ctx, key, input.UserID)
	if err != nil || existing != nil {
		return existing, err
	}

	adapter, err := s.resolveGateway(input.Method)
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetByID(input.OrderID)
	if err != nil {
		return nil, wrapError(KindInternal, "load order failed", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != input.UserID {
		return nil, ErrOrderNotOwned
	}
	if order.PaymentStatus == constants.OrderPaymentStatusPaid {
		return nil, ErrOrderAlreadyPaid
	}

	intent, replay, err := s.insertIntent(ctx, key, input.UserID, adapter.Name(), order)
	if err != nil || replay != nil {
		return replay, err
	}
	paymentLogger("intent_id", intent.ID, "order_id", order.ID, "attempt_no", intent.AttemptNo, "gateway", intent.Gateway).
		Infow("payment_intent_created")

	return s.createGatewayOrder(ctx, adapter, intent)
}

// insertIntent 先落库 CREATED 再调用网关；并发冲突时返回胜出方的结果
func (s *PaymentIntentService) insertIntent(ctx context.Context, key string, userID uint, gateway string, order *models.Order) (*models.PaymentIntent, *PaymentIntentResult, error) {
	for i := 0; i < intentInsertRetries; i++ {
		count, err := s.intentRepo.CountByOrder(order.ID)
		if err != nil {
			return nil, nil, wrapError(KindInternal, "count payment intents failed", err)
		}
		attemptNo := int(count) + 1
		if attemptNo > s.maxAttempts {
			paymentLogger("order_id", order.ID, "attempts", count).Warnw("payment_intent_max_attempts_exceeded")
			return nil, nil, ErrMaxAttemptsExceeded
		}
		if !order.TotalAmount.IsPositive() {
			return nil, nil, ErrOrderAmountInvalid
		}

		intent := &models.PaymentIntent{
			OrderID:        order.ID,
			AttemptNo:      attemptNo,
			UserID:         userID,
			IdempotencyKey: key,
			Gateway:        gateway,
			Amount:         order.TotalAmount,
			Currency:       strings.ToUpper(strings.TrimSpace(order.Currency)),
			Status:         constants.IntentStatusCreated,
			ExpiresAt:      s.now().Add(s.expireAfter),
		}
		created, err := s.intentRepo.Create(intent)
		if err != nil {
			return nil, nil, wrapError(KindInternal, "create payment intent failed", err)
		}
		if created {
			return intent, nil, nil
		}

		// 幂等键冲突：返回胜出方；否则是 (order, attempt) 冲突，重新计数
		winner, err := s.intentRepo.GetByIdempotencyKey(key)
		if err != nil {
			return nil, nil, wrapError(KindInternal, "load payment intent failed", err)
		}
		if winner != nil {
			paymentLogger("intent_id", winner.ID, "order_id", order.ID).Infow("payment_intent_create_race_lost")
			result, err := replayIntent(winner, userID)
			return nil, result, err
		}
	}
	return nil, nil, ErrIntentCreateConflict
}

func (s *PaymentIntentService) createGatewayOrder(ctx context.Context, adapter payment.Adapter, intent *models.PaymentIntent) (*PaymentIntentResult, error) {
	log := paymentLogger("intent_id", intent.ID, "order_id", intent.OrderID, "gateway", intent.Gateway)
	gatewayResult, gatewayErr := adapter.CreateOrder(ctx, payment.CreateOrderInput{
		Amount:   intent.Amount,
		Currency: intent.Currency,
		Receipt:  buildReceipt(intent.ID, intent.OrderID),
		Notes: map[string]string{
			"intent_id": strconv.FormatUint(uint64(intent.ID), 10),
			"order_id":  strconv.FormatUint(uint64(intent.OrderID), 10),
		},
	})
	if gatewayErr != nil {
		log.Warnw("payment_intent_gateway_order_failed", "error", gatewayErr)
		if err := s.transition(intent, constants.IntentStatusFailed, map[string]interface{}{
			"failure_reason": truncateReason(gatewayErr.Error()),
		}); err != nil {
			log.Errorw("payment_intent_mark_failed_error", "error", err)
		}
		return nil, wrapError(KindGateway, ErrGatewayOrderFailed.Message, gatewayErr)
	}
	if gatewayResult == nil || strings.TrimSpace(gatewayResult.GatewayOrderID) == "" {
		invalid := errors.New("empty gateway order id")
		log.Warnw("payment_intent_gateway_order_failed", "error", invalid)
		if err := s.transition(intent, constants.IntentStatusFailed, map[string]interface{}{"failure_reason": invalid.Error()}); err != nil {
			log.Errorw("payment_intent_mark_failed_error", "error", err)
		}
		return nil, wrapError(KindGateway, ErrGatewayOrderFailed.Message, invalid)
	}

	checkoutPayload := models.JSON(gatewayResult.CheckoutPayload)
	if err := s.transition(intent, constants.IntentStatusGatewayOrderCreated, map[string]interface{}{
		"gateway_order_id": gatewayResult.GatewayOrderID,
		"checkout_payload": checkoutPayload,
	}); err != nil {
		return nil, err
	}
	intent.GatewayOrderID = gatewayResult.GatewayOrderID
	intent.CheckoutPayload = checkoutPayload
	log.Infow("payment_intent_gateway_order_created", "gateway_order_id", intent.GatewayOrderID)

	if err := cache.SetPaymentIntentSnapshot(ctx, intent.IdempotencyKey, cache.BuildPaymentIntentSnapshot(intent)); err != nil {
		log.Warnw("payment_intent_cache_set_failed", "error", err)
	}
	return resultFromIntent(intent, false), nil
}

// transition 校验并持久化状态流转，条件更新失败说明状态已被并发修改
func (s *PaymentIntentService) transition(intent *models.PaymentIntent, to string, updates map[string]interface{}) error {
	if err := AssertIntentTransition(intent.Status, to); err != nil {
		return err
	}
	ok, err := s.intentRepo.UpdateStatus(intent.ID, intent.Status, to, updates)
	if err != nil {
		return wrapError(KindInternal, "update payment intent status failed", err)
	}
	if !ok {
		return wrapError(KindInvalidTransition, ErrInvalidTransition.Message, fmt.Errorf("intent %d no longer in %s", intent.ID, intent.Status))
	}
	intent.Status = to
	return nil
}

func (s *PaymentIntentService) lookupExisting(ctx context.Context, key string, userID uint) (*PaymentIntentResult, error) {
	snapshot, hit, err := cache.GetPaymentIntentSnapshot(ctx, key)
	if err != nil {
		paymentLogger("idempotency_key", key).Warnw("payment_intent_cache_get_failed", "error", err)
	}
	if hit && snapshot != nil {
		if snapshot.UserID != userID {
			return nil, ErrOrderNotOwned
		}
		return resultFromSnapshot(snapshot), nil
	}

	intent, err := s.intentRepo.GetByIdempotencyKey(key)
	if err != nil {
		return nil, wrapError(KindInternal, "load payment intent failed", err)
	}
	if intent == nil {
		return nil, nil
	}
	return replayIntent(intent, userID)
}

func (s *PaymentIntentService) resolveGateway(method string) (payment.Adapter, error) {
	name := payment.NormalizeName(method)
	if name == "" {
		name = s.defaultGateway
	}
	adapter, err := s.gateways.Get(name)
	if err != nil {
		return nil, wrapError(KindValidation, ErrGatewayUnsupported.Message, fmt.Errorf("method %q", method))
	}
	return adapter, nil
}

func replayIntent(intent *models.PaymentIntent, userID uint) (*PaymentIntentResult, error) {
	if intent.UserID != userID {
		return nil, ErrOrderNotOwned
	}
	paymentLogger("intent_id", intent.ID, "order_id", intent.OrderID).Infow("payment_intent_idempotent_replay")
	return resultFromIntent(intent, true), nil
}

func resultFromIntent(intent *models.PaymentIntent, replayed bool) *PaymentIntentResult {
	return &PaymentIntentResult{
		PaymentIntentID: intent.ID,
		OrderID:         intent.OrderID,
		Gateway:         intent.Gateway,
		GatewayOrderID:  intent.GatewayOrderID,
		Status:          intent.Status,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		ExpiresAt:       intent.ExpiresAt,
		CheckoutPayload: map[string]interface{}(intent.CheckoutPayload),
		Replayed:        replayed,
	}
}

func resultFromSnapshot(snapshot *cache.PaymentIntentSnapshot) *PaymentIntentResult {
	return &PaymentIntentResult{
		PaymentIntentID: snapshot.PaymentIntentID,
		OrderID:         snapshot.OrderID,
		Gateway:         snapshot.Gateway,
		GatewayOrderID:  snapshot.GatewayOrderID,
		Status:          snapshot.Status,
		Amount:          snapshot.Amount,
		Currency:        snapshot.Currency,
		ExpiresAt:       snapshot.ExpiresAt,
		CheckoutPayload: snapshot.CheckoutPayload,
		Replayed:        true,
	}
}

func buildReceipt(intentID, orderID uint) string {
	return fmt.Sprintf("PI%d-O%d", intentID, orderID)
}

func truncateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxFailureReasonLength {
		return reason
	}
	return reason[:maxFailureReasonLength]
}
