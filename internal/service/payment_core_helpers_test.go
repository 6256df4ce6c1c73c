package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cs-store/internal/models"
	"github.com/cs-store/internal/payment"
	"github.com/cs-store/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	fakeGatewayName   = "fakepay"
	fakeGatewaySecret = "fake_webhook_secret"
	fakeSignatureKey  = "X-Fake-Signature"
)

// fakeGateway 测试用网关：下单计数，HMAC 验签，JSON 事件
type fakeGateway struct {
	mu           sync.Mutex
	calls        int
	createErr    error
	emptyOrderID bool
	receipts     []string
}

type fakeEventBody struct {
	Type           string `json:"type"`
	EventID        string `json:"event_id"`
	OrderID        string `json:"order_id"`
	PaymentID      string `json:"payment_id"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	OccurredAtUnix int64  `json:"occurred_at"`
	OrderClosed    bool   `json:"order_closed"`
}

func (g *fakeGateway) Name() string { return fakeGatewayName }

func (g *fakeGateway) CreateOrder(ctx context.Context, input payment.CreateOrderInput) (*payment.CreateOrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.receipts = append(g.receipts, input.Receipt)
	if g.createErr != nil {
		return nil, g.createErr
	}
	minor, err := payment.ToMinorUnits(input.Amount, 2)
	if err != nil {
		return nil, err
	}
	if g.emptyOrderID {
		return &payment.CreateOrderResult{}, nil
	}
	orderID := fmt.Sprintf("fake_order_%d", g.calls)
	return &payment.CreateOrderResult{
		GatewayOrderID: orderID,
		CheckoutPayload: map[string]interface{}{
			"order_id": orderID,
			"amount":   minor,
			"currency": input.Currency,
		},
	}, nil
}

func (g *fakeGateway) VerifyWebhookSignature(rawBody []byte, headers http.Header) bool {
	return payment.SignatureEqual(signFake(rawBody), headers.Get(fakeSignatureKey))
}

func (g *fakeGateway) ParseWebhook(rawBody []byte) *payment.Event {
	var body fakeEventBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return &payment.Event{Type: payment.EventUnknown, GatewayEventID: "generated"}
	}
	event := &payment.Event{
		Type:             payment.EventType(body.Type),
		GatewayEventID:   body.EventID,
		GatewayOrderID:   body.OrderID,
		GatewayPaymentID: body.PaymentID,
		Currency:         body.Currency,
		OccurredAt:       time.Unix(body.OccurredAtUnix, 0),
		OrderClosed:      body.OrderClosed,
	}
	if body.AmountMinor > 0 {
		amount := payment.FromMinorUnits(body.AmountMinor, 2)
		event.Amount = &amount
	}
	switch event.Type {
	case payment.EventCaptured, payment.EventFailed:
	default:
		event.Type = payment.EventUnknown
	}
	return event
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func signFake(body []byte) string {
	h := hmac.New(sha256.New, []byte(fakeGatewaySecret))
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func fakeWebhook(t *testing.T, body fakeEventBody) ([]byte, http.Header) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal webhook body failed: %v", err)
	}
	headers := http.Header{}
	headers.Set(fakeSignatureKey, signFake(raw))
	headers.Set("Content-Type", "application/json")
	return raw, headers
}

type paymentCoreFixture struct {
	db         *gorm.DB
	gateway    *fakeGateway
	registry   *payment.Registry
	orderRepo  *repository.GormOrderRepository
	intentRepo *repository.GormPaymentIntentRepository
	ledgerRepo *repository.GormLedgerRepository
	inboxRepo  *repository.GormWebhookInboxRepository
	intentSvc  *PaymentIntentService
	processor  *WebhookProcessor
}

func setupPaymentCoreFixture(t *testing.T) *paymentCoreFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_core_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	f := &paymentCoreFixture{
		db:         db,
		gateway:    &fakeGateway{},
		orderRepo:  repository.NewOrderRepository(db),
		intentRepo: repository.NewPaymentIntentRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
		inboxRepo:  repository.NewWebhookInboxRepository(db),
	}
	f.registry = payment.NewRegistry(f.gateway)
	f.intentSvc = NewPaymentIntentService(f.orderRepo, f.intentRepo, f.registry, PaymentIntentOptions{
		DefaultGateway: fakeGatewayName,
	})
	f.processor = NewWebhookProcessor(
		db,
		f.registry,
		f.intentRepo,
		NewLedgerService(f.ledgerRepo),
		NewWebhookInboxService(f.inboxRepo),
		NewOrderFinalizer(f.orderRepo),
	)
	return f
}

func (f *paymentCoreFixture) createOrder(t *testing.T, userID uint, total string) *models.Order {
	t.Helper()
	amount, err := models.NewMoneyFromString(total)
	if err != nil {
		t.Fatalf("parse amount failed: %v", err)
	}
	order := &models.Order{UserID: userID, Currency: "INR", TotalAmount: amount}
	if err := f.orderRepo.Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func (f *paymentCoreFixture) createIntent(t *testing.T, userID, orderID uint, key string) *PaymentIntentResult {
	t.Helper()
	result, err := f.intentSvc.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		UserID:         userID,
		OrderID:        orderID,
		IdempotencyKey: key,
	})
	if err != nil {
		t.Fatalf("create payment intent failed: %v", err)
	}
	return result
}

func (f *paymentCoreFixture) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count rows failed: %v", err)
	}
	return count
}

func assertKind(t *testing.T, err error, target *Error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", target.Message)
	}
	if !errors.Is(err, target) {
		t.Fatalf("expected error %q, got %v", target.Message, err)
	}
}
