package cache

import (
	"context"
	"testing"
	"time"

	"github.com/cs-store/internal/config"
	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/models"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("init disabled redis failed: %v", err)
	}
	if Enabled() || Client() != nil {
		t.Fatalf("expected cache to be disabled")
	}
	ctx := context.Background()
	if err := SetPaymentIntentSnapshot(ctx, "key-1", &PaymentIntentSnapshot{PaymentIntentID: 1}); err != nil {
		t.Fatalf("set on disabled cache should be noop: %v", err)
	}
	snapshot, hit, err := GetPaymentIntentSnapshot(ctx, "key-1")
	if err != nil || hit || snapshot != nil {
		t.Fatalf("expected miss on disabled cache: hit=%v err=%v", hit, err)
	}
	if err := Ping(ctx); err != nil {
		t.Fatalf("ping on disabled cache should succeed: %v", err)
	}
}

func TestBuildKeyUsesPrefix(t *testing.T) {
	if got := BuildKey(paymentIntentKey(" idem-1 ")); got != constants.RedisPrefixDefault+":payment_intent:idem:idem-1" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := BuildKey("  "); got != constants.RedisPrefixDefault {
		t.Fatalf("unexpected empty key: %s", got)
	}
}

func TestBuildPaymentIntentSnapshot(t *testing.T) {
	amount, _ := models.NewMoneyFromString("500")
	intent := &models.PaymentIntent{
		ID:              7,
		OrderID:         3,
		UserID:          9,
		Gateway:         constants.GatewayRazorpay,
		GatewayOrderID:  "order_1",
		Status:          constants.IntentStatusGatewayOrderCreated,
		Amount:          amount,
		Currency:        "INR",
		ExpiresAt:       time.Unix(1760000000, 0),
		CheckoutPayload: models.JSON{"order_id": "order_1"},
	}
	snapshot := BuildPaymentIntentSnapshot(intent)
	if snapshot.PaymentIntentID != 7 || snapshot.GatewayOrderID != "order_1" || snapshot.Amount.String() != "500.00" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.CheckoutPayload["order_id"] != "order_1" {
		t.Fatalf("unexpected checkout payload: %+v", snapshot.CheckoutPayload)
	}
	if BuildPaymentIntentSnapshot(nil) != nil {
		t.Fatalf("expected nil snapshot for nil intent")
	}
}
