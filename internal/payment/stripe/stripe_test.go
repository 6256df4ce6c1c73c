package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cs-store/internal/models"
	"github.com/cs-store/internal/payment"
)

func newTestAdapter(t *testing.T, baseURL string, now time.Time) *Adapter {
	t.Helper()
	adapter, err := New(Config{
		SecretKey:          " sk_test_123 ",
		WebhookSecret:      " whsec_123 ",
		SuccessURL:         "https://example.com/payment?stripe_return=1&session={CHECKOUT_SESSION_ID}",
		CancelURL:          "https://example.com/payment?stripe_cancel=1",
		APIBaseURL:         baseURL,
		PaymentMethodTypes: []string{" Card ", ""},
	})
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}
	adapter.now = func() time.Time { return now }
	return adapter
}

func TestNewNormalizesConfig(t *testing.T) {
	adapter := newTestAdapter(t, "", time.Now())
	if adapter.cfg.SecretKey != "sk_test_123" {
		t.Fatalf("unexpected secret key: %s", adapter.cfg.SecretKey)
	}
	if adapter.cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected default api base url: %s", adapter.cfg.APIBaseURL)
	}
	if len(adapter.cfg.PaymentMethodTypes) != 1 || adapter.cfg.PaymentMethodTypes[0] != "card" {
		t.Fatalf("unexpected payment method types: %v", adapter.cfg.PaymentMethodTypes)
	}
	if _, err := New(Config{SecretKey: "sk"}); err == nil {
		t.Fatalf("expected incomplete config to fail")
	}
}

func TestCreateOrderCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test_123" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		_ = r.ParseForm()
		if r.PostForm.Get("line_items[0][price_data][unit_amount]") != "1288" {
			t.Errorf("unexpected unit amount: %s", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		}
		if r.PostForm.Get("metadata[intent_id]") != "9" {
			t.Errorf("expected notes in metadata")
		}
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://checkout.stripe.com/c/cs_test_1","status":"open"}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL, time.Now())
	amount, _ := models.NewMoneyFromString("12.88")
	result, err := adapter.CreateOrder(context.Background(), payment.CreateOrderInput{
		Amount:   amount,
		Currency: "usd",
		Receipt:  "PI9-O3",
		Notes:    map[string]string{"intent_id": "9", "order_id": "3"},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if result.GatewayOrderID != "cs_test_1" {
		t.Fatalf("unexpected gateway order id: %s", result.GatewayOrderID)
	}
	if result.CheckoutPayload["checkout_url"] != "https://checkout.stripe.com/c/cs_test_1" {
		t.Fatalf("unexpected checkout payload: %+v", result.CheckoutPayload)
	}
}

func TestCurrencyScale(t *testing.T) {
	if currencyScale("jpy") != 0 {
		t.Fatalf("expected JPY to be zero-decimal")
	}
	if currencyScale("INR") != 2 {
		t.Fatalf("expected INR to use 2 decimals")
	}
}

func TestVerifyAndParseCheckoutCompleted(t *testing.T) {
	now := time.Unix(1760000000, 0)
	adapter := newTestAdapter(t, "", now)
	payload := map[string]interface{}{
		"id":      "evt_test_1",
		"type":    "checkout.session.completed",
		"created": now.Unix(),
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":         "checkout.session",
				"id":             "cs_test_123",
				"payment_intent": "pi_123",
				"payment_status": "paid",
				"currency":       "usd",
				"amount_total":   1288,
			},
		},
	}
	body, _ := json.Marshal(payload)
	headers := http.Header{}
	headers.Set(signatureHeader, "t=1760000000,v1="+computeSignature("whsec_123", now.Unix(), body))

	if !adapter.VerifyWebhookSignature(body, headers) {
		t.Fatalf("expected signature to verify")
	}
	event := adapter.ParseWebhook(body)
	if event.Type != payment.EventCaptured {
		t.Fatalf("unexpected event type: %s", event.Type)
	}
	if event.GatewayOrderID != "cs_test_123" || event.GatewayEventID != "pi_123" {
		t.Fatalf("unexpected ids: %+v", event)
	}
	if event.Amount == nil || event.Amount.String() != "12.88" || event.Currency != "USD" {
		t.Fatalf("unexpected amount: %v %s", event.Amount, event.Currency)
	}
}

func TestVerifyWebhookSignatureRejects(t *testing.T) {
	now := time.Unix(1760000000, 0)
	adapter := newTestAdapter(t, "", now)
	body := []byte(`{"id":"evt_1"}`)

	stale := http.Header{}
	stale.Set(signatureHeader, "t=1759990000,v1="+computeSignature("whsec_123", 1759990000, body))
	if adapter.VerifyWebhookSignature(body, stale) {
		t.Fatalf("expected stale timestamp to fail")
	}
	wrong := http.Header{}
	wrong.Set(signatureHeader, "t=1760000000,v1="+computeSignature("other", now.Unix(), body))
	if adapter.VerifyWebhookSignature(body, wrong) {
		t.Fatalf("expected wrong secret to fail")
	}
	if adapter.VerifyWebhookSignature(body, http.Header{}) {
		t.Fatalf("expected missing header to fail")
	}
}

func TestParseWebhookEventMapping(t *testing.T) {
	adapter := newTestAdapter(t, "", time.Now())
	unpaid := adapter.ParseWebhook([]byte(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{"object":"checkout.session","id":"cs_2","payment_status":"unpaid"}}}`))
	if unpaid.Type != payment.EventUnknown {
		t.Fatalf("expected unpaid completion to be ignored, got %s", unpaid.Type)
	}
	expired := adapter.ParseWebhook([]byte(`{"id":"evt_3","type":"checkout.session.expired","data":{"object":{"object":"checkout.session","id":"cs_3"}}}`))
	if expired.Type != payment.EventFailed || expired.GatewayEventID != "evt_3" {
		t.Fatalf("unexpected expired event: %+v", expired)
	}
	if !expired.OrderClosed {
		t.Fatalf("expected expired session to close the order")
	}
	garbage := adapter.ParseWebhook([]byte("{"))
	if garbage.Type != payment.EventUnknown || garbage.GatewayEventID == "" {
		t.Fatalf("expected unknown event with generated id: %+v", garbage)
	}
}
