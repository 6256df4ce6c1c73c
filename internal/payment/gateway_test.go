package payment

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/cs-store/internal/models"
)

type fakeAdapter struct{ name string }

func (f fakeAdapter) Name() string { return f.name }
func (f fakeAdapter) CreateOrder(context.Context, CreateOrderInput) (*CreateOrderResult, error) {
	return &CreateOrderResult{}, nil
}
func (f fakeAdapter) VerifyWebhookSignature([]byte, http.Header) bool { return true }
func (f fakeAdapter) ParseWebhook([]byte) *Event                      { return &Event{Type: EventUnknown} }

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	registry := NewRegistry(fakeAdapter{name: "Razorpay"}, fakeAdapter{name: "stripe"})
	if _, err := registry.Get(" RAZORPAY "); err != nil {
		t.Fatalf("expected razorpay to be registered: %v", err)
	}
	if _, err := registry.Get("paypal"); !errors.Is(err, ErrGatewayNotRegistered) {
		t.Fatalf("expected not registered error, got %v", err)
	}
	names := registry.Names()
	if len(names) != 2 || names[0] != "razorpay" || names[1] != "stripe" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestMinorUnitConversion(t *testing.T) {
	amount, _ := models.NewMoneyFromString("500.00")
	minor, err := ToMinorUnits(amount, 2)
	if err != nil || minor != 50000 {
		t.Fatalf("unexpected minor units: %d %v", minor, err)
	}
	odd, _ := models.NewMoneyFromString("10.005")
	if minor, _ := ToMinorUnits(odd, 2); minor != 1001 {
		t.Fatalf("expected half away from zero rounding, got %d", minor)
	}
	if _, err := ToMinorUnits(models.Money{}, 2); !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("expected zero amount rejected, got %v", err)
	}
	if got := FromMinorUnits(50000, 2).String(); got != "500.00" {
		t.Fatalf("unexpected major amount: %s", got)
	}
}

func TestSignatureEqual(t *testing.T) {
	if !SignatureEqual("abcd", "abcd") {
		t.Fatalf("expected equal signatures to match")
	}
	if SignatureEqual("abcd", "abc") || SignatureEqual("abcd", "abce") {
		t.Fatalf("expected mismatched signatures to fail")
	}
}
