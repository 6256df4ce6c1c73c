package service

import (
	"errors"
	"net/http"
	"testing"

	"github.com/cs-store/internal/constants"
)

func TestCanTransitionIntent(t *testing.T) {
	cases := []struct {
		from string
		to   string
		want bool
	}{
		{constants.IntentStatusCreated, constants.IntentStatusGatewayOrderCreated, true},
		{constants.IntentStatusCreated, constants.IntentStatusFailed, true},
		{constants.IntentStatusCreated, constants.IntentStatusCancelled, true},
		{constants.IntentStatusCreated, constants.IntentStatusExpired, true},
		{constants.IntentStatusCreated, constants.IntentStatusCaptured, false},
		{constants.IntentStatusGatewayOrderCreated, constants.IntentStatusCaptured, true},
		{constants.IntentStatusGatewayOrderCreated, constants.IntentStatusFailed, true},
		{constants.IntentStatusGatewayOrderCreated, constants.IntentStatusCreated, false},
		{constants.IntentStatusCaptured, constants.IntentStatusFailed, false},
		{constants.IntentStatusCaptured, constants.IntentStatusCancelled, false},
		{constants.IntentStatusCaptured, constants.IntentStatusCaptured, false},
		{constants.IntentStatusFailed, constants.IntentStatusGatewayOrderCreated, false},
		{constants.IntentStatusExpired, constants.IntentStatusCaptured, false},
		{"", constants.IntentStatusCreated, false},
	}
	for _, tc := range cases {
		if got := CanTransitionIntent(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransitionIntent(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestAssertIntentTransitionReturnsTypedError(t *testing.T) {
	if err := AssertIntentTransition(constants.IntentStatusCreated, constants.IntentStatusGatewayOrderCreated); err != nil {
		t.Fatalf("expected legal transition, got %v", err)
	}
	err := AssertIntentTransition(constants.IntentStatusCreated, constants.IntentStatusCaptured)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
	if KindOf(err) != KindInvalidTransition || StatusCode(err) != http.StatusConflict {
		t.Fatalf("unexpected kind/status: %s %d", KindOf(err), StatusCode(err))
	}
	for _, to := range []string{
		constants.IntentStatusCreated,
		constants.IntentStatusGatewayOrderCreated,
		constants.IntentStatusFailed,
		constants.IntentStatusCancelled,
		constants.IntentStatusExpired,
	} {
		if err := AssertIntentTransition(constants.IntentStatusCaptured, to); err == nil {
			t.Fatalf("expected CAPTURED -> %s to be rejected", to)
		}
	}
	if !IsIntentTerminal(constants.IntentStatusCaptured) || IsIntentTerminal(constants.IntentStatusCreated) {
		t.Fatalf("unexpected terminal classification")
	}
}

func TestStatusCodeMapping(t *testing.T) {
	cases := map[error]int{
		ErrIdempotencyKeyRequired:  http.StatusBadRequest,
		ErrUnauthenticated:         http.StatusUnauthorized,
		ErrOrderNotOwned:           http.StatusForbidden,
		ErrOrderNotFound:           http.StatusNotFound,
		ErrOrderAlreadyPaid:        http.StatusConflict,
		ErrMaxAttemptsExceeded:     http.StatusTooManyRequests,
		ErrGatewayOrderFailed:      http.StatusBadGateway,
		errors.New("unexpected"):   http.StatusInternalServerError,
		wrapError(KindNotFound, "x", errors.New("inner")): http.StatusNotFound,
	}
	for err, want := range cases {
		if got := StatusCode(err); got != want {
			t.Fatalf("StatusCode(%v) = %d, want %d", err, got, want)
		}
	}
	if StatusCode(nil) != http.StatusOK {
		t.Fatalf("expected nil error to map to 200")
	}
}
