// Package stripe 实现 Stripe Checkout Session 网关适配器。
package stripe

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/payment"

	"github.com/google/uuid"
)

var (
	ErrConfigInvalid    = errors.New("stripe config invalid")
	ErrRequestFailed    = errors.New("stripe request failed")
	ErrResponseInvalid  = errors.New("stripe response invalid")
	ErrSignatureInvalid = errors.New("stripe signature invalid")
)

const (
	defaultAPIBaseURL        = "https://api.stripe.com"
	defaultTimeout           = 12 * time.Second
	defaultWebhookToleranceS = 300
	signatureHeader          = "Stripe-Signature"
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// Config Stripe 渠道配置。
type Config struct {
	SecretKey               string
	PublishableKey          string
	WebhookSecret           string
	SuccessURL              string
	CancelURL               string
	APIBaseURL              string
	WebhookToleranceSeconds int
	PaymentMethodTypes      []string
}

// Adapter Stripe 网关适配器。
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// New 创建 Stripe 适配器。
func New(cfg Config) (*Adapter, error) {
	cfg.normalize()
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}, nil
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SuccessURL) == "" {
		return fmt.Errorf("%w: success_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.CancelURL) == "" {
		return fmt.Errorf("%w: cancel_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(sanitizeURLForValidation(cfg.SuccessURL)); err != nil {
		return fmt.Errorf("%w: success_url is invalid", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(sanitizeURLForValidation(cfg.CancelURL)); err != nil {
		return fmt.Errorf("%w: cancel_url is invalid", ErrConfigInvalid)
	}
	if len(cfg.PaymentMethodTypes) == 0 {
		return fmt.Errorf("%w: payment_method_types is empty", ErrConfigInvalid)
	}
	return nil
}

// Name 网关名称。
func (a *Adapter) Name() string {
	return constants.GatewayStripe
}

// CreateOrder 创建 Checkout Session，session id 作为网关订单号。
func (a *Adapter) CreateOrder(ctx context.Context, input payment.CreateOrderInput) (*payment.CreateOrderResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}
	minorAmount, err := payment.ToMinorUnits(input.Amount, currencyScale(currency))
	if err != nil {
		return nil, err
	}
	receipt := strings.TrimSpace(input.Receipt)

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", a.cfg.SuccessURL)
	form.Set("cancel_url", a.cfg.CancelURL)
	form.Set("client_reference_id", receipt)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(minorAmount, 10))
	form.Set("line_items[0][price_data][product_data][name]", receipt)
	notesKeys := make([]string, 0, len(input.Notes))
	for key := range input.Notes {
		notesKeys = append(notesKeys, key)
	}
	sort.Strings(notesKeys)
	for _, key := range notesKeys {
		form.Set("metadata["+key+"]", input.Notes[key])
		form.Set("payment_intent_data[metadata]["+key+"]", input.Notes[key])
	}
	for _, pmType := range a.cfg.PaymentMethodTypes {
		form.Add("payment_method_types[]", pmType)
	}

	respBody, statusCode, err := a.doFormRequest(ctx, http.MethodPost, "/v1/checkout/sessions", form)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create checkout session status %d", ErrResponseInvalid, statusCode)
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	sessionID := readString(raw, "id")
	checkoutURL := readString(raw, "url")
	if sessionID == "" || checkoutURL == "" {
		return nil, fmt.Errorf("%w: missing session id or url", ErrResponseInvalid)
	}
	checkoutPayload := map[string]interface{}{
		"session_id":   sessionID,
		"checkout_url": checkoutURL,
		"amount":       minorAmount,
		"currency":     currency,
	}
	if a.cfg.PublishableKey != "" {
		checkoutPayload["publishable_key"] = a.cfg.PublishableKey
	}
	return &payment.CreateOrderResult{
		GatewayOrderID:  sessionID,
		CheckoutPayload: checkoutPayload,
	}, nil
}

// VerifyWebhookSignature 校验 Stripe-Signature（t=...,v1=...），签名内容为 "<t>." + rawBody。
func (a *Adapter) VerifyWebhookSignature(rawBody []byte, headers http.Header) bool {
	if len(rawBody) == 0 || headers == nil {
		return false
	}
	timestamp, signatures, err := parseSignatureHeader(headers.Get(signatureHeader))
	if err != nil {
		return false
	}
	if a.cfg.WebhookToleranceSeconds > 0 {
		delta := math.Abs(float64(a.now().Unix() - timestamp))
		if delta > float64(a.cfg.WebhookToleranceSeconds) {
			return false
		}
	}
	expected := computeSignature(a.cfg.WebhookSecret, timestamp, rawBody)
	for _, sig := range signatures {
		if payment.SignatureEqual(expected, sig) {
			return true
		}
	}
	return false
}

// ParseWebhook 解析 Stripe 事件，只识别 checkout.session 对象。
func (a *Adapter) ParseWebhook(rawBody []byte) *payment.Event {
	eventRaw, err := decodeRawMap(rawBody)
	if err != nil {
		return unknownEvent(nil)
	}
	objectRaw := readMap(readMap(eventRaw, "data"), "object")
	if readString(objectRaw, "object") != "checkout.session" {
		return unknownEvent(eventRaw)
	}

	eventType := mapEventType(readString(eventRaw, "type"), readString(objectRaw, "payment_status"))
	event := &payment.Event{
		Type:             eventType,
		GatewayOrderID:   readString(objectRaw, "id"),
		GatewayPaymentID: readPaymentIntentID(objectRaw),
		Currency:         strings.ToUpper(readString(objectRaw, "currency")),
		Raw:              eventRaw,
		// 失败与过期都会关闭 checkout session
		OrderClosed:      eventType == payment.EventFailed,
	}
	if minor := readInt64(objectRaw, "amount_total"); minor > 0 && event.Currency != "" {
		amount := payment.FromMinorUnits(minor, currencyScale(event.Currency))
		event.Amount = &amount
	}
	if created := readInt64(eventRaw, "created"); created > 0 {
		event.OccurredAt = time.Unix(created, 0).UTC()
	} else {
		event.OccurredAt = time.Now().UTC()
	}

	// completed 与 async_payment_succeeded 可能先后到达，以 payment_intent 去重
	event.GatewayEventID = event.GatewayPaymentID
	if event.GatewayEventID == "" {
		event.GatewayEventID = readString(eventRaw, "id")
	}
	if event.Type != payment.EventUnknown && (event.GatewayEventID == "" || event.GatewayOrderID == "") {
		return unknownEvent(eventRaw)
	}
	if event.GatewayEventID == "" {
		event.GatewayEventID = uuid.NewString()
	}
	return event
}

func unknownEvent(raw map[string]interface{}) *payment.Event {
	return &payment.Event{
		Type:           payment.EventUnknown,
		GatewayEventID: uuid.NewString(),
		OccurredAt:     time.Now().UTC(),
		Raw:            raw,
	}
}

func mapEventType(eventType string, paymentStatus string) payment.EventType {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "checkout.session.completed":
		// 异步支付方式在 completed 时仍是 unpaid，需等待 async_payment_succeeded
		if strings.EqualFold(paymentStatus, "paid") {
			return payment.EventCaptured
		}
		return payment.EventUnknown
	case "checkout.session.async_payment_succeeded":
		return payment.EventCaptured
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		return payment.EventFailed
	default:
		return payment.EventUnknown
	}
}

func sanitizeURLForValidation(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return trimmed
	}
	return strings.ReplaceAll(trimmed, "{CHECKOUT_SESSION_ID}", "cs_test_placeholder")
}

func (c *Config) normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.PublishableKey = strings.TrimSpace(c.PublishableKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.SuccessURL = strings.TrimSpace(c.SuccessURL)
	c.CancelURL = strings.TrimSpace(c.CancelURL)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.WebhookToleranceSeconds <= 0 {
		c.WebhookToleranceSeconds = defaultWebhookToleranceS
	}
	normalized := make([]string, 0, len(c.PaymentMethodTypes))
	for _, item := range c.PaymentMethodTypes {
		trimmed := strings.ToLower(strings.TrimSpace(item))
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	if len(normalized) == 0 {
		normalized = []string{"card"}
	}
	sort.Strings(normalized)
	c.PaymentMethodTypes = normalized
}

func currencyScale(currency string) int32 {
	upper := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[upper]; ok {
		return 0
	}
	return 2
}

func (a *Adapter) doFormRequest(ctx context.Context, method, path string, form url.Values) ([]byte, int, error) {
	endpoint := a.cfg.APIBaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var raw map[string]interface{}
	if err := decoder.Decode(&raw); err != nil || raw == nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func readPaymentIntentID(raw map[string]interface{}) string {
	if raw == nil {
		return ""
	}
	switch typed := raw["payment_intent"].(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]interface{}:
		return readString(typed, "id")
	default:
		return ""
	}
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	payload := strconv.FormatInt(timestamp, 10) + "." + string(body)
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func parseSignatureHeader(signatureHeader string) (int64, []string, error) {
	timestamp := int64(0)
	signatures := make([]string, 0)
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
			}
			timestamp = parsed
		case "v1":
			if value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if timestamp <= 0 {
		return 0, nil, fmt.Errorf("%w: timestamp is missing", ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: v1 signature is missing", ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	switch typed := raw[key].(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	default:
		return ""
	}
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return nil
	}
	mapped, _ := raw[key].(map[string]interface{})
	return mapped
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil {
		return 0
	}
	switch typed := raw[key].(type) {
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatVal, err := typed.Float64()
		if err != nil {
			return 0
		}
		return int64(floatVal)
	case float64:
		return int64(typed)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
