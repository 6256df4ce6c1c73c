// Package razorpay 实现 Razorpay 网关适配器（订单创建 + webhook 校验解析）。
package razorpay

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
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/payment"

	"github.com/google/uuid"
)

var (
	ErrConfigInvalid   = errors.New("razorpay config invalid")
	ErrRequestFailed   = errors.New("razorpay request failed")
	ErrResponseInvalid = errors.New("razorpay response invalid")
)

const (
	defaultAPIBaseURL = "https://api.razorpay.com"
	defaultTimeout    = 12 * time.Second
	signatureHeader   = "X-Razorpay-Signature"
	amountScale       = 2
)

// Config Razorpay 渠道配置
type Config struct {
	KeyID          string
	KeySecret      string
	WebhookSecret  string
	APIBaseURL     string
	TimeoutSeconds int
}

// Adapter Razorpay 网关适配器
type Adapter struct {
	cfg        Config
	httpClient *http.Client
}

// New 创建 Razorpay 适配器
func New(cfg Config) (*Adapter, error) {
	cfg.normalize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// ValidateConfig 校验配置
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.KeyID) == "" {
		return fmt.Errorf("%w: key_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.KeySecret) == "" {
		return fmt.Errorf("%w: key_secret is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// Name 网关名称
func (a *Adapter) Name() string {
	return constants.GatewayRazorpay
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder 调用 POST /v1/orders 创建网关订单
func (a *Adapter) CreateOrder(ctx context.Context, input payment.CreateOrderInput) (*payment.CreateOrderResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}
	minorAmount, err := payment.ToMinorUnits(input.Amount, amountScale)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(createOrderRequest{
		Amount:   minorAmount,
		Currency: currency,
		Receipt:  strings.TrimSpace(input.Receipt),
		Notes:    input.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request failed", ErrRequestFailed)
	}

	respBody, statusCode, err := a.doJSONRequest(ctx, http.MethodPost, "/v1/orders", reqBody)
	if err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create order status %d: %s", ErrResponseInvalid, statusCode, readErrorDescription(raw))
	}

	orderID := readString(raw, "id")
	if orderID == "" {
		return nil, fmt.Errorf("%w: missing order id", ErrResponseInvalid)
	}
	return &payment.CreateOrderResult{
		GatewayOrderID: orderID,
		CheckoutPayload: map[string]interface{}{
			"key_id":   a.cfg.KeyID,
			"order_id": orderID,
			"amount":   minorAmount,
			"currency": currency,
			"receipt":  strings.TrimSpace(input.Receipt),
		},
	}, nil
}

// VerifyWebhookSignature 校验 X-Razorpay-Signature：hex(HMAC-SHA256(webhook_secret, rawBody))
func (a *Adapter) VerifyWebhookSignature(rawBody []byte, headers http.Header) bool {
	if len(rawBody) == 0 || headers == nil {
		return false
	}
	received := strings.ToLower(strings.TrimSpace(headers.Get(signatureHeader)))
	if received == "" {
		return false
	}
	return payment.SignatureEqual(computeSignature(a.cfg.WebhookSecret, rawBody), received)
}

// ParseWebhook 解析 Razorpay 事件
func (a *Adapter) ParseWebhook(rawBody []byte) *payment.Event {
	raw, err := decodeRawMap(rawBody)
	if err != nil {
		return unknownEvent(nil)
	}
	paymentEntity := readMap(readMap(readMap(raw, "payload"), "payment"), "entity")
	orderEntity := readMap(readMap(readMap(raw, "payload"), "order"), "entity")

	event := &payment.Event{
		Type:             mapEventType(readString(raw, "event")),
		GatewayPaymentID: readString(paymentEntity, "id"),
		GatewayOrderID:   readString(paymentEntity, "order_id"),
		Currency:         strings.ToUpper(readString(paymentEntity, "currency")),
		Raw:              raw,
	}
	if event.GatewayOrderID == "" {
		event.GatewayOrderID = readString(orderEntity, "id")
	}
	if event.Currency == "" {
		event.Currency = strings.ToUpper(readString(orderEntity, "currency"))
	}
	if minor := readInt64(paymentEntity, "amount"); minor > 0 {
		amount := payment.FromMinorUnits(minor, amountScale)
		event.Amount = &amount
	}
	if createdAt := readInt64(raw, "created_at"); createdAt > 0 {
		event.OccurredAt = time.Unix(createdAt, 0).UTC()
	} else {
		event.OccurredAt = time.Now().UTC()
	}

	// 同一笔支付的 payment.captured 与 order.paid 以支付流水号去重
	event.GatewayEventID = event.GatewayPaymentID
	if event.GatewayEventID == "" {
		event.GatewayEventID = readString(raw, "id")
	}
	if event.Type != payment.EventUnknown && (event.GatewayEventID == "" || event.GatewayOrderID == "") {
		return unknownEvent(raw)
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

func mapEventType(eventType string) payment.EventType {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "payment.captured", "order.paid":
		return payment.EventCaptured
	case "payment.failed":
		return payment.EventFailed
	default:
		return payment.EventUnknown
	}
}

func computeSignature(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *Adapter) doJSONRequest(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	endpoint := a.cfg.APIBaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.SetBasicAuth(a.cfg.KeyID, a.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return respBody, resp.StatusCode, nil
}

func (c *Config) normalize() {
	c.KeyID = strings.TrimSpace(c.KeyID)
	c.KeySecret = strings.TrimSpace(c.KeySecret)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var raw map[string]interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: body is not an object", ErrResponseInvalid)
	}
	return raw, nil
}

func readErrorDescription(raw map[string]interface{}) string {
	errRaw := readMap(raw, "error")
	if desc := readString(errRaw, "description"); desc != "" {
		return desc
	}
	return readString(errRaw, "code")
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
		if err != nil {
			return 0
		}
		return parsed
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
