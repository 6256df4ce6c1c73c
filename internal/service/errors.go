package service

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind 业务错误分类，决定对外的 HTTP 状态码
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindAuthentication    ErrorKind = "authentication"
	KindAuthorization     ErrorKind = "authorization"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindRateLimit         ErrorKind = "rate_limit"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindGateway           ErrorKind = "gateway"
	KindInternal          ErrorKind = "internal"
)

var kindStatusCodes = map[ErrorKind]int{
	KindValidation:        http.StatusBadRequest,
	KindAuthentication:    http.StatusUnauthorized,
	KindAuthorization:     http.StatusForbidden,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindRateLimit:         http.StatusTooManyRequests,
	KindInvalidTransition: http.StatusConflict,
	KindGateway:           http.StatusBadGateway,
	KindInternal:          http.StatusInternalServerError,
}

// Error 带分类的业务错误
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同分类同消息的错误视为相等，便于 errors.Is 比较哨兵错误
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind && e.Message == other.Message
}

// StatusCode 返回 HTTP 状态码
func (e *Error) StatusCode() int {
	if code, ok := kindStatusCodes[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// StatusCode 将任意错误映射为 HTTP 状态码，未分类错误按 500 处理
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.StatusCode()
	}
	return http.StatusInternalServerError
}

// KindOf 返回错误分类
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

var (
	ErrIdempotencyKeyRequired = newError(KindValidation, "idempotency key is required")
	ErrGatewayUnsupported     = newError(KindValidation, "payment method not supported")
	ErrOrderAmountInvalid     = newError(KindValidation, "order amount must be greater than zero")
	ErrOrderNotFound          = newError(KindNotFound, "order not found")
	ErrOrderNotOwned          = newError(KindAuthorization, "order does not belong to user")
	ErrOrderAlreadyPaid       = newError(KindConflict, "order already paid")
	ErrMaxAttemptsExceeded    = newError(KindRateLimit, "max attempts exceeded")
	ErrIntentCreateConflict   = newError(KindConflict, "payment intent creation conflict")
	ErrGatewayOrderFailed     = newError(KindGateway, "gateway order creation failed")
	ErrInvalidTransition      = newError(KindInvalidTransition, "invalid payment intent transition")
	ErrWebhookGatewayUnknown  = newError(KindNotFound, "unknown payment gateway")
	ErrWebhookSignature       = newError(KindAuthentication, "invalid webhook signature")
	ErrIntentNotFound         = newError(KindNotFound, "payment intent not found")
	ErrUnauthenticated        = newError(KindAuthentication, "authentication required")
)
