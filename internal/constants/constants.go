package constants

// 订单支付状态常量（订单其余字段由订单系统维护）
const (
	OrderPaymentStatusPending = "pending"
	OrderPaymentStatusPaid    = "paid"
)

// 支付意图状态常量
const (
	IntentStatusCreated             = "CREATED"
	IntentStatusGatewayOrderCreated = "GATEWAY_ORDER_CREATED"
	IntentStatusCaptured            = "CAPTURED"
	IntentStatusFailed              = "FAILED"
	IntentStatusCancelled           = "CANCELLED"
	IntentStatusExpired             = "EXPIRED"
)

// 支付网关常量
const (
	GatewayRazorpay = "razorpay"
	GatewayStripe   = "stripe"
)

// 账本事件类型常量
const (
	LedgerEventAuthorization = "authorization"
	LedgerEventCapture       = "capture"
	LedgerEventFailure       = "failure"
	LedgerEventRefund        = "refund"
)

// Webhook 收件箱状态常量
const (
	InboxStatusReceived   = "received"
	InboxStatusProcessing = "processing"
	InboxStatusProcessed  = "processed"
	InboxStatusFailed     = "failed"
)

// 支付意图默认参数
const (
	IntentMaxAttemptsDefault   = 3
	IntentExpireMinutesDefault = 15
)

// 队列常量
const (
	QueueDefault         = "default"
	QueueCritical        = "critical"
	TaskWebhookRedrive   = "webhook:redrive"
	RedisPrefixDefault   = "cs"
	WebhookRedriveAfterS = 120
)
