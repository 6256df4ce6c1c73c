package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/models"
	"github.com/cs-store/internal/payment"
	"github.com/cs-store/internal/repository"

	"gorm.io/gorm"
)

// WebhookProcessor 网关回调处理：验签、去重、记账、状态流转、订单终结
type WebhookProcessor struct {
	db         *gorm.DB
	gateways   *payment.Registry
	intentRepo repository.PaymentIntentRepository
	ledger     *LedgerService
	inbox      *WebhookInboxService
	finalizer  *OrderFinalizer
}

// NewWebhookProcessor 创建回调处理器
func NewWebhookProcessor(db *gorm.DB, gateways *payment.Registry, intentRepo repository.PaymentIntentRepository, ledger *LedgerService, inbox *WebhookInboxService, finalizer *OrderFinalizer) *WebhookProcessor {
	return &WebhookProcessor{
		db:         db,
		gateways:   gateways,
		intentRepo: intentRepo,
		ledger:     ledger,
		inbox:      inbox,
		finalizer:  finalizer,
	}
}

// WebhookOutcome 回调处理结果；预期内的失败通过 StatusCode 表达，意外错误以 error 返回
type WebhookOutcome struct {
	OK            bool
	StatusCode    int
	Message       string
	Duplicate     bool
	Ignored       bool
	OrderUpdated  bool
	LedgerCreated bool
	InboxID       uint
}

func acknowledged(message string) *WebhookOutcome {
	return &WebhookOutcome{OK: true, StatusCode: http.StatusOK, Message: message}
}

func rejected(err *Error) *WebhookOutcome {
	return &WebhookOutcome{OK: false, StatusCode: err.StatusCode(), Message: err.Message}
}

// ProcessWebhook 处理一次网关回调投递，rawBody 必须是收到的原始字节
func (p *WebhookProcessor) ProcessWebhook(ctx context.Context, gatewayName string, rawBody []byte, headers http.Header) (*WebhookOutcome, error) {
	gatewayName = payment.NormalizeName(gatewayName)
	log := paymentLogger("gateway", gatewayName)

	adapter, err := p.gateways.Get(gatewayName)
	if err != nil {
		log.Warnw("payment_webhook_gateway_unknown")
		return rejected(ErrWebhookGatewayUnknown), nil
	}
	if !adapter.VerifyWebhookSignature(rawBody, headers) {
		log.Warnw("payment_webhook_signature_invalid", "body_size", len(rawBody))
		return rejected(ErrWebhookSignature), nil
	}

	event := adapter.ParseWebhook(rawBody)
	if event == nil || event.Type == payment.EventUnknown {
		log.Infow("payment_webhook_ignored")
		outcome := acknowledged("ignored")
		outcome.Ignored = true
		return outcome, nil
	}

	log = log.With("event_type", event.Type, "gateway_event_id", event.GatewayEventID, "gateway_order_id", event.GatewayOrderID)
	dedupeKey := BuildDedupeKey(gatewayName, eventKind(event.Type), event.GatewayEventID)
	entry, created, err := p.inbox.Receive(ctx, ReceiveWebhookInput{
		Gateway:        gatewayName,
		DedupeKey:      dedupeKey,
		GatewayEventID: event.GatewayEventID,
		EventType:      string(event.Type),
		RawBody:        rawBody,
		Headers:        headers,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		log.Infow("payment_webhook_duplicate", "dedupe_key", dedupeKey)
		outcome := acknowledged("duplicate")
		outcome.Duplicate = true
		return outcome, nil
	}
	return p.apply(ctx, gatewayName, event, entry)
}

// Redrive 从收件箱保存的原始报文重放处理（报文在首次接收时已验签）
func (p *WebhookProcessor) Redrive(ctx context.Context, inboxID uint) (*WebhookOutcome, error) {
	entry, err := p.inbox.Get(ctx, inboxID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return rejected(newError(KindNotFound, "webhook inbox entry not found")), nil
	}
	if entry.Status != constants.InboxStatusProcessing {
		outcome := acknowledged("already settled")
		outcome.Duplicate = true
		outcome.InboxID = entry.ID
		return outcome, nil
	}
	adapter, err := p.gateways.Get(entry.Gateway)
	if err != nil {
		if markErr := p.inbox.MarkFailed(ctx, entry.ID, "gateway no longer registered"); markErr != nil {
			return nil, markErr
		}
		return rejected(ErrWebhookGatewayUnknown), nil
	}
	event := adapter.ParseWebhook([]byte(entry.RawBody))
	if event == nil || event.Type == payment.EventUnknown {
		if markErr := p.inbox.MarkFailed(ctx, entry.ID, "stored payload no longer parseable"); markErr != nil {
			return nil, markErr
		}
		outcome := acknowledged("ignored")
		outcome.Ignored = true
		return outcome, nil
	}
	paymentLogger("inbox_id", entry.ID, "gateway", entry.Gateway, "attempts", entry.Attempts).Infow("payment_webhook_redrive")
	return p.apply(ctx, entry.Gateway, event, entry)
}

// apply 关联支付意图后，在同一事务内完成记账、状态流转、订单终结与收件标记
func (p *WebhookProcessor) apply(ctx context.Context, gateway string, event *payment.Event, entry *models.WebhookInboxEntry) (*WebhookOutcome, error) {
	log := paymentLogger("gateway", gateway, "inbox_id", entry.ID, "gateway_event_id", event.GatewayEventID, "gateway_order_id", event.GatewayOrderID)

	intent, err := p.intentRepo.GetByGatewayOrderID(gateway, event.GatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("load payment intent: %w", err)
	}
	if intent == nil {
		log.Warnw("payment_webhook_intent_not_found")
		if err := p.inbox.MarkFailed(ctx, entry.ID, "payment intent not found for gateway order "+event.GatewayOrderID); err != nil {
			return nil, err
		}
		outcome := rejected(ErrIntentNotFound)
		outcome.InboxID = entry.ID
		return outcome, nil
	}
	log = log.With("intent_id", intent.ID, "order_id", intent.OrderID)

	amount := intent.Amount
	if event.Amount != nil {
		amount = *event.Amount
		if !amount.Decimal.Equal(intent.Amount.Decimal) {
			log.Warnw("payment_webhook_amount_mismatch", "event_amount", amount.String(), "intent_amount", intent.Amount.String())
		}
	}
	currency := strings.TrimSpace(event.Currency)
	if currency == "" {
		currency = intent.Currency
	}

	kind := eventKind(event.Type)
	outcome := acknowledged("processed")
	outcome.InboxID = entry.ID
	var conflict *Error

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := p.ledger.WithTx(tx).Append(ctx, AppendLedgerInput{
			IntentID:       intent.ID,
			OrderID:        intent.OrderID,
			Gateway:        gateway,
			EventType:      kind,
			Amount:         amount,
			Currency:       currency,
			GatewayEventID: event.GatewayEventID,
			DedupeKey:      entry.DedupeKey,
			OccurredAt:     event.OccurredAt,
			RawPayload:     entry.RawBody,
		})
		if err != nil {
			return err
		}
		outcome.LedgerCreated = created

		intentRepo := p.intentRepo.WithTx(tx)
		inbox := p.inbox.WithTx(tx)
		if kind == constants.LedgerEventFailure {
			// 单次付款失败时网关订单仍可继续付款，意图保持原状态等待后续扣款
			if event.OrderClosed {
				if err := failIntent(intentRepo, intent, "gateway closed the order after payment failure"); err != nil {
					return err
				}
			}
			return inbox.MarkProcessed(ctx, entry.ID)
		}

		conflict, err = captureIntent(intentRepo, intent)
		if err != nil {
			return err
		}
		if conflict != nil {
			// 账本保留网关事实，订单不动，收件标记失败留待对账
			return inbox.MarkFailed(ctx, entry.ID, conflict.Error())
		}
		updated, err := p.finalizer.WithTx(tx).FinalizeOnCapture(ctx, FinalizeInput{
			OrderID:          intent.OrderID,
			GatewayOrderID:   event.GatewayOrderID,
			GatewayPaymentID: event.GatewayPaymentID,
			GatewayEventID:   event.GatewayEventID,
			CapturedAt:       event.OccurredAt,
		})
		if err != nil {
			return err
		}
		outcome.OrderUpdated = updated
		return inbox.MarkProcessed(ctx, entry.ID)
	})
	if err != nil {
		log.Errorw("payment_webhook_apply_failed", "error", err)
		return nil, err
	}

	if conflict != nil {
		// 照常应答 200，收件已标记失败，留待对账
		log.Warnw("payment_webhook_intent_state_conflict", "intent_status", intent.Status, "error", conflict)
		outcome.Message = ErrInvalidTransition.Message
		return outcome, nil
	}
	log.Infow("payment_webhook_processed",
		"event_kind", kind,
		"ledger_created", outcome.LedgerCreated,
		"order_updated", outcome.OrderUpdated,
	)
	return outcome, nil
}

// captureIntent 流转到 CAPTURED；已是 CAPTURED 视为成功，非法流转以 conflict 返回
func captureIntent(repo *repository.GormPaymentIntentRepository, intent *models.PaymentIntent) (*Error, error) {
	if intent.Status == constants.IntentStatusCaptured {
		return nil, nil
	}
	if !CanTransitionIntent(intent.Status, constants.IntentStatusCaptured) {
		return transitionConflict(intent.Status, constants.IntentStatusCaptured), nil
	}
	ok, err := repo.UpdateStatus(intent.ID, intent.Status, constants.IntentStatusCaptured, map[string]interface{}{
		"failure_reason": "",
	})
	if err != nil {
		return nil, err
	}
	if ok {
		intent.Status = constants.IntentStatusCaptured
		return nil, nil
	}
	current, err := repo.GetByID(intent.ID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Status == constants.IntentStatusCaptured {
		intent.Status = current.Status
		return nil, nil
	}
	from := intent.Status
	if current != nil {
		from = current.Status
	}
	return transitionConflict(from, constants.IntentStatusCaptured), nil
}

// failIntent 合法时流转到 FAILED，否则保持原状态（例如已 CAPTURED）
func failIntent(repo *repository.GormPaymentIntentRepository, intent *models.PaymentIntent, reason string) error {
	if !CanTransitionIntent(intent.Status, constants.IntentStatusFailed) {
		paymentLogger("intent_id", intent.ID, "intent_status", intent.Status).Infow("payment_webhook_failure_state_kept")
		return nil
	}
	ok, err := repo.UpdateStatus(intent.ID, intent.Status, constants.IntentStatusFailed, map[string]interface{}{
		"failure_reason": reason,
	})
	if err != nil {
		return err
	}
	if ok {
		intent.Status = constants.IntentStatusFailed
	}
	return nil
}

// SweepOptions 卡住收件的恢复扫描参数
type SweepOptions struct {
	StuckAfter  time.Duration
	BatchSize   int
	MaxAttempts int
}

// SweepResult 恢复扫描结果
type SweepResult struct {
	Scanned    int
	Dispatched int
	Abandoned  int
}

// SweepStuck 找出超时仍在 processing 的收件记录，抢占后交给 dispatch 重放；超过重试上限的标记失败
func (p *WebhookProcessor) SweepStuck(ctx context.Context, options SweepOptions, dispatch func(ctx context.Context, inboxID uint, attempt int) error) (SweepResult, error) {
	var result SweepResult
	if dispatch == nil {
		return result, errors.New("webhook sweep dispatch is nil")
	}
	entries, err := p.inbox.ListStuck(ctx, options.StuckAfter, options.BatchSize)
	if err != nil {
		return result, err
	}
	result.Scanned = len(entries)
	for _, entry := range entries {
		log := paymentLogger("inbox_id", entry.ID, "gateway", entry.Gateway, "attempts", entry.Attempts)
		if options.MaxAttempts > 0 && entry.Attempts >= options.MaxAttempts {
			if err := p.inbox.MarkFailed(ctx, entry.ID, "redrive attempts exhausted"); err != nil {
				return result, err
			}
			log.Errorw("payment_webhook_redrive_abandoned")
			result.Abandoned++
			continue
		}
		claimed, err := p.inbox.ClaimForRedrive(ctx, entry.ID, options.StuckAfter)
		if err != nil {
			return result, err
		}
		if !claimed {
			continue
		}
		if err := dispatch(ctx, entry.ID, entry.Attempts+1); err != nil {
			log.Warnw("payment_webhook_redrive_dispatch_failed", "error", err)
			continue
		}
		result.Dispatched++
	}
	return result, nil
}

func eventKind(eventType payment.EventType) string {
	if eventType == payment.EventFailed {
		return constants.LedgerEventFailure
	}
	return constants.LedgerEventCapture
}
