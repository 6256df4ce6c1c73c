package worker

import (
	"context"
	"fmt"

	"github.com/cs-store/internal/logger"
	"github.com/cs-store/internal/provider"
	"github.com/cs-store/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskWebhookRedrive, c.handleWebhookRedrive)
}

func (c *Consumer) handleWebhookRedrive(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_webhook_redrive_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseWebhookRedrivePayload(task)
	if err != nil {
		logger.Warnw("worker_webhook_redrive_invalid_payload", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if c.Container == nil || c.WebhookProcessor == nil {
		logger.Warnw("worker_webhook_redrive_skip_processor_nil", "inbox_id", payload.InboxID)
		return nil
	}
	outcome, err := c.WebhookProcessor.Redrive(ctx, payload.InboxID)
	if err != nil {
		logger.Warnw("worker_webhook_redrive_failed", "inbox_id", payload.InboxID, "attempts", payload.Attempts, "error", err)
		return err
	}
	logger.Infow("worker_webhook_redrive_done",
		"inbox_id", payload.InboxID,
		"attempts", payload.Attempts,
		"status_code", outcome.StatusCode,
		"order_updated", outcome.OrderUpdated,
		"duplicate", outcome.Duplicate,
	)
	return nil
}
