package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cs-store/internal/config"
	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/logger"
	"github.com/cs-store/internal/queue"
	"github.com/cs-store/internal/service"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepBatch    = 50
)

// Sweeper 定期扫描卡在 processing 的收件记录并重放
type Sweeper struct {
	name      string
	processor *service.WebhookProcessor
	queue     *queue.Client
	interval  time.Duration
	options   service.SweepOptions
	stop      chan struct{}
}

// NewSweeper 创建收件恢复扫描器；队列可用时投递任务，否则在进程内直接重放
func NewSweeper(cfg config.WebhookConfig, processor *service.WebhookProcessor, queueClient *queue.Client) *Sweeper {
	interval := time.Duration(cfg.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	stuckAfter := time.Duration(cfg.RedriveAfterSeconds) * time.Second
	if stuckAfter <= 0 {
		stuckAfter = constants.WebhookRedriveAfterS * time.Second
	}
	batch := cfg.SweepBatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &Sweeper{
		name:      "webhook-sweeper",
		processor: processor,
		queue:     queueClient,
		interval:  interval,
		options: service.SweepOptions{
			StuckAfter:  stuckAfter,
			BatchSize:   batch,
			MaxAttempts: cfg.MaxAttempts,
		},
		stop: make(chan struct{}),
	}
}

// RunOnce 执行一轮扫描
func (s *Sweeper) RunOnce(ctx context.Context) (service.SweepResult, error) {
	if s == nil || s.processor == nil {
		return service.SweepResult{}, errors.New("webhook sweeper not initialized")
	}
	result, err := s.processor.SweepStuck(ctx, s.options, s.dispatch)
	if err != nil {
		return result, err
	}
	if result.Scanned > 0 {
		logger.Infow("worker_webhook_sweep_done",
			"scanned", result.Scanned,
			"dispatched", result.Dispatched,
			"abandoned", result.Abandoned,
		)
	}
	return result, nil
}

func (s *Sweeper) dispatch(ctx context.Context, inboxID uint, attempt int) error {
	if s.queue.Enabled() {
		return s.queue.EnqueueWebhookRedrive(queue.WebhookRedrivePayload{InboxID: inboxID, Attempts: attempt})
	}
	_, err := s.processor.Redrive(ctx, inboxID)
	return err
}

// Loop 按间隔循环扫描直到 ctx 结束
func (s *Sweeper) Loop(ctx context.Context) {
	if s == nil || s.processor == nil {
		return
	}
	runOnce := func() {
		if _, err := s.RunOnce(ctx); err != nil {
			logger.Warnw("worker_webhook_sweep_failed", "error", err)
		}
	}
	runOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// Name 服务名称
func (s *Sweeper) Name() string {
	if s == nil || s.name == "" {
		return "webhook-sweeper"
	}
	return s.name
}

// Start 以独立服务运行（队列未启用时使用）
func (s *Sweeper) Start(ctx context.Context) error {
	if s == nil || s.processor == nil {
		return errors.New("webhook sweeper not initialized")
	}
	s.Loop(ctx)
	return nil
}

// Stop 停止扫描
func (s *Sweeper) Stop(ctx context.Context) error {
	if s == nil || s.stop == nil {
		return nil
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	return nil
}
