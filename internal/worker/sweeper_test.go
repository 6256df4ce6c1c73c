package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cs-store/internal/config"
	"github.com/cs-store/internal/constants"
	"github.com/cs-store/internal/models"
	"github.com/cs-store/internal/payment"
	"github.com/cs-store/internal/provider"
	"github.com/cs-store/internal/queue"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

func setupWorkerContainer(t *testing.T) *provider.Container {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return provider.NewContainerWithDB(&config.Config{}, db, payment.NewRegistry())
}

func seedStuckEntry(t *testing.T, c *provider.Container, key string, attempts int) *models.WebhookInboxEntry {
	t.Helper()
	entry := &models.WebhookInboxEntry{
		Gateway:        "retired",
		DedupeKey:      key,
		GatewayEventID: key,
		EventType:      "CAPTURED",
		Status:         constants.InboxStatusProcessing,
		Attempts:       attempts,
		ReceivedAt:     time.Now(),
		BodyHash:       "hash",
		RawBody:        "{}",
	}
	if _, err := c.WebhookInboxRepo.Insert(entry); err != nil {
		t.Fatalf("insert inbox failed: %v", err)
	}
	if err := c.DB.Model(&models.WebhookInboxEntry{}).Where("id = ?", entry.ID).
		UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("age inbox entry failed: %v", err)
	}
	return entry
}

func TestSweeperRedrivesInProcessWhenQueueDisabled(t *testing.T) {
	c := setupWorkerContainer(t)
	entry := seedStuckEntry(t, c, "retired:capture:evt_1", 1)
	sweeper := NewSweeper(config.WebhookConfig{RedriveAfterSeconds: 60, MaxAttempts: 5}, c.WebhookProcessor, nil)

	result, err := sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Scanned != 1 || result.Dispatched != 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
	stored, _ := c.WebhookInboxRepo.GetByID(entry.ID)
	if stored.Status != constants.InboxStatusFailed || stored.Attempts != 2 {
		t.Fatalf("expected entry for unregistered gateway to be failed after redrive, got %+v", stored)
	}
}

func TestSweeperAbandonsExhaustedEntries(t *testing.T) {
	c := setupWorkerContainer(t)
	entry := seedStuckEntry(t, c, "retired:capture:evt_2", 4)
	sweeper := NewSweeper(config.WebhookConfig{MaxAttempts: 4}, c.WebhookProcessor, &queue.Client{})

	result, err := sweeper.RunOnce(context.Background())
	if err != nil || result.Abandoned != 1 || result.Dispatched != 0 {
		t.Fatalf("unexpected sweep result: %+v err=%v", result, err)
	}
	stored, _ := c.WebhookInboxRepo.GetByID(entry.ID)
	if stored.ErrorDetail != "redrive attempts exhausted" {
		t.Fatalf("unexpected error detail: %q", stored.ErrorDetail)
	}
}

func TestSweeperStopEndsLoop(t *testing.T) {
	c := setupWorkerContainer(t)
	sweeper := NewSweeper(config.WebhookConfig{SweepIntervalSeconds: 3600}, c.WebhookProcessor, nil)
	done := make(chan struct{})
	go func() {
		_ = sweeper.Start(context.Background())
		close(done)
	}()
	if err := sweeper.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	_ = sweeper.Stop(context.Background())
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("sweeper loop did not stop")
	}
}

func TestConsumerWebhookRedrive(t *testing.T) {
	c := setupWorkerContainer(t)
	entry := seedStuckEntry(t, c, "retired:capture:evt_3", 1)
	consumer := NewConsumer(c)

	task, err := queue.NewWebhookRedriveTask(queue.WebhookRedrivePayload{InboxID: entry.ID, Attempts: 2})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if err := consumer.handleWebhookRedrive(context.Background(), task); err != nil {
		t.Fatalf("handle redrive failed: %v", err)
	}
	stored, _ := c.WebhookInboxRepo.GetByID(entry.ID)
	if stored.Status != constants.InboxStatusFailed {
		t.Fatalf("expected entry to be settled, got %s", stored.Status)
	}

	missing, _ := queue.NewWebhookRedriveTask(queue.WebhookRedrivePayload{InboxID: 9999})
	if err := consumer.handleWebhookRedrive(context.Background(), missing); err != nil {
		t.Fatalf("missing inbox entry should not be retried: %v", err)
	}

	bad := asynq.NewTask(queue.TaskWebhookRedrive, []byte("{"))
	if err := consumer.handleWebhookRedrive(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry for invalid payload, got %v", err)
	}
}
