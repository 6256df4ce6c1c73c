package queue

import (
	"testing"

	"github.com/cs-store/internal/config"

	"github.com/hibiken/asynq"
)

func TestWebhookRedriveTaskRoundTrip(t *testing.T) {
	task, err := NewWebhookRedriveTask(WebhookRedrivePayload{InboxID: 42, Attempts: 2})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != TaskWebhookRedrive {
		t.Fatalf("unexpected task type: %s", task.Type())
	}
	payload, err := ParseWebhookRedrivePayload(task)
	if err != nil {
		t.Fatalf("parse payload failed: %v", err)
	}
	if payload.InboxID != 42 || payload.Attempts != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if got := WebhookRedriveTaskID(payload); got != "webhook-redrive-42-2" {
		t.Fatalf("unexpected task id: %s", got)
	}
}

func TestWebhookRedriveTaskRequiresInboxID(t *testing.T) {
	if _, err := NewWebhookRedriveTask(WebhookRedrivePayload{}); err == nil {
		t.Fatalf("expected error for empty inbox id")
	}
	if _, err := ParseWebhookRedrivePayload(asynq.NewTask(TaskWebhookRedrive, []byte(`{"inbox_id":0}`))); err == nil {
		t.Fatalf("expected error for zero inbox id")
	}
	if _, err := ParseWebhookRedrivePayload(asynq.NewTask(TaskWebhookRedrive, []byte(`not-json`))); err == nil {
		t.Fatalf("expected error for invalid payload")
	}
}

func TestDisabledClientSkipsEnqueue(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("expected disabled client")
	}
	if err := client.EnqueueWebhookRedrive(WebhookRedrivePayload{InboxID: 1}); err != nil {
		t.Fatalf("disabled enqueue should be a no-op: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close disabled client failed: %v", err)
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(&config.QueueConfig{Host: " redis ", Port: 6380, DB: 2})
	if opt.Addr != "redis:6380" || opt.DB != 2 {
		t.Fatalf("unexpected redis opt: %+v", opt)
	}
	if cfg.Concurrency != 10 || cfg.Queues[CriticalQueue] != 2 {
		t.Fatalf("unexpected server config: %+v", cfg)
	}
}
