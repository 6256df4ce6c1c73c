package queue

import (
	"encoding/json"
	"fmt"

	"github.com/cs-store/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskWebhookRedrive 收件重放任务
	TaskWebhookRedrive = constants.TaskWebhookRedrive
)

// WebhookRedrivePayload 收件重放任务载荷
type WebhookRedrivePayload struct {
	InboxID  uint `json:"inbox_id"`
	Attempts int  `json:"attempts"`
}

// NewWebhookRedriveTask 创建收件重放任务
func NewWebhookRedriveTask(payload WebhookRedrivePayload) (*asynq.Task, error) {
	if payload.InboxID == 0 {
		return nil, fmt.Errorf("webhook redrive inbox id is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWebhookRedrive, body), nil
}

// ParseWebhookRedrivePayload 解析收件重放任务载荷
func ParseWebhookRedrivePayload(task *asynq.Task) (WebhookRedrivePayload, error) {
	var payload WebhookRedrivePayload
	if task == nil {
		return payload, fmt.Errorf("webhook redrive task is nil")
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, err
	}
	if payload.InboxID == 0 {
		return payload, fmt.Errorf("webhook redrive inbox id is required")
	}
	return payload, nil
}

// WebhookRedriveTaskID 任务唯一 ID：同一收件记录的同一次抢占只对应一个任务
func WebhookRedriveTaskID(payload WebhookRedrivePayload) string {
	return fmt.Sprintf("webhook-redrive-%d-%d", payload.InboxID, payload.Attempts)
}
