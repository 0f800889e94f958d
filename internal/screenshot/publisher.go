package screenshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// QueuePublisher is the publish surface the Publisher needs from the
// RabbitMQ client.
type QueuePublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Publisher enqueues screenshot messages
type Publisher struct {
	queue  QueuePublisher
	logger *slog.Logger
}

// NewPublisher creates a screenshot message publisher
func NewPublisher(queue QueuePublisher, logger *slog.Logger) *Publisher {
	return &Publisher{queue: queue, logger: logger}
}

// Enqueue publishes a screenshot request and returns its screenshot ID
func (p *Publisher) Enqueue(ctx context.Context, params Params, config *CaptureConfig) (string, error) {
	msg := Message{
		Metadata: Metadata{
			ScreenshotID:   uuid.New().String(),
			CreatedAt:      time.Now().UTC(),
			UserID:         params.UserID,
			OrganizationID: params.OrgID,
			Version:        MessageVersion,
		},
		Params: params,
		Config: config,
	}

	if err := msg.Validate(); err != nil {
		return "", err
	}

	body, err := json.Marshal(&msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode screenshot message: %w", err)
	}

	if err := p.queue.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return "", fmt.Errorf("failed to enqueue screenshot message: %w", err)
	}

	p.logger.Info("Screenshot message enqueued",
		slog.String("screenshot_id", msg.Metadata.ScreenshotID),
		slog.String("project_id", params.ProjectID),
		slog.String("organization_id", params.OrgID),
	)

	return msg.Metadata.ScreenshotID, nil
}

// Requeue republishes a consumed message with an incremented retry count.
// The worker uses it for transient failures instead of a blind nack-requeue
// so the redelivery budget is tracked in the message itself.
func (p *Publisher) Requeue(ctx context.Context, msg *Message) error {
	retried := *msg
	retried.Metadata.RetryCount++

	body, err := json.Marshal(&retried)
	if err != nil {
		return fmt.Errorf("failed to encode requeued message: %w", err)
	}

	if err := p.queue.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to requeue screenshot message: %w", err)
	}

	p.logger.Info("Screenshot message requeued",
		slog.String("screenshot_id", retried.Metadata.ScreenshotID),
		slog.Int("retry_count", retried.Metadata.RetryCount),
	)

	return nil
}
