package screenshot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueuePublisher struct {
	published [][]byte
	err       error
}

func (f *fakeQueuePublisher) PublishWithRetry(_ context.Context, body []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, body)
	return nil
}

func newTestPublisher(queue QueuePublisher) *Publisher {
	return NewPublisher(queue, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublisher_Enqueue(t *testing.T) {
	queue := &fakeQueuePublisher{}
	p := newTestPublisher(queue)

	screenshotID, err := p.Enqueue(context.Background(), Params{
		ProjectID:  "proj-1",
		OrgID:      "org-1",
		UserID:     "user-1",
		PreviewURL: "https://preview.libra.sh/proj-1",
	}, &CaptureConfig{ViewportWidth: 1920})
	require.NoError(t, err)
	assert.NotEmpty(t, screenshotID)

	require.Len(t, queue.published, 1)

	var msg Message
	require.NoError(t, json.Unmarshal(queue.published[0], &msg))
	assert.Equal(t, screenshotID, msg.Metadata.ScreenshotID)
	assert.Equal(t, MessageVersion, msg.Metadata.Version)
	assert.Equal(t, "org-1", msg.Metadata.OrganizationID)
	assert.Equal(t, "proj-1", msg.Params.ProjectID)
	assert.Zero(t, msg.Metadata.RetryCount)
	require.NotNil(t, msg.Config)
	assert.Equal(t, 1920, msg.Config.ViewportWidth)
	assert.False(t, msg.Metadata.CreatedAt.IsZero())
}

func TestPublisher_Enqueue_InvalidParams(t *testing.T) {
	queue := &fakeQueuePublisher{}
	p := newTestPublisher(queue)

	_, err := p.Enqueue(context.Background(), Params{ProjectID: "proj-1"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Empty(t, queue.published)
}

func TestPublisher_Enqueue_PublishFailure(t *testing.T) {
	queue := &fakeQueuePublisher{err: errors.New("broker unavailable")}
	p := newTestPublisher(queue)

	_, err := p.Enqueue(context.Background(), Params{
		ProjectID: "proj-1",
		OrgID:     "org-1",
		UserID:    "user-1",
	}, nil)
	assert.Error(t, err)
}

func TestPublisher_Requeue(t *testing.T) {
	queue := &fakeQueuePublisher{}
	p := newTestPublisher(queue)

	original := validMessage()
	original.Metadata.RetryCount = 1

	require.NoError(t, p.Requeue(context.Background(), original))
	require.Len(t, queue.published, 1)

	var requeued Message
	require.NoError(t, json.Unmarshal(queue.published[0], &requeued))
	assert.Equal(t, 2, requeued.Metadata.RetryCount)
	assert.Equal(t, original.Metadata.ScreenshotID, requeued.Metadata.ScreenshotID)

	// the caller's message is untouched
	assert.Equal(t, 1, original.Metadata.RetryCount)
}
