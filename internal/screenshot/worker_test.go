package screenshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAcknowledger records delivery settlements
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(_ uint64, _ bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

type fakeRequeuer struct {
	requeued []*Message
	err      error
}

func (f *fakeRequeuer) Requeue(_ context.Context, msg *Message) error {
	if f.err != nil {
		return f.err
	}
	f.requeued = append(f.requeued, msg)
	return nil
}

type fakeQueueConsumer struct {
	deliveries    chan amqp.Delivery
	prefetchCount int
}

func (f *fakeQueueConsumer) Qos(prefetchCount int) error {
	f.prefetchCount = prefetchCount
	return nil
}

func (f *fakeQueueConsumer) Consume(_ string) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

type workerFixture struct {
	worker   *Worker
	pipeline *pipelineFixture
	requeuer *fakeRequeuer
	queue    *fakeQueueConsumer
}

func newWorkerFixture(maxRetries int) *workerFixture {
	fx := &workerFixture{
		pipeline: newPipelineFixture(),
		requeuer: &fakeRequeuer{},
		queue:    &fakeQueueConsumer{deliveries: make(chan amqp.Delivery, 4)},
	}

	fx.worker = NewWorker(&WorkerConfig{
		Logger:        discardLogger(),
		Queue:         fx.queue,
		Requeuer:      fx.requeuer,
		Pipeline:      fx.pipeline.pipeline,
		Concurrency:   1,
		PrefetchCount: 1,
		MaxRetries:    maxRetries,
	})

	return fx
}

func (fx *workerFixture) deliver(msg *Message) (*fakeAcknowledger, amqp.Delivery) {
	ack := &fakeAcknowledger{}
	body, _ := json.Marshal(msg)
	return ack, amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
}

func TestWorker_HandleTask_Success(t *testing.T) {
	fx := newWorkerFixture(3)

	msg := validMessage()
	ack, delivery := fx.deliver(msg)

	fx.worker.handleTask(context.Background(), &task{msg: msg, delivery: delivery}, "w-0")

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.Empty(t, fx.requeuer.requeued)
}

func TestWorker_HandleTask_TransientFailureRequeues(t *testing.T) {
	fx := newWorkerFixture(3)
	fx.pipeline.browser.err = NewRetryableError(ErrExternalService)

	msg := validMessage()
	ack, delivery := fx.deliver(msg)

	fx.worker.handleTask(context.Background(), &task{msg: msg, delivery: delivery}, "w-0")

	// the message is republished with a bumped retry count and the
	// original delivery acked
	require.Len(t, fx.requeuer.requeued, 1)
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestWorker_HandleTask_RetryBudgetExhausted(t *testing.T) {
	fx := newWorkerFixture(3)
	fx.pipeline.browser.err = NewRetryableError(ErrExternalService)

	msg := validMessage()
	msg.Metadata.RetryCount = 3
	ack, delivery := fx.deliver(msg)

	fx.worker.handleTask(context.Background(), &task{msg: msg, delivery: delivery}, "w-0")

	// past the budget the message is dead-lettered, never requeued
	assert.Empty(t, fx.requeuer.requeued)
	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestWorker_HandleTask_PermanentFailure(t *testing.T) {
	fx := newWorkerFixture(3)
	fx.pipeline.browser.err = ErrExternalService // 4xx-style, not retryable

	msg := validMessage()
	ack, delivery := fx.deliver(msg)

	fx.worker.handleTask(context.Background(), &task{msg: msg, delivery: delivery}, "w-0")

	assert.Empty(t, fx.requeuer.requeued)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestWorker_HandleTask_RequeueFailureFallsBackToNack(t *testing.T) {
	fx := newWorkerFixture(3)
	fx.pipeline.browser.err = NewRetryableError(ErrExternalService)
	fx.requeuer.err = errors.New("broker unavailable")

	msg := validMessage()
	ack, delivery := fx.deliver(msg)

	fx.worker.handleTask(context.Background(), &task{msg: msg, delivery: delivery}, "w-0")

	// broker-level requeue keeps the message alive when republish fails
	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestWorker_DispatchLoop_MalformedMessage(t *testing.T) {
	fx := newWorkerFixture(3)

	ack := &fakeAcknowledger{}
	fx.queue.deliveries <- amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         []byte("not json"),
	}
	close(fx.queue.deliveries)

	fx.worker.dispatchLoop(context.Background(), fx.queue.deliveries)

	// undecodable payloads go straight to the dead-letter queue
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
	assert.False(t, ack.acked)
}

func TestWorker_StartAndStop(t *testing.T) {
	fx := newWorkerFixture(3)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- fx.worker.Start(ctx)
	}()

	cancel()
	require.NoError(t, <-done)
	fx.worker.Stop()

	assert.Equal(t, 1, fx.queue.prefetchCount)
}
