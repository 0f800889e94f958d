package screenshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueConsumer is the consume surface the worker needs from the RabbitMQ
// client.
type QueueConsumer interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// MessageRequeuer republishes a message with an incremented retry count
type MessageRequeuer interface {
	Requeue(ctx context.Context, msg *Message) error
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	Logger        *slog.Logger
	Queue         QueueConsumer
	Requeuer      MessageRequeuer
	Pipeline      *Pipeline
	Metrics       *Metrics
	Concurrency   int
	JobTimeout    time.Duration
	PrefetchCount int
	// MaxRetries bounds redeliveries per message; past it the message is
	// nacked without requeue and dead-lettered.
	MaxRetries int
}

// task pairs a decoded message with its delivery for ack/nack
type task struct {
	msg      *Message
	delivery amqp.Delivery
}

// Worker consumes screenshot messages and runs the pipeline on a pool of
// goroutines.
type Worker struct {
	logger        *slog.Logger
	queue         QueueConsumer
	requeuer      MessageRequeuer
	pipeline      *Pipeline
	metrics       *Metrics
	concurrency   int
	jobTimeout    time.Duration
	prefetchCount int
	maxRetries    int
	workerID      string
	tasksChan     chan *task
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *WorkerConfig) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		queue:         cfg.Queue,
		requeuer:      cfg.Requeuer,
		pipeline:      cfg.Pipeline,
		metrics:       cfg.Metrics,
		concurrency:   cfg.Concurrency,
		jobTimeout:    cfg.JobTimeout,
		prefetchCount: cfg.PrefetchCount,
		maxRetries:    cfg.MaxRetries,
		workerID:      fmt.Sprintf("screenshot-worker-%s", uuid.New().String()[:8]),
		tasksChan:     make(chan *task),
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming and processing screenshot messages. It blocks
// until the context is canceled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting screenshot worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	if err := w.queue.Qos(w.prefetchCount); err != nil {
		return fmt.Errorf("failed to configure QoS: %w", err)
	}

	deliveries, err := w.queue.Consume(w.workerID)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	w.spawnPool(ctx)
	w.dispatchLoop(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker pool
func (w *Worker) Stop() {
	w.logger.Info("Stopping screenshot worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Screenshot worker stopped")
}

// spawnPool starts the processing goroutines
func (w *Worker) spawnPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// dispatchLoop reads deliveries, decodes them, and hands tasks to the pool.
// Undecodable messages are nacked without requeue so they land on the
// dead-letter queue instead of looping forever.
func (w *Worker) dispatchLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			var msg Message
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.logger.Error("Failed to parse screenshot message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				w.metrics.RecordOutcome(OutcomeDropped)
				continue
			}

			select {
			case w.tasksChan <- &task{msg: &msg, delivery: delivery}:
				w.logger.Debug("Message dispatched to worker pool",
					slog.String("screenshot_id", msg.Metadata.ScreenshotID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}

// workerLoop is the main processing loop for each pool goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case t, ok := <-w.tasksChan:
			if !ok {
				return
			}
			w.handleTask(ctx, t, workerName)
		}
	}
}

// handleTask runs the pipeline for one message and settles the delivery
func (w *Worker) handleTask(ctx context.Context, t *task, workerName string) {
	logger := w.logger.With(
		slog.String("worker_name", workerName),
		slog.String("screenshot_id", t.msg.Metadata.ScreenshotID),
	)

	runCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	_, err := w.pipeline.Run(runCtx, t.msg)
	if err == nil {
		if ackErr := t.delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message",
				slog.String("error", ackErr.Error()),
			)
			return
		}
		logger.Info("Screenshot completed successfully")
		return
	}

	if IsRetryable(err) && t.msg.Metadata.RetryCount < w.maxRetries {
		// Republish with an incremented retry count and ack the original.
		// Counting retries in the message keeps the redelivery budget
		// visible to every consumer.
		if requeueErr := w.requeuer.Requeue(ctx, t.msg); requeueErr != nil {
			logger.Error("Failed to requeue message, nacking with requeue",
				slog.String("error", requeueErr.Error()),
			)
			if nackErr := t.delivery.Nack(false, true); nackErr != nil {
				logger.Error("Failed to NACK message",
					slog.String("error", nackErr.Error()),
				)
			}
			return
		}

		if ackErr := t.delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message after requeue",
				slog.String("error", ackErr.Error()),
			)
			return
		}

		w.metrics.RecordOutcome(OutcomeRequeued)
		logger.Warn("Screenshot failed with a transient error, requeued",
			slog.Int("retry_count", t.msg.Metadata.RetryCount+1),
			slog.Int("max_retries", w.maxRetries),
			slog.String("error", err.Error()),
		)
		return
	}

	// Permanent failure or retry budget exhausted: dead-letter the message.
	if nackErr := t.delivery.Nack(false, false); nackErr != nil {
		logger.Error("Failed to NACK message",
			slog.String("error", nackErr.Error()),
		)
		return
	}

	w.metrics.RecordOutcome(OutcomeDropped)
	logger.Error("Screenshot failed permanently, message dead-lettered",
		slog.String("code", CodeForError(err)),
		slog.Int("retry_count", t.msg.Metadata.RetryCount),
		slog.String("error", err.Error()),
	)
}
