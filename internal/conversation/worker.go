package conversation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/zapia-ai/relay/pkg/logging"
)

// Processor handles one decoded pipeline job.
type Processor interface {
	Process(ctx context.Context, msg InboundMessage) error
}

// Worker consumes pipeline jobs from the queue and invokes the processor.
// A failed run is logged and dropped; the worker itself never dies.
type Worker struct {
	processor Processor
	queue     queueClient
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

const (
	defaultWorkerCount  = 2
	defaultWaitSeconds  = 2
	defaultBatchSize    = 5
	maxWaitSeconds      = 20
	maxReceiveBatchSize = 10
	deleteTimeoutSecs   = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets how many goroutines consume the queue.
func WithWorkerCount(n int) WorkerOption {
	return func(c *workerConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait per receive.
func WithReceiveWaitSeconds(n int) WorkerOption {
	return func(c *workerConfig) {
		if n >= 0 && n <= maxWaitSeconds {
			c.receiveWaitSecs = n
		}
	}
}

// WithReceiveBatchSize sets how many jobs one receive may return.
func WithReceiveBatchSize(n int) WorkerOption {
	return func(c *workerConfig) {
		if n > 0 && n <= maxReceiveBatchSize {
			c.receiveBatchSize = n
		}
	}
}

// NewWorker builds a worker pool over the queue.
func NewWorker(processor Processor, queue queueClient, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		processor: processor,
		queue:     queue,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches the consumer goroutines. They stop when ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.consume(ctx, id)
		}(i)
	}
}

// Wait blocks until all consumer goroutines have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) consume(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue receive failed", "worker", id, "error", err)
			continue
		}

		for _, msg := range messages {
			w.handle(ctx, id, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, id int, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode pipeline job", "worker", id, "message_id", msg.ID, "error", err)
		w.deleteMessage(msg)
		return
	}

	w.logger.Info("pipeline job started", "worker", id, "job_id", payload.ID, "phone", payload.Message.Phone)
	if err := w.processor.Process(ctx, payload.Message); err != nil {
		// Errors are terminal per invocation; the processor already handled
		// user-facing fallback.
		w.logger.Error("pipeline job failed", "worker", id, "job_id", payload.ID, "error", err)
	} else {
		w.logger.Info("pipeline job completed", "worker", id, "job_id", payload.ID)
	}
	w.deleteMessage(msg)
}

func (w *Worker) deleteMessage(msg queueMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSecs*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Error("failed to delete queue message", "message_id", msg.ID, "error", err)
	}
}
