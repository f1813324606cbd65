package conversation

import (
	"context"
	"fmt"

	"github.com/zapia-ai/relay/pkg/logging"
)

// Publisher enqueues pipeline jobs for asynchronous processing. The webhook
// handler returns as soon as the job is on the queue; it never waits for the
// pipeline outcome.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueMessage publishes one inbound message job.
func (p *Publisher) EnqueueMessage(ctx context.Context, jobID string, msg InboundMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(jobID, msg)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("pipeline job enqueued", "job_id", payload.ID, "phone", msg.Phone)
	return nil
}
