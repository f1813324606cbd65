package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zapia-ai/relay/pkg/logging"
)

type recordingProcessor struct {
	mu       sync.Mutex
	received []InboundMessage
	err      error
}

func (p *recordingProcessor) Process(_ context.Context, msg InboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, msg)
	return p.err
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.received)
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorkerProcessesEnqueuedJobs(t *testing.T) {
	queue := NewMemoryQueue(8)
	processor := &recordingProcessor{}
	publisher := NewPublisher(queue, logging.Default())
	worker := NewWorker(processor, queue, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	msg := InboundMessage{Phone: "5511987654321", SenderName: "Maria", Text: "oi"}
	if err := publisher.EnqueueMessage(context.Background(), "job-1", msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(func() bool { return processor.count() == 1 }, time.Second, t)

	cancel()
	worker.Wait()

	if processor.received[0] != msg {
		t.Fatalf("expected job payload to round-trip, got %+v", processor.received[0])
	}
}

func TestWorkerSurvivesProcessorFailure(t *testing.T) {
	queue := NewMemoryQueue(8)
	processor := &recordingProcessor{err: errors.New("boom")}
	publisher := NewPublisher(queue, logging.Default())
	worker := NewWorker(processor, queue, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	for i := 0; i < 3; i++ {
		if err := publisher.EnqueueMessage(context.Background(), "", InboundMessage{Phone: "5511987654321", Text: "oi"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	waitFor(func() bool { return processor.count() == 3 }, time.Second, t)

	cancel()
	worker.Wait()
}

func TestWorkerDropsUndecodableJob(t *testing.T) {
	queue := NewMemoryQueue(8)
	processor := &recordingProcessor{}
	worker := NewWorker(processor, queue, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	if err := queue.Send(context.Background(), "{not json"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := queue.Send(context.Background(), `{"id":"job-2","message":{"phone":"5511987654321","text":"ainda funciona"}}`); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(func() bool { return processor.count() == 1 }, time.Second, t)

	cancel()
	worker.Wait()

	if processor.received[0].Text != "ainda funciona" {
		t.Fatalf("expected valid job processed after bad one, got %+v", processor.received[0])
	}
}
