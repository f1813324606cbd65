package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/zapia-ai/relay/pkg/logging"
)

type stubQueue struct {
	sent    []string
	sendErr error
}

func (s *stubQueue) Send(_ context.Context, body string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, body)
	return nil
}

func (s *stubQueue) Receive(_ context.Context, _ int, _ int) ([]queueMessage, error) {
	return nil, context.Canceled
}

func (s *stubQueue) Delete(_ context.Context, _ string) error {
	return nil
}

func TestPublisherEnqueueMessage(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, logging.Default())

	msg := InboundMessage{Phone: "5511987654321", SenderName: "Maria", Text: "oi"}
	if err := publisher.EnqueueMessage(context.Background(), "job-123", msg); err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}
	if len(queue.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(queue.sent))
	}

	var payload queuePayload
	if err := json.Unmarshal([]byte(queue.sent[0]), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.ID != "job-123" {
		t.Fatalf("expected job ID job-123, got %s", payload.ID)
	}
	if payload.Message != msg {
		t.Fatalf("expected message to round-trip, got %+v", payload.Message)
	}
}

func TestPublisherGeneratesJobID(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, logging.Default())

	if err := publisher.EnqueueMessage(context.Background(), "", InboundMessage{Phone: "5511987654321", Text: "oi"}); err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}

	var payload queuePayload
	if err := json.Unmarshal([]byte(queue.sent[0]), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.ID == "" {
		t.Fatal("expected generated job ID")
	}
}

func TestPublisherPropagatesQueueFailure(t *testing.T) {
	queue := &stubQueue{sendErr: errors.New("queue closed")}
	publisher := NewPublisher(queue, logging.Default())

	err := publisher.EnqueueMessage(context.Background(), "job-1", InboundMessage{Phone: "5511987654321", Text: "oi"})
	if err == nil {
		t.Fatal("expected enqueue error")
	}
}
