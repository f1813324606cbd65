package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// InboundMessage is the validated webhook event handed to the pipeline.
type InboundMessage struct {
	Phone      string `json:"phone"`
	SenderName string `json:"sender_name,omitempty"`
	Text       string `json:"text"`
}

type queuePayload struct {
	ID      string         `json:"id"`
	Message InboundMessage `json:"message"`
}

func encodePayload(jobID string, msg InboundMessage) (queuePayload, string, error) {
	payload := queuePayload{ID: jobID, Message: msg}
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}
