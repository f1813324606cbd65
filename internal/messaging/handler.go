package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zapia-ai/relay/internal/conversation"
	"github.com/zapia-ai/relay/pkg/logging"
)

var webhookTracer = otel.Tracer("relay.internal.messaging.webhook")

// Webhook acknowledgment statuses. The gateway only ever sees one of these
// (or a bare 400 for bodies that are not JSON); pipeline outcomes are never
// reported back.
const (
	StatusReceived        = "received"
	StatusIgnoredGroup    = "ignored_group_message"
	StatusIgnoredNoText   = "ignored_no_text"
	StatusIgnoredEmpty    = "ignored_empty_text"
	StatusProcessingError = "processing_error"
)

const maxWebhookBody = 1 << 20

type conversationPublisher interface {
	EnqueueMessage(ctx context.Context, jobID string, msg conversation.InboundMessage) error
}

// InboundMetrics records webhook observations. Implementations are nil-safe.
type InboundMetrics interface {
	ObserveInbound(status string)
	ObserveWebhookLatency(seconds float64)
}

// Handler validates gateway webhooks and hands sane events to the pipeline.
type Handler struct {
	publisher conversationPublisher
	metrics   InboundMetrics
	logger    *logging.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(publisher conversationPublisher, metrics InboundMetrics, logger *logging.Logger) *Handler {
	if publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

type webhookMessage struct {
	Text *string `json:"text"`
}

type webhookPayload struct {
	Phone          string          `json:"phone"`
	SenderName     string          `json:"senderName"`
	Message        *webhookMessage `json:"message"`
	IsGroupMessage bool            `json:"isGroupMessage"`
}

// GatewayWebhook handles POST /webhook/zapi. The response is always 200 with
// a status body once the payload parses as JSON; only a non-JSON body earns a
// 400. Anything else would invite gateway redeliveries.
func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.webhook")
	defer span.End()
	start := time.Now()

	status := h.accept(ctx, w, r)
	if status != "" {
		writeStatus(w, http.StatusOK, status)
	}
	if h.metrics != nil {
		if status == "" {
			status = "bad_request"
		}
		h.metrics.ObserveInbound(status)
		h.metrics.ObserveWebhookLatency(time.Since(start).Seconds())
	}
	span.SetAttributes(attribute.String("relay.webhook.status", status))
}

// accept returns the acknowledgment status, or "" when a 400 was already
// written.
func (h *Handler) accept(ctx context.Context, w http.ResponseWriter, r *http.Request) string {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return ""
	}
	if !json.Valid(body) {
		h.logger.Error("webhook body is not valid JSON")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return ""
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("webhook payload failed shape validation", "error", err)
		return StatusProcessingError
	}
	if strings.TrimSpace(payload.Phone) == "" {
		h.logger.Error("webhook payload missing phone")
		return StatusProcessingError
	}
	if payload.IsGroupMessage {
		h.logger.Info("group message ignored", "phone", payload.Phone)
		return StatusIgnoredGroup
	}
	if payload.Message == nil || payload.Message.Text == nil {
		h.logger.Info("webhook without text ignored", "phone", payload.Phone)
		return StatusIgnoredNoText
	}

	text := strings.TrimSpace(*payload.Message.Text)
	if text == "" {
		h.logger.Info("empty text message ignored", "phone", payload.Phone)
		return StatusIgnoredEmpty
	}

	msg := conversation.InboundMessage{
		Phone:      payload.Phone,
		SenderName: strings.TrimSpace(payload.SenderName),
		Text:       text,
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := h.publisher.EnqueueMessage(enqueueCtx, uuid.NewString(), msg); err != nil {
		h.logger.Error("failed to enqueue pipeline job", "phone", payload.Phone, "error", err)
		return StatusProcessingError
	}

	h.logger.Info("webhook accepted", "phone", payload.Phone)
	return StatusReceived
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
