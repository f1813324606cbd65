package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zapia-ai/relay/internal/conversation"
	"github.com/zapia-ai/relay/pkg/logging"
)

var zapiSendTracer = otel.Tracer("relay.internal.messaging.zapi_send")

// OutboundMetrics records send results. Implementations are nil-safe.
type OutboundMetrics interface {
	ObserveOutbound(status string)
}

// ZAPISender delivers text messages through a Z-API style gateway. The
// instance id and token ride in the request path, as the gateway requires.
type ZAPISender struct {
	baseURL    string
	instanceID string
	token      string
	policy     PhonePolicy
	httpClient *http.Client
	metrics    OutboundMetrics
	logger     *logging.Logger
}

// SenderOption customizes sender behavior.
type SenderOption func(*ZAPISender)

// WithOutboundMetrics wires send-result metrics.
func WithOutboundMetrics(m OutboundMetrics) SenderOption {
	return func(s *ZAPISender) { s.metrics = m }
}

// NewZAPISender builds a sender with a bounded per-call timeout.
func NewZAPISender(baseURL, instanceID, token string, policy PhonePolicy, timeout time.Duration, logger *logging.Logger, opts ...SenderOption) *ZAPISender {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &ZAPISender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		instanceID: instanceID,
		token:      token,
		policy:     policy,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ conversation.ReplyMessenger = (*ZAPISender)(nil)

type sendTextPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendText posts one message to the gateway's send-text endpoint. An empty
// message is a warned no-op. Delivery failures come back as plain errors so
// the pipeline can log and move on; there is exactly one attempt.
func (s *ZAPISender) SendText(ctx context.Context, phone, message string) error {
	if message == "" {
		s.logger.Warn("skipping empty outbound message", "phone", phone)
		s.observe("skipped_empty")
		return nil
	}
	if s.instanceID == "" || s.token == "" {
		s.observe("rejected")
		return errors.New("messaging: zapi credentials missing")
	}

	normalized := s.policy.Normalize(phone)
	if normalized == "" {
		s.observe("rejected")
		return fmt.Errorf("messaging: phone %q has no digits", phone)
	}

	ctx, span := zapiSendTracer.Start(ctx, "messaging.zapi.send_text")
	defer span.End()
	span.SetAttributes(attribute.String("relay.phone", normalized))

	body, err := json.Marshal(sendTextPayload{Phone: normalized, Message: message})
	if err != nil {
		return fmt.Errorf("messaging: encode send-text payload: %w", err)
	}

	endpoint := s.sendTextURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("messaging: build send-text request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		s.observe("network_error")
		return fmt.Errorf("messaging: send-text request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.Error("gateway rejected outbound message",
			"status", resp.StatusCode,
			"body", string(respBody),
			"phone", normalized,
		)
		err := fmt.Errorf("messaging: gateway status %d", resp.StatusCode)
		span.RecordError(err)
		s.observe("gateway_error")
		return err
	}

	s.logger.Info("outbound message delivered to gateway", "phone", normalized)
	s.observe("delivered")
	return nil
}

func (s *ZAPISender) observe(status string) {
	if s.metrics != nil {
		s.metrics.ObserveOutbound(status)
	}
}

func (s *ZAPISender) sendTextURL() string {
	return fmt.Sprintf("%s/instances/%s/token/%s/send-text", s.baseURL, s.instanceID, s.token)
}
