package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zapia-ai/relay/pkg/logging"
)

var serviceTracer = otel.Tracer("relay.internal.conversation.service")

// ReplyMessenger delivers outbound text to an end user through the gateway.
type ReplyMessenger interface {
	SendText(ctx context.Context, phone, message string) error
}

// historyStore is the slice of Store the orchestrator needs. Tests substitute
// a fake; production wires *Store.
type historyStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	ResolveUser(ctx context.Context, q Querier, phone, name string) (User, error)
	AppendMessage(ctx context.Context, q Querier, userID uuid.UUID, text string, sender SenderKind) (Message, error)
	RecentHistory(ctx context.Context, q Querier, userID uuid.UUID, limit int) ([]Message, error)
}

// RunMetrics records pipeline outcomes. Implementations must be nil-safe.
type RunMetrics interface {
	ObserveRun(outcome string, seconds float64)
	ObserveCompletion(status string, seconds float64)
}

// Run outcomes reported to metrics.
const (
	RunOutcomeReplied  = "replied"
	RunOutcomeFallback = "fallback"
	RunOutcomeError    = "error"
)

// Service orchestrates one pipeline run per inbound message: persist the user
// turn, assemble bounded history, request a completion, persist and relay the
// reply. Failures degrade to user-facing fallback messages and never escape.
type Service struct {
	store         historyStore
	llm           LLMClient
	messenger     ReplyMessenger
	systemPrompt  string
	contextWindow int

	fallbackReply      string
	internalErrorReply string

	metrics RunMetrics
	logger  *logging.Logger
}

// ServiceOption customizes service behavior.
type ServiceOption func(*Service)

// WithRunMetrics wires pipeline outcome metrics.
func WithRunMetrics(m RunMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithFallbackReplies overrides the user-facing messages sent when no reply
// was produced or the run failed outright.
func WithFallbackReplies(fallback, internalError string) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(fallback) != "" {
			s.fallbackReply = fallback
		}
		if strings.TrimSpace(internalError) != "" {
			s.internalErrorReply = internalError
		}
	}
}

const (
	defaultContextWindow      = 6
	defaultFallbackReply      = "Desculpe, não consegui processar sua solicitação no momento. 🥺 Tente novamente mais tarde."
	defaultInternalErrorReply = "Ocorreu um erro interno. Por favor, tente novamente mais tarde."
)

// NewService wires the pipeline orchestrator.
func NewService(store historyStore, llm LLMClient, messenger ReplyMessenger, systemPrompt string, contextWindow int, logger *logging.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if messenger == nil {
		panic("conversation: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if contextWindow <= 0 {
		contextWindow = defaultContextWindow
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	svc := &Service{
		store:              store,
		llm:                llm,
		messenger:          messenger,
		systemPrompt:       systemPrompt,
		contextWindow:      contextWindow,
		fallbackReply:      defaultFallbackReply,
		internalErrorReply: defaultInternalErrorReply,
		logger:             logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Process runs the pipeline for one inbound message. The returned error is for
// the worker's log only; by the time Process returns, the user has either
// received a reply, an apology, or a best-effort internal-error notice.
func (s *Service) Process(ctx context.Context, msg InboundMessage) error {
	ctx, span := serviceTracer.Start(ctx, "conversation.process")
	defer span.End()
	span.SetAttributes(attribute.String("relay.phone", msg.Phone))

	start := time.Now()
	outcome, err := s.run(ctx, msg)
	if s.metrics != nil {
		s.metrics.ObserveRun(outcome, time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		s.logger.Error("pipeline run failed", "phone", msg.Phone, "error", err)
		// Best effort only: a second failure here is swallowed.
		if sendErr := s.messenger.SendText(ctx, msg.Phone, s.internalErrorReply); sendErr != nil {
			s.logger.Error("failed to relay internal-error notice", "phone", msg.Phone, "error", sendErr)
		}
	}
	return err
}

func (s *Service) run(ctx context.Context, msg InboundMessage) (string, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return RunOutcomeError, fmt.Errorf("conversation: begin session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	user, err := s.store.ResolveUser(ctx, tx, msg.Phone, msg.SenderName)
	if err != nil {
		return RunOutcomeError, err
	}

	if _, err := s.store.AppendMessage(ctx, tx, user.ID, msg.Text, SenderUser); err != nil {
		return RunOutcomeError, err
	}

	// Includes the turn appended above.
	history, err := s.store.RecentHistory(ctx, tx, user.ID, s.contextWindow)
	if err != nil {
		return RunOutcomeError, err
	}

	reply := s.complete(ctx, history)
	if reply == "" {
		// The inbound turn still counts; commit it, then apologize. The
		// apology itself is never recorded as history.
		if err := tx.Commit(ctx); err != nil {
			return RunOutcomeError, fmt.Errorf("conversation: commit session: %w", err)
		}
		committed = true
		if err := s.messenger.SendText(ctx, msg.Phone, s.fallbackReply); err != nil {
			s.logger.Error("failed to relay fallback reply", "phone", msg.Phone, "error", err)
		}
		return RunOutcomeFallback, nil
	}

	if _, err := s.store.AppendMessage(ctx, tx, user.ID, reply, SenderAI); err != nil {
		return RunOutcomeError, err
	}
	if err := tx.Commit(ctx); err != nil {
		return RunOutcomeError, fmt.Errorf("conversation: commit session: %w", err)
	}
	committed = true

	// Relay happens after the session is closed so a send failure cannot
	// disturb what was persisted.
	if err := s.messenger.SendText(ctx, msg.Phone, reply); err != nil {
		s.logger.Error("failed to relay reply", "phone", msg.Phone, "error", err)
	}
	return RunOutcomeReplied, nil
}

// complete maps the history to completion turns and asks the LLM for a reply.
// Every failure mode collapses to "no reply produced"; there are no retries.
func (s *Service) complete(ctx context.Context, history []Message) string {
	start := time.Now()
	resp, err := s.llm.Complete(ctx, LLMRequest{
		System:   s.systemPrompt,
		Messages: historyToTurns(history),
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	if s.metrics != nil {
		s.metrics.ObserveCompletion(status, time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.Error("completion produced no reply", "error", err)
		return ""
	}
	return resp.Text
}

// historyToTurns maps stored messages to completion roles: AI turns become
// assistant, everything else is the user.
func historyToTurns(history []Message) []ChatMessage {
	turns := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		role := ChatRoleUser
		if msg.Sender == SenderAI {
			role = ChatRoleAssistant
		}
		turns = append(turns, ChatMessage{Role: role, Content: msg.Text})
	}
	return turns
}
