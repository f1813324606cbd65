package conversation

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

	"github.com/zapia-ai/relay/pkg/logging"
)

// OpenRouterClient implements LLMClient against an OpenRouter-compatible
// chat-completions endpoint.
type OpenRouterClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

const defaultMaxTokens = 1000

// NewOpenRouterClient builds a client with a bounded request timeout.
func NewOpenRouterClient(apiKey, model, baseURL string, timeout time.Duration, logger *logging.Logger) *OpenRouterClient {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenRouterClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

var _ LLMClient = (*OpenRouterClient)(nil)

type openRouterRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type openRouterChoice struct {
	Message ChatMessage `json:"message"`
}

type openRouterResponse struct {
	Choices []openRouterChoice `json:"choices"`
}

// Complete sends the system instruction plus the supplied history and returns
// the first choice. Any transport or shape failure comes back as an error; the
// caller decides what "no reply" means. There are no retries.
func (c *OpenRouterClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if c.apiKey == "" {
		return LLMResponse{}, errors.New("conversation: openrouter api key missing")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]ChatMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, ChatMessage{Role: ChatRoleSystem, Content: req.System})
	}
	messages = append(messages, req.Messages...)
	if len(messages) == 0 {
		return LLMResponse{}, errors.New("conversation: completion requires at least one message")
	}

	body, err := json.Marshal(openRouterRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: encode completion request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: build completion request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: completion request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: read completion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("completion endpoint returned error",
			"status", resp.StatusCode,
			"body", string(respBody),
			"model", model,
		)
		return LLMResponse{}, fmt.Errorf("conversation: completion endpoint status %d", resp.StatusCode)
	}

	var parsed openRouterResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		c.logger.Warn("completion endpoint returned no choices", "model", model)
		return LLMResponse{}, errors.New("conversation: completion returned no choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return LLMResponse{}, errors.New("conversation: completion returned empty content")
	}
	return LLMResponse{Text: text}, nil
}
