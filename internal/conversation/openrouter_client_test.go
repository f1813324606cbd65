package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zapia-ai/relay/pkg/logging"
)

func TestOpenRouterClientComplete(t *testing.T) {
	var captured openRouterRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-or-test" {
			t.Errorf("expected bearer credential, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(openRouterResponse{
			Choices: []openRouterChoice{
				{Message: ChatMessage{Role: ChatRoleAssistant, Content: "  Olá!  "}},
			},
		})
	}))
	defer server.Close()

	client := NewOpenRouterClient("sk-or-test", "google/gemini-flash-1.5", server.URL, time.Second, logging.Default())
	resp, err := client.Complete(context.Background(), LLMRequest{
		System: "instrução",
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "oi"},
		},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "Olá!" {
		t.Fatalf("expected trimmed reply, got %q", resp.Text)
	}

	if captured.Model != "google/gemini-flash-1.5" {
		t.Fatalf("expected configured model, got %s", captured.Model)
	}
	if captured.MaxTokens != defaultMaxTokens {
		t.Fatalf("expected default max tokens, got %d", captured.MaxTokens)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("expected system + user turns, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != ChatRoleSystem || captured.Messages[0].Content != "instrução" {
		t.Fatalf("expected system turn first, got %+v", captured.Messages[0])
	}
}

func TestOpenRouterClientNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(openRouterResponse{})
	}))
	defer server.Close()

	client := NewOpenRouterClient("sk-or-test", "model", server.URL, time.Second, logging.Default())
	if _, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenRouterClientHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewOpenRouterClient("sk-or-test", "model", server.URL, time.Second, logging.Default())
	if _, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}}); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestOpenRouterClientNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse connections

	client := NewOpenRouterClient("sk-or-test", "model", server.URL, time.Second, logging.Default())
	if _, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}}); err == nil {
		t.Fatal("expected network error")
	}
}

func TestOpenRouterClientRequiresMessages(t *testing.T) {
	client := NewOpenRouterClient("sk-or-test", "model", "http://127.0.0.1:0", time.Second, logging.Default())
	if _, err := client.Complete(context.Background(), LLMRequest{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

func TestOpenRouterClientRequiresCredential(t *testing.T) {
	client := NewOpenRouterClient("", "model", "http://127.0.0.1:0", time.Second, logging.Default())
	if _, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}}); err == nil {
		t.Fatal("expected error for missing credential")
	}
}
