package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAICompatModel_GenerateText(t *testing.T) {
	var gotPath string
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "say hi" {
			t.Errorf("unexpected request messages: %+v", req.Messages)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "hi"}}},
		})
	}))
	defer server.Close()

	m := NewOpenAICompatModel(server.URL, "secret", "test-model", 128)
	out, err := m.GenerateText(context.Background(), "say hi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "hi" {
		t.Fatalf("unexpected output %q", out)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestOpenAICompatModel_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	m := NewOpenAICompatModel(server.URL, "", "test-model", 0)
	if _, err := m.GenerateDecision(context.Background(), "prompt"); err == nil {
		t.Fatalf("expected error for non-200 status")
	}
}

func TestOpenAICompatModel_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	m := NewOpenAICompatModel(server.URL, "", "test-model", 0)
	if _, err := m.GenerateText(context.Background(), "prompt"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
