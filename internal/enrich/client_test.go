package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAIClientComplete(t *testing.T) {
	t.Parallel()

	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"city\":null}  "}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "", "sk-test", time.Second)
	if !client.Configured() {
		t.Fatalf("expected client with api key to be configured")
	}
	out, err := client.Complete(context.Background(), ChatRequest{System: "sys", User: "hello", JSON: true})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != `{"city":null}` {
		t.Fatalf("unexpected content %q", out)
	}
	if got.Model != DefaultModel {
		t.Fatalf("expected default model, got %q", got.Model)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("expected json response format, got %+v", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestOpenAIClientSurfacesErrorMessage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL+"/v1", "gpt-test", "sk-test", time.Second)
	_, err := client.Complete(context.Background(), ChatRequest{User: "hello"})
	if err == nil || !strings.Contains(err.Error(), "status 429: rate limited") {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestOpenAIClientWithoutKeyIsUnconfigured(t *testing.T) {
	t.Parallel()

	client := NewOpenAIClient("", "", "  ", 0)
	if client.Configured() {
		t.Fatalf("expected client without api key to be unconfigured")
	}
	if _, err := client.Complete(context.Background(), ChatRequest{User: "hello"}); err == nil {
		t.Fatalf("expected error from unconfigured client")
	}
}

func TestChatCompletionsURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                                   "https://api.openai.com/v1/chat/completions",
		"api.example.com":                    "https://api.example.com/v1/chat/completions",
		"http://localhost:8080/v1/":          "http://localhost:8080/v1/chat/completions",
		"http://gateway/openai":              "http://gateway/openai/v1/chat/completions",
		"https://h.example/chat/completions": "https://h.example/chat/completions",
	}
	for in, want := range cases {
		if got := chatCompletionsURL(normalizeEndpoint(in)); got != want {
			t.Fatalf("chatCompletionsURL(%q) = %q, want %q", in, got, want)
		}
	}
}
