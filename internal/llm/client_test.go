package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionServer(t *testing.T, status int, body string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okBody = `{"id":"resp-1","object":"chat.completion","created":1,"model":"sonar",
"choices":[{"index":0,"message":{"role":"assistant","content":"Async lets tasks overlap."},"finish_reason":"stop"}],
"usage":{"prompt_tokens":20,"completion_tokens":50,"total_tokens":70}}`

func TestClientGenerateWithSystemPrompt(t *testing.T) {
	var req capturedRequest
	srv := completionServer(t, http.StatusOK, okBody, &req)
	stats := NewStats(time.Hour)
	c := NewClient("test-key", srv.URL, "sonar", stats, nil)
	defer c.Close()

	text, err := c.Generate(context.Background(), "sonar-pro", "What is async?", "Explain like I'm five.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Async lets tasks overlap." {
		t.Errorf("unexpected text %q", text)
	}
	if req.Model != "sonar-pro" {
		t.Errorf("expected model sonar-pro, got %q", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("expected system then user message, got %+v", req.Messages)
	}
	if req.Messages[1].Content != "What is async?" {
		t.Errorf("unexpected user content %q", req.Messages[1].Content)
	}

	snap := stats.Snapshot()
	if snap.Count != 1 || snap.PromptTokens != 20 || snap.CompletionTokens != 50 {
		t.Errorf("expected one recorded call with usage, got %+v", snap)
	}
}

func TestClientCompleteDefaultsModelAndOmitsSystem(t *testing.T) {
	var req capturedRequest
	srv := completionServer(t, http.StatusOK, okBody, &req)
	c := NewClient("test-key", srv.URL, "sonar", nil, nil)

	out, err := c.Complete(context.Background(), Request{Prompt: "What is async?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Model != "sonar" {
		t.Errorf("expected default model, got %q", req.Model)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("expected single user message, got %+v", req.Messages)
	}
	if out.ID != "resp-1" || out.TotalTokens() != 70 {
		t.Errorf("unexpected completion %+v", out)
	}
}

func TestClientErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`, true},
		{"server error", http.StatusServiceUnavailable, `upstream unavailable`, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad model","type":"invalid_request"}}`, false},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"no key","type":"auth"}}`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := completionServer(t, tc.status, tc.body, nil)
			c := NewClient("test-key", srv.URL, "sonar", nil, nil)
			_, err := c.Generate(context.Background(), "", "prompt", "")
			if err == nil {
				t.Fatal("expected error")
			}
			if IsRetryable(err) != tc.retryable {
				t.Fatalf("expected retryable=%v, got %v (%v)", tc.retryable, IsRetryable(err), err)
			}
			var re *RetryableError
			if tc.retryable && errors.As(err, &re) && re.StatusCode != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, re.StatusCode)
			}
		})
	}
}

func TestClientEmptyChoices(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{"id":"x","choices":[],"usage":{}}`, nil)
	c := NewClient("test-key", srv.URL, "sonar", nil, nil)
	_, err := c.Generate(context.Background(), "", "prompt", "")
	if err == nil || !strings.Contains(err.Error(), "empty response") {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestClientNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient("test-key", url, "sonar", nil, nil)
	_, err := c.Generate(context.Background(), "", "prompt", "")
	if !IsRetryable(err) {
		t.Fatalf("expected retryable network error, got %v", err)
	}
}

func TestClientCanceledContextNotRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient("test-key", srv.URL, "sonar", nil, nil)
	_, err := c.Generate(ctx, "", "prompt", "")
	if err == nil || IsRetryable(err) {
		t.Fatalf("expected non-retryable cancellation, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCompletionBillable(t *testing.T) {
	tests := []struct {
		name string
		c    Completion
		want bool
	}{
		{"fresh", Completion{}, true},
		{"cached", Completion{Cached: true}, false},
		{"shared", Completion{Shared: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Billable(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
