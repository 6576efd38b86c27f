// Package llm talks to the chat-completions API that writes chapter text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dgallion1/studyguide/internal/logger"
	"github.com/dgallion1/studyguide/internal/metrics"
)

var tracer = otel.Tracer("studyguide/llm")

// Request is one chat completion call.
type Request struct {
	Model        string
	Prompt       string
	SystemPrompt string
	MaxTokens    int
}

// Completion is the text a model returned plus its reported usage.
type Completion struct {
	ID               string `json:"id"`
	Model            string `json:"model"`
	Text             string `json:"text"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	Cached           bool   `json:"-"`
	// Shared marks a completion another in-flight caller already received.
	Shared           bool   `json:"-"`
}

// TotalTokens is the billed token count.
func (c Completion) TotalTokens() int {
	return c.PromptTokens + c.CompletionTokens
}

// Billable reports whether this caller paid for the completion's tokens.
func (c Completion) Billable() bool {
	return !c.Cached && !c.Shared
}

// Generator produces completions. Client, Retrier and the response cache
// all implement it so they can be stacked.
type Generator interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	api          *openai.Client
	defaultModel string
	stats        *Stats
	log          *logger.Logger
	httpClient   *http.Client
}

func NewClient(apiKey, baseURL, model string, stats *Stats, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	httpClient := &http.Client{Timeout: 120 * time.Second}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = httpClient
	return &Client{
		api:          openai.NewClientWithConfig(cfg),
		defaultModel: model,
		stats:        stats,
		log:          log,
		httpClient:   httpClient,
	}
}

// Generate returns only the text of a completion.
func (c *Client) Generate(ctx context.Context, model, prompt, systemPrompt string) (string, error) {
	out, err := c.Complete(ctx, Request{Model: model, Prompt: prompt, SystemPrompt: systemPrompt})
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// Complete sends one chat completion request. Rate limits, server errors
// and network failures come back as *RetryableError.
func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	ctx, span := tracer.Start(ctx, "llm.Complete", trace.WithAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.prompt_length", len(req.Prompt)),
	))
	defer span.End()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	c.log.Debug("sending chat completion",
		"model", model,
		"prompt_length", len(req.Prompt),
		"has_system_prompt", req.SystemPrompt != "",
	)

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	elapsed := time.Since(start)
	if c.stats != nil {
		c.stats.Record(elapsed.Milliseconds())
	}

	if err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		metrics.GenerationDuration.WithLabelValues(model, statusLabel(err)).Observe(elapsed.Seconds())
		return Completion{}, err
	}
	metrics.GenerationDuration.WithLabelValues(model, "ok").Observe(elapsed.Seconds())

	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("empty response from %s", model)
	}

	out := Completion{
		ID:               resp.ID,
		Model:            model,
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if c.stats != nil {
		c.stats.RecordTokens(out.PromptTokens, out.CompletionTokens)
	}
	metrics.GenerationTokens.WithLabelValues(model, "prompt").Add(float64(out.PromptTokens))
	metrics.GenerationTokens.WithLabelValues(model, "completion").Add(float64(out.CompletionTokens))
	span.SetAttributes(
		attribute.String("llm.response_id", out.ID),
		attribute.Int("llm.total_tokens", out.TotalTokens()),
	)

	c.log.Info("chat completion received",
		"model", model,
		"response_id", out.ID,
		"prompt_tokens", out.PromptTokens,
		"completion_tokens", out.CompletionTokens,
		"duration_ms", elapsed.Milliseconds(),
	)
	return out, nil
}

// classify maps client errors onto RetryableError where a retry may help.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if transientStatus(apiErr.HTTPStatusCode) {
			return &RetryableError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
		}
		return fmt.Errorf("chat completion status %d: %w", apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if transientStatus(reqErr.HTTPStatusCode) {
			return &RetryableError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
		}
		return fmt.Errorf("chat completion status %d: %w", reqErr.HTTPStatusCode, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &RetryableError{Message: netErr.Error(), Err: err}
	}
	return fmt.Errorf("chat completion: %w", err)
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func statusLabel(err error) string {
	var re *RetryableError
	if errors.As(err, &re) && re.StatusCode != 0 {
		return strconv.Itoa(re.StatusCode)
	}
	return "error"
}

// RetryableError indicates a transient failure that can be retried.
// StatusCode is zero for network errors.
type RetryableError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

func (e *RetryableError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
