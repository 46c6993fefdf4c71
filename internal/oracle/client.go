package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/crudcrawl/internal/model"
)

// Call names passed to latency observers.
const (
	CallClassify   = "classify"
	CallVerify     = "verify"
	CallDependency = "dependency"
)

// DefaultMaxRetries is the number of retries after the first attempt.
const DefaultMaxRetries = 5

// maxResponseSize bounds the body read from the oracle.
const maxResponseSize = 4 * 1024 * 1024

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	baseURL    string
	model      string
	apiKey     string
	purpose    string
	http       *http.Client
	backoff    Backoff
	maxRetries int
	logger     *slog.Logger
	observe    func(call string, elapsed time.Duration)

	// verified caches post-execution answers by page state.
	mu       sync.Mutex
	verified map[string]model.ResourceOperation
}

// ClientOption configures a ChatClient.
type ClientOption func(*ChatClient)

// WithHTTPClient sets the HTTP client. The default has a 180s timeout.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cc *ChatClient) {
		cc.http = c
	}
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) ClientOption {
	return func(cc *ChatClient) {
		cc.apiKey = key
	}
}

// WithPurpose describes the target application to the model.
func WithPurpose(purpose string) ClientOption {
	return func(cc *ChatClient) {
		cc.purpose = purpose
	}
}

// WithBackoff sets the retry backoff.
func WithBackoff(b Backoff) ClientOption {
	return func(cc *ChatClient) {
		cc.backoff = b
	}
}

// WithMaxRetries sets how often a transient failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(cc *ChatClient) {
		cc.maxRetries = n
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(cc *ChatClient) {
		cc.logger = logger
	}
}

// WithLatencyObserver registers a callback receiving the wall-clock time of
// every oracle call, retries included.
func WithLatencyObserver(fn func(call string, elapsed time.Duration)) ClientOption {
	return func(cc *ChatClient) {
		cc.observe = fn
	}
}

// NewChatClient creates a client for the endpoint at baseURL (for example
// "https://api.openai.com/v1") using modelName.
func NewChatClient(baseURL, modelName string, opts ...ClientOption) *ChatClient {
	c := &ChatClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      modelName,
		http:       &http.Client{Timeout: 180 * time.Second},
		backoff:    DefaultBackoff(),
		maxRetries: DefaultMaxRetries,
		verified:   make(map[string]model.ResourceOperation),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"` //nolint:tagliatelle // wire format
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// operationAnswer is the JSON the model returns for classify and verify.
type operationAnswer struct {
	Resource  string `json:"resource"`
	Operation string `json:"operation"`
	CRUDType  string `json:"CRUD_type"` //nolint:tagliatelle // wire format
	Success   *bool  `json:"success"`
}

func (a operationAnswer) toModel() model.ResourceOperation {
	return model.ResourceOperation{
		Resource:  a.Resource,
		Operation: a.Operation,
		CRUDType:  a.CRUDType,
		Success:   a.Success,
	}
}

// Classify implements Classifier.
func (c *ChatClient) Classify(ctx context.Context, a Action) (model.ResourceOperation, error) {
	var ans operationAnswer
	system := fmt.Sprintf(classifySystemPrompt, c.purpose)
	if err := c.complete(ctx, CallClassify, system, classifyPrompt(a), &ans); err != nil {
		return model.ResourceOperation{}, err
	}
	return ans.toModel(), nil
}

// Verify implements Verifier. Answers are cached by the page state so a
// repeated outcome is not asked twice.
func (c *ChatClient) Verify(ctx context.Context, e Execution) (model.ResourceOperation, error) {
	key := Fingerprint(e.Action.fingerprint(), e.Before, e.After, strconv.Itoa(e.StatusCode))
	c.mu.Lock()
	cached, ok := c.verified[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var ans operationAnswer
	system := fmt.Sprintf(verifySystemPrompt, c.purpose)
	if err := c.complete(ctx, CallVerify, system, verifyPrompt(e), &ans); err != nil {
		return model.ResourceOperation{}, err
	}
	op := ans.toModel()

	c.mu.Lock()
	c.verified[key] = op
	c.mu.Unlock()
	return op, nil
}

// InferDependency implements DependencyInferer.
func (c *ChatClient) InferDependency(ctx context.Context, parent string, parentContext []string, child string, childContext []string) (bool, error) {
	var ans map[string]any
	prompt := dependencyPrompt(parent, parentContext, child, childContext)
	if err := c.complete(ctx, CallDependency, dependencySystemPrompt, prompt, &ans); err != nil {
		return false, err
	}
	v, ok := ans["parent-child relationship"].(bool)
	if !ok {
		return false, fmt.Errorf("%w: missing parent-child relationship", ErrInvalidResponse)
	}
	return v, nil
}

// complete sends one chat completion and decodes the JSON content of the
// first choice into out. Network errors, HTTP 429 and 5xx are retried.
func (c *ChatClient) complete(ctx context.Context, call, system, user string, out any) error {
	start := time.Now()
	if c.observe != nil {
		defer func() { c.observe(call, time.Since(start)) }()
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff.Next(attempt - 1)
			if ra, ok := lastErr.(*retryAfterError); ok && ra.wait > wait {
				wait = ra.wait
			}
			c.logger.Warn("retrying oracle call",
				"call", call,
				"attempt", attempt,
				"wait", wait,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		content, err := c.post(ctx, body)
		if err == nil {
			if err := json.Unmarshal([]byte(content), out); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrOracleUnavailable, lastErr)
}

// retryAfterError carries the server's requested wait on HTTP 429.
type retryAfterError struct {
	status int
	wait   time.Duration
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("oracle returned status %d", e.status)
}

// transientError marks network and server errors.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var ra *retryAfterError
	var te *transientError
	return errors.As(err, &ra) || errors.As(err, &te)
}

func (c *ChatClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &transientError{err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &retryAfterError{status: resp.StatusCode, wait: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return "", &transientError{err: fmt.Errorf("oracle returned status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: status %d", ErrRequestRejected, resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&cr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	content := strings.TrimSpace(cr.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content), nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
