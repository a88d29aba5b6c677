package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/askdb/askdb/internal/observability"
)

const maxErrorBodyBytes = 2048

type OpenAIConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxAttempts  int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *slog.Logger
}

// OpenAIClient posts chat completions with bounded, jittered retries on
// transport errors, 429 and 5xx.
type OpenAIClient struct {
	endpoint string
	apiKey   string
	model    string
	http     *retryablehttp.Client
	logger   *slog.Logger
}

type chatCompletionRequest struct {
	Model        string                 `json:"model"`
	Messages     []Message              `json:"messages"`
	Functions    []FunctionDefinition   `json:"functions,omitempty"`
	FunctionCall *FunctionCallDirective `json:"function_call,omitempty"`
}

type attemptsKey struct{}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4-0613"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	waitMin, waitMax := cfg.RetryWaitMin, cfg.RetryWaitMax
	if waitMin <= 0 {
		waitMin = time.Second
	}
	if waitMax < waitMin {
		waitMax = 40 * time.Second
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		logger.Warn("chat API key is not set; model calls will fail authentication")
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = timeout
	rc.Logger = logger
	rc.RetryMax = maxAttempts - 1
	rc.RetryWaitMin = waitMin
	rc.RetryWaitMax = waitMax
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	rc.Backoff = jitteredBackoff
	rc.RequestLogHook = countAttempt
	rc.ErrorHandler = giveUp

	return &OpenAIClient{
		endpoint: baseURL + "/v1/chat/completions",
		apiKey:   apiKey,
		model:    model,
		http:     rc,
		logger:   logger,
	}, nil
}

func (c *OpenAIClient) Model() string {
	return c.model
}

func (c *OpenAIClient) Send(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:        c.model,
		Messages:     req.Messages,
		Functions:    req.Functions,
		FunctionCall: req.FunctionCall,
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	attempts := new(int)
	ctx = context.WithValue(ctx, attemptsKey{}, attempts)
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		observability.ObserveChatRequest(true, time.Since(start))
		var callErr *CallError
		if errors.As(err, &callErr) {
			return ChatResponse{}, callErr
		}
		return ChatResponse{}, &CallError{Attempts: *attempts, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ObserveChatRequest(true, time.Since(start))
		return ChatResponse{}, &CallError{Attempts: *attempts, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observability.ObserveChatRequest(true, time.Since(start))
		return ChatResponse{}, &CallError{
			Attempts:   *attempts,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", truncate(rawBody, maxErrorBodyBytes)),
		}
	}
	observability.ObserveChatRequest(false, time.Since(start))

	var parsed ChatResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return ChatResponse{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	c.logger.DebugContext(ctx, "chat completion received",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("model", c.model),
		slog.Int("attempts", *attempts),
		slog.Int("choices", len(parsed.Choices)),
		slog.String("duration", time.Since(start).String()),
	)
	return parsed, nil
}

// jitteredBackoff waits a uniform random duration in [0, min(max, min*2^attempt)).
func jitteredBackoff(minWait, maxWait time.Duration, attemptNum int, _ *http.Response) time.Duration {
	ceiling := minWait
	for i := 0; i < attemptNum && ceiling < maxWait; i++ {
		ceiling *= 2
	}
	if ceiling > maxWait {
		ceiling = maxWait
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceiling)))
}

func countAttempt(_ retryablehttp.Logger, req *http.Request, _ int) {
	observability.IncrementChatAttempt()
	if attempts, ok := req.Context().Value(attemptsKey{}).(*int); ok {
		*attempts++
	}
}

// giveUp runs once retries are exhausted.
func giveUp(resp *http.Response, err error, numTries int) (*http.Response, error) {
	callErr := &CallError{Attempts: numTries, Err: err}
	if resp != nil {
		callErr.StatusCode = resp.StatusCode
		rawBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		_ = resp.Body.Close()
		if callErr.Err == nil {
			callErr.Err = fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(rawBody)))
		}
	}
	if callErr.Err == nil {
		callErr.Err = errors.New("no response")
	}
	return nil, callErr
}

func truncate(body []byte, limit int) string {
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
