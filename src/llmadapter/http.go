// Package llmadapter implements llmassist.AnalyzerPort against an
// external LLM analysis service: retry/backoff via sethvargo/go-retry,
// and for the streaming variant, a github.com/coder/websocket client.
package llmadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Config carries everything the adapter needs to reach the external
// service, resolved once at startup from environment/config.
type Config struct {
	AdapterURL string // TEKTON_LLM_URL
	Provider   string // TEKTON_LLM_PROVIDER
	Model      string // TEKTON_LLM_MODEL

	// RequestsPerSecond/Burst bound how often any one session may call the
	// analyzer, so a chatty client cannot starve other sessions while the
	// HTTP round trip to the LLM service is in flight.
	RequestsPerSecond float64
	Burst             int

	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
}

// DefaultConfig falls back to "http://localhost:8080" when no adapter URL
// is configured.
func DefaultConfig() Config {
	return Config{
		AdapterURL:        "http://localhost:8080",
		Provider:          "anthropic",
		Model:             "claude-3-haiku",
		RequestsPerSecond: 1,
		Burst:             2,
		MaxRetries:        3,
		BaseDelay:         250 * time.Millisecond,
		Timeout:           20 * time.Second,
	}
}

// errNonRetryable marks an adapter response that a retry cannot fix.
var errNonRetryable = errors.New("llmadapter: non-retryable status")

type analyzeRequest struct {
	SessionID string `json:"session_id"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	Prompt    string `json:"prompt"`
}

type analyzeResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// HTTPAnalyzer is the one-shot, request/response AnalyzerPort
// implementation: one POST per analysis, wrapped in exponential backoff.
type HTTPAnalyzer struct {
	cfg    Config
	client *http.Client

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

func NewHTTPAnalyzer(cfg Config) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiters: make(map[string]*rate.Limiter),
	}
}

func (a *HTTPAnalyzer) AnalyzeCommand(ctx context.Context, sessionID, command string) (string, error) {
	prompt := fmt.Sprintf("Please explain this command concisely: %s", command)
	return a.analyze(ctx, sessionID, prompt)
}

func (a *HTTPAnalyzer) AnalyzeOutput(ctx context.Context, sessionID, command, output string) (string, error) {
	prompt := fmt.Sprintf(
		"The user ran this command:\n%s\n\nIt produced this output:\n%s\n\nExplain what happened concisely.",
		command, output,
	)
	return a.analyze(ctx, sessionID, prompt)
}

func (a *HTTPAnalyzer) analyze(ctx context.Context, sessionID, prompt string) (string, error) {
	if err := a.limiterFor(sessionID).Wait(ctx); err != nil {
		return "", fmt.Errorf("llmadapter: rate limit wait: %w", err)
	}

	reqBody := analyzeRequest{
		SessionID: sessionID,
		Provider:  a.cfg.Provider,
		Model:     a.cfg.Model,
		Prompt:    prompt,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llmadapter: marshal request: %w", err)
	}

	backoff := retry.NewExponential(a.cfg.BaseDelay)
	backoff = retry.WithMaxRetries(uint64(a.cfg.MaxRetries), backoff)

	var result string
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := a.post(ctx, payload)
		if err != nil {
			if errors.Is(err, errNonRetryable) {
				return err
			}
			logrus.Warnf("llmadapter: request for session %s failed, retrying: %v", sessionID, err)
			return retry.RetryableError(err)
		}
		result = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("llmadapter: analyze failed: %w", err)
	}
	return result, nil
}

func (a *HTTPAnalyzer) post(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.AdapterURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("llm adapter returned %d: %s", resp.StatusCode, body)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w %d: %s", errNonRetryable, resp.StatusCode, body)
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("llmadapter: decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("llmadapter: %s", parsed.Error)
	}
	return parsed.Content, nil
}

func (a *HTTPAnalyzer) limiterFor(sessionID string) *rate.Limiter {
	a.limiterMu.Lock()
	defer a.limiterMu.Unlock()

	lim, ok := a.limiters[sessionID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(a.cfg.RequestsPerSecond), a.cfg.Burst)
		a.limiters[sessionID] = lim
	}
	return lim
}
