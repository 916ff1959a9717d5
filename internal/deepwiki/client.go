package deepwiki

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/alpsla/codequal/internal/adaptive"
)

// Model constants. Repository analysis needs deep reasoning, so the
// default is the high-end model; the environment variable exists for
// running cheaper models against small repositories.
const (
	// DefaultModel is used when no model is configured
	DefaultModel = "claude-sonnet-4-5-20250929"

	// defaultMaxTokens leaves room for full multi-category reports
	defaultMaxTokens = 8192
)

// GetModel returns the analysis model, checking CODEQUAL_MODEL first
func GetModel() string {
	if model := os.Getenv("CODEQUAL_MODEL"); model != "" {
		return model
	}
	return DefaultModel
}

// Config holds client configuration
type Config struct {
	// APIKey authenticates with the service. If empty, reads from the
	// ANTHROPIC_API_KEY environment variable.
	APIKey string

	// Model selects the analysis model. If empty, GetModel() decides.
	Model string

	// MaxTokens caps the response size per call.
	// Default: 8192
	MaxTokens int64

	// RequestsPerMinute paces outgoing calls, counting retries.
	// Default: 10 (0 = unlimited)
	RequestsPerMinute int

	// Retry configures backoff and circuit breaking (uses defaults if
	// not specified).
	Retry RetryConfig
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		MaxTokens:         defaultMaxTokens,
		RequestsPerMinute: 10,
		Retry:             DefaultRetryConfig(),
	}
}

// Client calls the AI analysis service about repositories. It satisfies
// the controller's upstream dependency and carries all the resilience
// machinery (retry, backoff, circuit breaker, rate limit, concurrency
// cap) so callers see one blocking Analyze per request.
type Client struct {
	api            *anthropic.Client
	model          string
	maxTokens      int64
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	limiter        *rate.Limiter
}

// Compile-time check that Client satisfies the controller's dependency
var _ adaptive.Client = (*Client)(nil)

// NewClient creates an analysis service client
//
// Returns an error if no API key is available. All other fields fall back
// to defaults.
func NewClient(cfg Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetModel()
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	api := anthropic.NewClient(option.WithAPIKey(apiKey))

	var circuitBreaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		circuitBreaker = NewCircuitBreaker(
			retry.FailureThreshold,
			retry.SuccessThreshold,
			retry.OpenTimeout,
		)
	}

	var concurrencySem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	slog.Debug("Analysis client initialized",
		"model", model,
		"maxTokens", maxTokens,
		"requestsPerMinute", cfg.RequestsPerMinute,
		"circuitBreaker", retry.CircuitBreakerEnabled,
		"maxConcurrent", retry.MaxConcurrentCalls)

	return &Client{
		api:            &api,
		model:          model,
		maxTokens:      maxTokens,
		retry:          retry,
		circuitBreaker: circuitBreaker,
		concurrencySem: concurrencySem,
		limiter:        limiter,
	}, nil
}

// Analyze sends one analysis request about a repository branch and
// returns the raw response text. The response may be JSON, prose, or a
// mixture; interpreting it is the parser's job, not the client's.
func (c *Client) Analyze(ctx context.Context, repositoryURL, branch, prompt string) (string, error) {
	if repositoryURL == "" {
		return "", fmt.Errorf("repository URL cannot be empty")
	}

	fullPrompt := fmt.Sprintf("Repository: %s\nBranch: %s\n\n%s", repositoryURL, branch, prompt)

	var response *anthropic.Message
	err := c.retryWithBackoff(ctx, "repository-analysis", func(attemptCtx context.Context) error {
		resp, apiErr := c.api.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(fullPrompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", err
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", c.model)
	}

	slog.Debug("Analysis response received",
		"repository", repositoryURL,
		"branch", branch,
		"responseBytes", len(text),
		"inputTokens", response.Usage.InputTokens,
		"outputTokens", response.Usage.OutputTokens)

	return text, nil
}
