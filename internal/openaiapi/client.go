// Package openaiapi holds what the embeddings and chat adapters share when
// talking to OpenAI-compatible endpoints: client construction from config and
// the retry policy.
package openaiapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"

	"ragchat/internal/domain"
)

// Config locates an OpenAI-compatible API.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Timeout   time.Duration
}

// NewClient reads the API key from the environment variable named in cfg.
// An unset or empty variable yields an error wrapping domain.ErrMissingCredential.
func NewClient(cfg Config) (*openai.Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set", domain.ErrMissingCredential, cfg.APIKeyEnv)
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	config := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: t}
	return openai.NewClientWithConfig(config), nil
}

// Backoff returns how long to wait before the given retry attempt.
type Backoff func(attempt int) time.Duration

// RetryDelay is exponential backoff from 200ms capped at 5s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 8 {
		return 5 * time.Second
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// Retryable reports whether err is worth another attempt. Rate limiting and
// server errors are retried, as are transport failures that never produced a
// response. Anything else, such as a body that fails to decode, is final.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Do calls fn until it succeeds, fails with a non-retryable error, or
// maxRetries retries are exhausted. Waiting honours ctx.
func Do(ctx context.Context, maxRetries int, backoff Backoff, fn func() error) error {
	if backoff == nil {
		backoff = RetryDelay
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt >= maxRetries || !Retryable(err) {
			return err
		}
		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
