package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/interfaces"
	"github.com/m3-org/ainews/pkg/utils/logging"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	DefaultMaxAttempts = 8
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 60 * time.Second
)

// Config controls how many times and how long to wait between attempts.
// The wait before retry n (0-based) is 2^n seconds plus BaseDelay, capped at MaxDelay.
// A delay suggested by the backend replaces the exponential part when present.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleep waits for d or until ctx is done. nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the retry policy used for text generation calls
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Backoff returns the wait before retrying after the given 0-based attempt
func (c Config) Backoff(attempt int, suggested time.Duration) time.Duration {
	var d time.Duration
	if suggested > 0 {
		d = suggested + c.BaseDelay
	} else {
		if attempt > 30 {
			attempt = 30
		}
		d = time.Duration(1<<attempt)*time.Second + c.BaseDelay
	}

	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

func (c Config) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls fn until it succeeds, fails with a non-transient error, or attempts run out.
// The last error is returned wrapped.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, goerr.Wrap(err, "retry aborted", goerr.V("attempt", attempt))
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, goerr.Wrap(err, "non-retryable error", goerr.V("attempt", attempt+1))
		}
		if attempt == attempts-1 {
			break
		}

		backoff := cfg.Backoff(attempt, SuggestedDelay(err))
		logging.From(ctx).Warn("retrying after transient error",
			"attempt", attempt+1,
			"max_attempts", attempts,
			"backoff", backoff,
			"error", err,
		)

		if err := cfg.sleep(ctx, backoff); err != nil {
			return zero, goerr.Wrap(err, "retry aborted while waiting", goerr.V("attempt", attempt+1))
		}
	}

	return zero, goerr.Wrap(lastErr, "retry attempts exhausted", goerr.V("attempts", attempts))
}

// Generator decorates a TextGenerator with retries
type Generator struct {
	next interfaces.TextGenerator
	cfg  Config
}

// NewGenerator wraps next so that every Generate call is retried according to cfg
func NewGenerator(next interfaces.TextGenerator, cfg Config) *Generator {
	return &Generator{next: next, cfg: cfg}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	return Do(ctx, g.cfg, func(ctx context.Context) (string, error) {
		return g.next.Generate(ctx, prompt)
	})
}

// IsTransient reports whether err is worth retrying: HTTP 408, 429 and 5xx from the text
// generation backends, gRPC statuses describing an unavailable or overloaded service, deadline
// expiry of an attempt, and network errors. Everything else, including cancellation and
// validation errors, is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return transientStatus(geminiErr.Code)
	}

	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) {
		return transientStatus(claudeErr.StatusCode)
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.OK {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		default:
			return false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return rateLimitRegex.MatchString(err.Error())
}

// rateLimitRegex matches rate limit errors that lost their typed status on the way
var rateLimitRegex = regexp.MustCompile(`(?i)RESOURCE_EXHAUSTED|rate limit|quota exceeded`)

func transientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay: Xs" hints in backend errors
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// SuggestedDelay extracts the backend's requested wait from err, 0 if none
func SuggestedDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) && claudeErr.Response != nil {
		if v := claudeErr.Response.Header.Get("Retry-After"); v != "" {
			if sec, parseErr := strconv.ParseFloat(strings.TrimSpace(v), 64); parseErr == nil && sec > 0 {
				return time.Duration(sec * float64(time.Second))
			}
		}
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}
	sec, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}
