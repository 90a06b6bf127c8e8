package providers

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

// RetryPolicy configures FetchWithRetry.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single delay. Zero means no cap.
	MaxDelay time.Duration

	// Jitter returns the random addition for a delay computed from base.
	// Defaults to a uniform value in [0, base).
	Jitter func(base time.Duration) time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer select.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is invoked before each retry sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy returns three retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.Jitter == nil {
		p.Jitter = func(base time.Duration) time.Duration {
			if base <= 0 {
				return 0
			}
			return time.Duration(rand.Int64N(int64(base)))
		}
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// DelayForAttempt returns BaseDelay*2^attempt plus jitter, capped by
// MaxDelay. attempt is zero-based.
func (p RetryPolicy) DelayForAttempt(attempt int) time.Duration {
	p = p.normalized()
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
		delay *= 2
	}
	delay += p.Jitter(p.BaseDelay)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// FetchWithRetry sends the request produced by build, retrying rate limits,
// network errors and non-2xx statuses with exponential backoff. build is
// called once per attempt because request bodies are single-use.
//
// Cancellation of ctx returns an error matching ErrCanceled at once. A spent
// budget returns a *TransportError for the last failure.
func FetchWithRetry(ctx context.Context, client *http.Client, build func(context.Context) (*http.Request, error), policy RetryPolicy) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	p := policy.normalized()
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, canceled(err)
		}
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("providers: build request: %w", err)
		}

		var failure *TransportError
		resp, err := client.Do(req)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, canceled(ctxErr)
			}
			failure = &TransportError{Message: err.Error(), Err: err}
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		default:
			failure = statusError(resp)
		}
		failure.Attempts = attempt + 1

		if attempt >= p.MaxRetries {
			return nil, failure
		}
		delay := p.DelayForAttempt(attempt)
		if after := retryAfter(resp); after > delay {
			delay = after
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, failure)
		}
		if err := p.Sleep(ctx, delay); err != nil {
			return nil, canceled(err)
		}
	}
}

// retryAfter parses a Retry-After header given in seconds on a 429.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return 0
	}
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

func canceled(cause error) error {
	return model.Canceled(cause)
}
