package erp

import (
	"context"
	"log"
	"time"
)

const (
	// Connection-level budget, deliberately smaller than the queue's own
	// retry budget: a call that fails this often goes back through the
	// queue's backoff instead.
	defaultRetryAttempts = 3
	defaultRetryWait     = 2 * time.Second
)

// RetryClient decorates a Client with bounded retries for transient
// failures and a single transparent re-authentication on session expiry.
// Validation rejections pass through untouched.
type RetryClient struct {
	inner       Client
	maxAttempts int
	wait        time.Duration
}

func NewRetryClient(inner Client) *RetryClient {
	return NewRetryClientWith(inner, defaultRetryAttempts, defaultRetryWait)
}

// NewRetryClientWith returns a RetryClient with explicit bounds.
func NewRetryClientWith(inner Client, maxAttempts int, wait time.Duration) *RetryClient {
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryAttempts
	}
	return &RetryClient{
		inner:       inner,
		maxAttempts: maxAttempts,
		wait:        wait,
	}
}

func (r *RetryClient) Authenticate(ctx context.Context) error {
	return r.inner.Authenticate(ctx)
}

func (r *RetryClient) SessionUID() int {
	return r.inner.SessionUID()
}

func (r *RetryClient) ExecuteKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	var lastErr error
	reauthed := false

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		result, err := r.inner.ExecuteKw(ctx, model, method, args, kwargs)
		if err == nil {
			return result, nil
		}
		lastErr = err

		switch {
		case IsAuthExpired(err) && !reauthed:
			log.Printf("Session expired calling %s.%s, re-authenticating", model, method)
			if authErr := r.inner.Authenticate(ctx); authErr != nil {
				return nil, authErr
			}
			reauthed = true
			// Replay the call without consuming a transient attempt.
			attempt--
		case IsTransient(err):
			log.Printf("Transient error calling %s.%s (attempt %d/%d): %v",
				model, method, attempt+1, r.maxAttempts, err)
			if attempt+1 < r.maxAttempts {
				select {
				case <-ctx.Done():
					return nil, &TransientError{Err: ctx.Err()}
				case <-time.After(r.wait * time.Duration(attempt+1)):
				}
			}
		default:
			return nil, err
		}
	}

	return nil, lastErr
}
