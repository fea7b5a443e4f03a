package update

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const userAgent = "keel-updater/1"

// HTTPStatusError is returned when a remote endpoint answers with a non-2xx status
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// retryable reports whether the status is worth another attempt
func (e *HTTPStatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// newBackoff returns an exponential policy bounded by retries and ctx.
// retries == 0 means a single attempt.
func newBackoff(ctx context.Context, retries int) backoff.BackOff {
	if retries < 0 {
		retries = 0
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// permanentUnlessTransient stops retrying on client errors and bad payloads
func permanentUnlessTransient(err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*HTTPStatusError); ok && !se.retryable() {
		return backoff.Permanent(err)
	}
	return err
}
