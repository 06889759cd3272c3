package proxy

import (
	"context"
	"time"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

// callWithRetry retries only transport/network failures, never a Timeout,
// never a RemoteError. Backoff is fixed linear 100ms × attempt number.
func (p *Proxy) callWithRetry(ctx context.Context, args map[string]any, childSpanID string) (any, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		result, err := p.callOnce(ctx, args, childSpanID)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == p.maxAttempts {
			return nil, err
		}
		select {
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// isRetryable reports whether err is a transport/network failure: either no
// HTTP status was ever received, or the round trip completed with a non-2xx
// status. A Timeout or a RemoteError is never retried.
func isRetryable(err error) bool {
	_, ok := err.(*mesh.TransportError)
	return ok
}
