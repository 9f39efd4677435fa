package collaborator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// Decode and lookup calls happen in the middle of a live chat turn, so the
// retry budget is short: a few quick attempts with sub-second backoffs, then
// give up and let the flow apologize to the user.
const (
	maxAttempts = 3
	baseBackoff = 250 * time.Millisecond
)

// doWithRetry executes the request, retrying network failures, 5xx, and 429.
// buildReq runs once per attempt: a request body can only be sent once.
func doWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := baseBackoff << (attempt - 2)
			backoff += time.Duration(rand.Int63n(int64(backoff) + 1))
			logger.Warn("retrying collaborator request", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if transientStatus(resp.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("gave up after %d attempts: %w", maxAttempts, lastErr)
}

// transientStatus reports whether another attempt could help: server-side
// failures and rate limiting. Client errors (404 for an unknown code, 400 for
// a malformed one) are answers, not outages.
func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}
