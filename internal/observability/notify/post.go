package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultPostTimeout = 5 * time.Second

// retryBackoff is the base delay between attempts; attempt n waits n*retryBackoff.
var retryBackoff = 200 * time.Millisecond

// StatusError reports a non-2xx answer from an alert endpoint.
type StatusError struct {
	Target string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s responded %d", e.Target, e.Code)
	}
	return fmt.Sprintf("%s responded %d: %s", e.Target, e.Code, e.Body)
}

// Temporary reports whether a retry could succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Poster sends JSON documents to a single HTTP endpoint with bounded retries.
type Poster struct {
	target  string
	url     string
	retries int
	client  *http.Client
}

// NewPoster builds a Poster. target names the endpoint in errors, e.g. "slack webhook".
// A nil hc gets a client with timeout, or five seconds when timeout is unset.
func NewPoster(target, url string, retries int, timeout time.Duration, hc *http.Client) *Poster {
	if hc == nil {
		if timeout <= 0 {
			timeout = defaultPostTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Poster{target: target, url: url, retries: max(retries, 0), client: hc}
}

// PostJSON encodes v and posts it, retrying transport failures and
// temporary status codes with linear backoff.
func (p *Poster) PostJSON(ctx context.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", p.target, err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(time.Duration(attempt) * retryBackoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return errors.Join(lastErr, ctx.Err())
			case <-t.C:
			}
		}
		lastErr = p.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && !se.Temporary() {
			return lastErr
		}
	}
	return lastErr
}

func (p *Poster) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", p.target, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", p.target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Target: p.target, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
