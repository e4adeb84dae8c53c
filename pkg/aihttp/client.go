// Package aihttp holds the request/response plumbing shared by the embedding
// and completion providers.
package aihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrProvider matches every *ProviderError under errors.Is.
var ErrProvider = errors.New("model provider failure")

// DefaultTimeout bounds a provider round trip when the caller sets no deadline.
const DefaultTimeout = 15 * time.Second

// ProviderError is returned for any failed call to a remote model provider:
// transport failures, timeouts, non-2xx statuses and undecodable bodies.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 300))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: request failed", e.Provider)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// Transient reports whether one more attempt could reasonably succeed.
func (e *ProviderError) Transient() bool {
	if e.StatusCode != 0 {
		return isRetryableHTTP(e.StatusCode)
	}
	if e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsTransient unwraps err looking for a transient ProviderError.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}

func isRetryableHTTP(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// Client posts JSON to a provider endpoint and decodes the JSON reply.
type Client struct {
	Provider   string
	HTTPClient *http.Client
	Headers    map[string]string
}

func NewClient(provider string, timeout time.Duration, headers map[string]string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		Provider:   provider,
		HTTPClient: &http.Client{Timeout: timeout},
		Headers:    headers,
	}
}

func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &ProviderError{Provider: c.Provider, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &ProviderError{Provider: c.Provider, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// The context error is more precise than the transport's wrapping of it.
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &ProviderError{Provider: c.Provider, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProviderError{Provider: c.Provider, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Provider: c.Provider, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProviderError{Provider: c.Provider, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
