// Package transport issues HTTP requests with retry/backoff on transient
// failures. It is stateless beyond the shared connection pool and the
// credential provider supplied by the caller.
package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/bookbinder/internal/auth"
	"git.home.luguber.info/inful/bookbinder/internal/errors"
	"git.home.luguber.info/inful/bookbinder/internal/retry"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.212 Safari/537.36"

// Client performs credentialed GETs with classification and retry.
type Client struct {
	httpClient  *http.Client
	policy      retry.Policy
	credentials auth.CredentialProvider
}

// NewClient creates a transport client. A nil httpClient uses a default with
// the given request timeout.
func NewClient(httpClient *http.Client, policy retry.Policy, credentials auth.CredentialProvider, requestTimeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	if credentials == nil {
		credentials = auth.None{}
	}
	return &Client{
		httpClient:  httpClient,
		policy:      policy,
		credentials: credentials,
	}
}

// Fetch retrieves url, retrying transient failures (connection errors, 429,
// 5xx) with exponential backoff and jitter up to the policy's attempt budget.
// Non-transient failures (401/403/404, malformed payloads) propagate
// immediately without retry.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.policy.Delay(attempt - 1)
			slog.Debug("Retrying request", "url", url, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), errors.CategoryNetwork, errors.SeverityError, "request canceled").
					WithContext("url", url)
			case <-time.After(delay):
			}
		}

		body, err := c.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		if !errors.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, errors.RetriesExhausted(url, c.policy.MaxAttempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, errors.MalformedResponse(url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	if err := c.credentials.Apply(req); err != nil {
		// Credential provider signaled an invalid credential: surface as a
		// non-retryable auth failure, no backoff.
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.CategoryNetwork, errors.SeverityError, "request canceled").
				WithContext("url", url)
		}
		return nil, errors.NetworkError(url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyStatus(url, resp.StatusCode); err != nil {
		// Drain a little for connection reuse diagnostics parity.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NetworkError(url, err)
	}
	return body, nil
}

// classifyStatus maps an HTTP status to the error taxonomy; nil means usable.
func classifyStatus(url string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.AuthError(url, nil).WithContext("status", status)
	case status == http.StatusNotFound:
		return errors.NotFoundError(url)
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.ServerError(url, status)
	default:
		return errors.MalformedResponse(url, nil).WithContext("status", status)
	}
}
