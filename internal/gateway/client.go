// Package gateway wraps outbound HTTP calls with connectivity pre-checks,
// retry and a uniform result shape. It knows nothing about records or
// sessions; the sync orchestrator decides what to send, the gateway decides
// how hard to try.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/observability"
)

// TokenProvider supplies the opaque bearer token. Clear is called once on
// a 401 so a stale token is never presented twice.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// Probe answers "does the device believe it has a network right now".
type Probe interface {
	IsConnected(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) IsConnected(ctx context.Context) bool { return f(ctx) }

const (
	defaultRetries        = 3
	defaultRetryDelay     = 2 * time.Second
	defaultAttemptTimeout = 15 * time.Second
)

// Client executes requests against the remote API.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokens        TokenProvider
	probe         Probe
	deviceID      string
	retries       uint64
	retryDelay    time.Duration
	onAuthExpired func()
	log           *observability.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetries overrides the retry count for failed attempts.
func WithRetries(n uint64) Option {
	return func(c *Client) { c.retries = n }
}

// WithRetryDelay overrides the fixed delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithHTTPClient overrides the transport (tests use httptest clients).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithAuthExpiredHandler registers the callback fired after a 401 has
// cleared the stored credentials. The host uses it to route the UI to the
// login flow.
func WithAuthExpiredHandler(fn func()) Option {
	return func(c *Client) { c.onAuthExpired = fn }
}

// NewClient creates a gateway client. deviceID is the per-install
// identifier sent with every request.
func NewClient(baseURL, deviceID string, tokens TokenProvider, probe Probe, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultAttemptTimeout},
		tokens:     tokens,
		probe:      probe,
		deviceID:   deviceID,
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
		log:        observability.GetLogger().WithField("component", "gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request executes one call. The returned error is non-nil only for
// models.ErrAuthExpired; every other failure, including offline, comes
// back inside the Result so callers branch on its shape.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}) (Result, error) {
	if !c.probe.IsConnected(ctx) {
		c.log.Debugf("%s %s skipped: offline", method, path)
		return offlineResult(), nil
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errorResult(0, fmt.Sprintf("encode request: %v", err)), nil
		}
	}

	var result Result
	attempt := 0
	operation := func() error {
		attempt++
		res, err := c.doAttempt(ctx, method, path, payload)
		if err != nil {
			if errors.Is(err, models.ErrAuthExpired) {
				return backoff.Permanent(err)
			}
			c.log.Warnf("%s %s attempt %d failed: %v", method, path, attempt, err)
			return err
		}
		result = res
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), c.retries),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, models.ErrAuthExpired) {
			return errorResult(http.StatusUnauthorized, "authentication expired"), models.ErrAuthExpired
		}
		if isNetworkError(err) {
			return errorResult(0, fmt.Sprintf("network failure after %d attempts: %v", attempt, err)), nil
		}
		return errorResult(0, err.Error()), nil
	}

	return result, nil
}

// doAttempt runs a single HTTP exchange. 5xx responses and transport
// errors are returned as errors so the retry loop sees them; 4xx responses
// are final and come back as Results.
func (c *Client) doAttempt(ctx context.Context, method, path string, payload []byte) (Result, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Result{}, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return Result{}, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-ID", c.deviceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Result{}, c.authExpired(ctx)
	case resp.StatusCode >= 500:
		return Result{}, fmt.Errorf("server error: %s", resp.Status)
	case resp.StatusCode >= 400:
		return errorResult(resp.StatusCode, string(data)), nil
	}

	return okResult(resp.StatusCode, data), nil
}

// authExpired clears stored credentials and fires the logout handler.
// This is the one path allowed to interrupt normal control flow: the
// engine cannot make progress without a valid session.
func (c *Client) authExpired(ctx context.Context) error {
	c.log.Warn("server rejected credentials, clearing stored token")
	if err := c.tokens.Clear(ctx); err != nil {
		c.log.Errorf("failed to clear credentials: %v", err)
	}
	if c.onAuthExpired != nil {
		c.onAuthExpired()
	}
	return models.ErrAuthExpired
}

// Online reports the probe's current answer; the manual sync affordance
// checks this before bothering the orchestrator.
func (c *Client) Online(ctx context.Context) bool {
	return c.probe.IsConnected(ctx)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable")
}

// HTTPProbe checks connectivity with a short HEAD against the API health
// endpoint. The host may substitute an OS-level reachability probe.
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe creates a probe for the given base URL.
func NewHTTPProbe(baseURL string) *HTTPProbe {
	return &HTTPProbe{
		url:    strings.TrimRight(baseURL, "/") + "/health",
		client: &http.Client{Timeout: 3 * time.Second},
	}
}

func (p *HTTPProbe) IsConnected(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
