// Package gsc is a minimal Google Search Console API client covering URL
// inspection and search analytics queries.
package gsc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/seo-monitor/internal/resilience"
)

const (
	defaultInspectBaseURL = "https://searchconsole.googleapis.com/v1"
	defaultWebmastersURL  = "https://www.googleapis.com/webmasters/v3"
	defaultTokenURL       = "https://oauth2.googleapis.com/token"
	maxErrorBodyInMessage = 512
	defaultRequestTimeout = 30 * time.Second
)

// ErrRateLimited is returned (wrapped in a resilience.QuotaError) when the
// API refuses a call because the per-site quota is exhausted.
var ErrRateLimited = eris.New("gsc: rate limited")

// Client performs Search Console API operations.
type Client interface {
	InspectURL(ctx context.Context, req InspectRequest) (*InspectionResult, error)
	QuerySearchAnalytics(ctx context.Context, site string, q SearchAnalyticsQuery) (*SearchAnalyticsResponse, error)
}

// Credentials authenticate API calls. When AccessToken is empty the client
// exchanges RefreshToken for one on first use.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
}

// Option configures the client.
type Option func(*httpClient)

// WithInspectBaseURL overrides the URL inspection API base URL.
func WithInspectBaseURL(url string) Option {
	return func(c *httpClient) {
		c.inspectURL = strings.TrimRight(url, "/")
	}
}

// WithWebmastersBaseURL overrides the search analytics API base URL.
func WithWebmastersBaseURL(url string) Option {
	return func(c *httpClient) {
		c.webmastersURL = strings.TrimRight(url, "/")
	}
}

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(url string) Option {
	return func(c *httpClient) {
		c.tokens.tokenURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
		c.tokens.http = hc
	}
}

// WithRetry sets the retry policy applied to transient failures of a search
// analytics query. URL inspections are always a single attempt.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	inspectURL    string
	webmastersURL string
	http          *http.Client
	tokens        *tokenSource
	retry         resilience.RetryConfig
}

// NewClient creates a Search Console API client.
func NewClient(creds Credentials, opts ...Option) Client {
	hc := &http.Client{Timeout: defaultRequestTimeout}
	c := &httpClient{
		inspectURL:    defaultInspectBaseURL,
		webmastersURL: defaultWebmastersURL,
		http:          hc,
		tokens:        newTokenSource(creds, defaultTokenURL, hc),
		retry:         resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("gsc", "request")
	}
	return c
}

// postJSON sends body to url once and decodes the JSON response into out.
func (c *httpClient) postJSON(ctx context.Context, url string, body, out any) error {
	return c.post(ctx, url, body, out, c.send)
}

// postJSONRetry is postJSON with transient failures retried according to
// the client's retry policy.
func (c *httpClient) postJSONRetry(ctx context.Context, url string, body, out any) error {
	return c.post(ctx, url, body, out, func(ctx context.Context, url string, payload []byte) ([]byte, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
			return c.send(ctx, url, payload)
		})
	})
}

type sendFunc func(ctx context.Context, url string, payload []byte) ([]byte, error)

func (c *httpClient) post(ctx context.Context, url string, body, out any, send sendFunc) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "gsc: marshal request")
	}

	respBody, err := send(ctx, url, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "gsc: unmarshal response")
	}
	return nil
}

func (c *httpClient) send(ctx context.Context, url string, payload []byte) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "gsc: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "gsc: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "gsc: read response")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, respBody)
	}
	return respBody, nil
}

// statusError maps a non-200 response onto the resilience error taxonomy:
// quota refusals become QuotaError, 5xx become TransientError.
func statusError(resp *http.Response, body []byte) error {
	msg := string(body)
	if len(msg) > maxErrorBodyInMessage {
		msg = msg[:maxErrorBodyInMessage]
	}

	if isQuotaResponse(resp.StatusCode, body) {
		return resilience.NewQuotaError(
			eris.Wrapf(ErrRateLimited, "status %d: %s", resp.StatusCode, msg),
			retryAfter(resp.Header.Get("Retry-After")),
		)
	}

	err := eris.Errorf("gsc: unexpected status %d: %s", resp.StatusCode, msg)
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(err, resp.StatusCode)
	}
	return err
}

func isQuotaResponse(status int, body []byte) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if status != http.StatusForbidden {
		return false
	}
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "ratelimitexceeded") || strings.Contains(lower, "quota")
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
