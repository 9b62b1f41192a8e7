package gsc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// tokenExpiryLeeway refreshes tokens slightly before Google expires them.
const tokenExpiryLeeway = time.Minute

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// tokenSource caches an OAuth access token and refreshes it from a
// refresh token (application/x-www-form-urlencoded per RFC 6749).
type tokenSource struct {
	mu       sync.Mutex
	creds    Credentials
	tokenURL string
	http     *http.Client
	token    string
	expiry   time.Time
}

func newTokenSource(creds Credentials, tokenURL string, hc *http.Client) *tokenSource {
	return &tokenSource{
		creds:    creds,
		tokenURL: tokenURL,
		http:     hc,
		token:    creds.AccessToken,
	}
}

// Token returns a valid access token, refreshing it when needed.
func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && (s.expiry.IsZero() || time.Now().Before(s.expiry)) {
		return s.token, nil
	}
	if s.creds.RefreshToken == "" {
		return "", eris.New("gsc: no access token and no refresh token configured")
	}

	form := url.Values{}
	form.Set("client_id", s.creds.ClientID)
	form.Set("client_secret", s.creds.ClientSecret)
	form.Set("refresh_token", s.creds.RefreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "gsc: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "gsc: refresh token")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", eris.Errorf("gsc: token refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", eris.Wrap(err, "gsc: decode token response")
	}
	if tr.AccessToken == "" {
		return "", eris.New("gsc: token response missing access_token")
	}

	s.token = tr.AccessToken
	s.expiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryLeeway)
	return s.token, nil
}

// Invalidate drops the cached token so the next call refreshes it.
func (s *tokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds.RefreshToken != "" {
		s.token = ""
	}
}
