// Package api provides a client for the delivery-management backend.
//
// The client attaches the current session's bearer token to every request.
// A 401 response triggers a single refresh exchange followed by one retry;
// a failed refresh clears the session and surfaces ErrAuthExpired so the
// caller can send the user back to login. No other response is retried.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/buildlens/delivery-intake/internal/session"
)

// defaultTimeout is the HTTP client timeout for backend calls.
const defaultTimeout = 30 * time.Second

// ErrAuthExpired is returned when a 401 could not be recovered by a token
// refresh. The session has been cleared; the user must log in again.
var ErrAuthExpired = errors.New("session expired, login required")

// APIError is any non-2xx backend response other than the handled 401 case.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.Status, truncate(e.Detail, 200))
}

// Client issues authenticated requests to the delivery backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	session    *session.Manager
}

// NewClient creates a backend client reading tokens from sess.
func NewClient(baseURL string, sess *session.Manager) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		session:    sess,
	}
}

// request performs one call against the backend. body, when non-nil, is
// JSON-encoded. retry guards the single 401-triggered refresh-retry:
// the retried call runs with retry=false so a second 401 fails outright.
func (c *Client) request(ctx context.Context, method, path string, body any, retry bool) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tokens, ok := c.session.Current(); ok {
		req.Header.Set("Authorization", "Bearer "+tokens.Access)
	}

	startTime := time.Now()
	log.Debug().
		Str("method", method).
		Str("url", c.baseURL+path).
		Int("bodyBytes", len(payload)).
		Msg("Backend request")

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("status", 0).Dur("duration", duration).Err(err).Msg("Backend response")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	log.Debug().
		Str("method", method).
		Str("url", c.baseURL+path).
		Int("status", httpResp.StatusCode).
		Dur("duration", duration).
		Str("payload", truncate(string(respBody), 200)).
		Msg("Backend response")

	if httpResp.StatusCode == http.StatusUnauthorized {
		tokens, hasTokens := c.session.Current()
		if !retry || !hasTokens || tokens.Refresh == "" {
			c.session.Clear()
			return nil, ErrAuthExpired
		}
		if _, err := c.session.Refresh(ctx, c.exchangeRefreshToken); err != nil {
			return nil, ErrAuthExpired
		}
		return c.request(ctx, method, path, body, false)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &APIError{Status: httpResp.StatusCode, Detail: string(respBody)}
	}
	return respBody, nil
}

// refreshResponse is the body returned by the refresh endpoint.
type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// exchangeRefreshToken performs the refresh exchange against the fixed
// endpoint. It deliberately bypasses request: no bearer header, no retry.
func (c *Client) exchangeRefreshToken(ctx context.Context, refresh string) (session.Tokens, error) {
	payload, err := json.Marshal(map[string]string{"refresh": refresh})
	if err != nil {
		return session.Tokens{}, fmt.Errorf("marshal refresh body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return session.Tokens{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug().Msg("Exchanging refresh token")
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return session.Tokens{}, fmt.Errorf("refresh request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return session.Tokens{}, fmt.Errorf("read refresh response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return session.Tokens{}, fmt.Errorf("refresh failed (status %d): %s",
			httpResp.StatusCode, truncate(string(body), 200))
	}

	var resp refreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return session.Tokens{}, fmt.Errorf("parse refresh response: %w", err)
	}
	if resp.Access == "" {
		return session.Tokens{}, fmt.Errorf("no access token in refresh response")
	}

	return session.Tokens{Access: resp.Access, Refresh: resp.Refresh}, nil
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
