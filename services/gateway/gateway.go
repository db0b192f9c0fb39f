package gateway

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

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrUnauthorized is returned when the backend rejects the bearer token.
// By the time callers see it the session store has already been cleared;
// any navigation to a login screen is the caller's decision.
var ErrUnauthorized = errors.New("unauthorized")

const defaultTimeout = 30 * time.Second

// TokenSource is the slice of the session store the gateway depends on:
// a fresh token read before every dispatch, and the forced-logout side
// effect on authentication failure.
type TokenSource interface {
	Token() string
	Logout()
}

// Gateway is the single boundary for outbound calls to the aggregator
// backend. Bearer-token attachment and 401 handling are enforced here
// exactly once; no caller attaches tokens itself.
type Gateway struct {
	httpClient *http.Client
	baseURL    string
	store      TokenSource
	log        zerolog.Logger
}

// Option configures optional Gateway behavior.
type Option func(*Gateway)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = client
	}
}

// WithLogger sets the gateway logger.
func WithLogger(log zerolog.Logger) Option {
	return func(g *Gateway) {
		g.log = log
	}
}

// New creates a gateway rooted at baseURL, reading tokens from store.
func New(baseURL string, store TokenSource, opts ...Option) *Gateway {
	g := &Gateway{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		store:      store,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do dispatches one API request. The token is read from the session store
// immediately before dispatch — never cached across calls — so a token
// obtained after startup, or cleared by a concurrent logout, is honored.
//
// A 401 response clears the session store and surfaces as ErrUnauthorized;
// the request is not retried. Other non-2xx responses return an error
// carrying status and body. On 2xx the body is decoded into out when out is
// non-nil.
func (g *Gateway) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := g.store.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	g.log.Debug().Str("method", method).Str("path", path).Msg("dispatching request")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		g.store.Logout()
		g.log.Warn().Str("method", method).Str("path", path).Msg("token rejected, session cleared")
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		g.log.Warn().Int("status", resp.StatusCode).Str("method", method).Str("path", path).Msg("request failed")
		return fmt.Errorf("%s %s: %s - %s", method, path, resp.Status, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetJSON performs a GET and decodes the response into out.
func (g *Gateway) GetJSON(ctx context.Context, path string, out any) error {
	return g.Do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON performs a POST with a JSON body.
func (g *Gateway) PostJSON(ctx context.Context, path string, body, out any) error {
	return g.Do(ctx, http.MethodPost, path, body, out)
}

// DeleteJSON performs a DELETE with a JSON body. The backend's consent
// revocation contract takes its identity pair in the body, not the query.
func (g *Gateway) DeleteJSON(ctx context.Context, path string, body, out any) error {
	return g.Do(ctx, http.MethodDelete, path, body, out)
}
