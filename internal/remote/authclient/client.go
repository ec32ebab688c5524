// Package authclient implements remote.AuthProvider against the hosted
// authentication service's JSON endpoints.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"exocal/internal/remote"
)

// Config holds the auth service endpoint and deployment key.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client talks to the hosted auth service and fans out state-change
// notifications to registered listeners. It is the only component that
// knows whether a user is currently signed in at the provider.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	current   *remote.Identity
	listeners map[int]func(*remote.Identity)
	nextID    int
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		config:    cfg,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
		listeners: make(map[int]func(*remote.Identity)),
	}
}

type identityResponse struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SignIn exchanges credentials for an identity and notifies listeners.
// Failures are returned inline for the caller's login surface; listeners
// are not notified on failure.
func (c *Client) SignIn(ctx context.Context, email, password string) (*remote.Identity, error) {
	var resp identityResponse
	err := c.post(ctx, "/v1/signin", map[string]string{
		"email":    email,
		"password": password,
		"api_key":  c.config.APIKey,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	ident := identityFromResponse(resp)
	c.setState(ident)
	return ident, nil
}

// Resume restores a session from a persisted refresh token, notifying
// listeners on success.
func (c *Client) Resume(ctx context.Context, refreshToken string) (*remote.Identity, error) {
	var resp identityResponse
	err := c.post(ctx, "/v1/token", map[string]string{
		"refresh_token": refreshToken,
		"api_key":       c.config.APIKey,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}

	ident := identityFromResponse(resp)
	c.setState(ident)
	return ident, nil
}

// SignOut invalidates the current session server-side and notifies
// listeners with a nil identity. Listeners are notified even if the remote
// call fails: the local client is signed out either way.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	ident := c.current
	c.mu.Unlock()

	var remoteErr error
	if ident != nil {
		remoteErr = c.post(ctx, "/v1/signout", map[string]string{
			"id_token": ident.IDToken,
		}, nil)
	}

	c.setState(nil)

	if remoteErr != nil {
		return fmt.Errorf("sign out: %w", remoteErr)
	}
	return nil
}

// SendPasswordReset asks the service to mail a reset link.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	err := c.post(ctx, "/v1/reset", map[string]string{
		"email":   email,
		"api_key": c.config.APIKey,
	}, nil)
	if err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}
	return nil
}

// OnStateChange registers fn for sign-in/sign-out transitions. The current
// state is delivered immediately so late subscribers converge.
func (c *Client) OnStateChange(fn func(*remote.Identity)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	current := c.current
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close drops the current identity and every registered listener. No
// notifications fire after Close; the identity is simply forgotten, not
// signed out at the provider.
func (c *Client) Close() error {
	c.mu.Lock()
	c.current = nil
	c.listeners = make(map[int]func(*remote.Identity))
	c.mu.Unlock()
	return nil
}

// Identity returns the current identity, or nil when signed out.
func (c *Client) Identity() *remote.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) setState(ident *remote.Identity) {
	c.mu.Lock()
	c.current = ident
	fns := make([]func(*remote.Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ident)
	}
}

func (c *Client) post(ctx context.Context, path string, body map[string]string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			return fmt.Errorf("auth service: %s", errResp.Error)
		}
		return fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	return nil
}

func identityFromResponse(resp identityResponse) *remote.Identity {
	return &remote.Identity{
		UID:          resp.UID,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
	}
}
