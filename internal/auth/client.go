package auth

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

	"github.com/odyssey-erp/odyssey-console/internal/access"
)

const (
	loginPath  = "/admin/user/access/login"
	logoutPath = "/admin/user/access/logout"
)

// LoginResult is a successful authentication.
type LoginResult struct {
	Identity access.Identity
	Token    string
}

// Authenticator is the remote authentication collaborator.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// Client talks to the backend's user access endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	User    *access.Identity `json:"user"`
	Token   string           `json:"token"`
}

// Login submits credentials. Errors are always *Failure.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return LoginResult{}, networkFailure(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return LoginResult{}, networkFailure(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LoginResult{}, networkFailure(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return LoginResult{}, networkFailure(err)
	}
	var payload loginResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return LoginResult{}, networkFailure(fmt.Errorf("decode login response (status %d): %w", resp.StatusCode, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !payload.Success {
		return LoginResult{}, authenticationFailure(payload.Message)
	}
	if payload.User == nil || payload.Token == "" {
		return LoginResult{}, networkFailure(errors.New("login response missing user or token"))
	}
	if err := payload.User.Validate(); err != nil {
		return LoginResult{}, networkFailure(err)
	}
	return LoginResult{Identity: *payload.User, Token: payload.Token}, nil
}

// Logout notifies the backend that token is no longer in use.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+logoutPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("logout returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Authenticator = (*Client)(nil)
