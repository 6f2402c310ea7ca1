// Package session talks to the backend auth service and binds the resulting
// identity to the wallet lifecycle. The backend speaks a uniform
// {success, message, data} envelope over cookie-based sessions.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/domain"
)

const accessTokenCookie = "access_token"

// refreshWindow is how close to expiry the access token may get before a
// proactive refresh is worth issuing.
const refreshWindow = time.Minute

// Envelope is the uniform response shape of every backend auth endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout, Jar: jar},
		logger:  logger,
	}, nil
}

// CheckSession validates the current session cookie. A failed check is
// ErrNoSession, not a transport error; callers fall back to RefreshToken.
func (c *Client) CheckSession(ctx context.Context) (*domain.User, error) {
	env, err := c.do(ctx, http.MethodGet, "/auth/check-session", nil)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoSession, env.Message)
	}
	return decodeUser(env.Data)
}

// RefreshToken exchanges the refresh cookie for a fresh session.
func (c *Client) RefreshToken(ctx context.Context) (*domain.User, error) {
	env, err := c.do(ctx, http.MethodPost, "/auth/refresh-token", nil)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionExpired, env.Message)
	}
	return decodeUser(env.Data)
}

func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	env, err := c.do(ctx, http.MethodPost, "/auth/login", req)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("login rejected: %s", env.Message)
	}
	return decodeUser(env.Data)
}

func (c *Client) Signup(ctx context.Context, req domain.SignupRequest) (*domain.User, error) {
	env, err := c.do(ctx, http.MethodPost, "/auth/signup", req)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("signup rejected: %s", env.Message)
	}
	return decodeUser(env.Data)
}

func (c *Client) Logout(ctx context.Context) error {
	env, err := c.do(ctx, http.MethodPost, "/auth/logout", nil)
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("logout rejected: %s", env.Message)
	}
	return nil
}

func (c *Client) UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest) (*domain.User, error) {
	env, err := c.do(ctx, http.MethodPost, "/auth/update-profile", req)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("profile update rejected: %s", env.Message)
	}
	return decodeUser(env.Data)
}

func (c *Client) ActiveUsers(ctx context.Context) (int, error) {
	env, err := c.do(ctx, http.MethodGet, "/auth/get-active-users", nil)
	if err != nil {
		return 0, err
	}
	if !env.Success {
		return 0, fmt.Errorf("active users lookup rejected: %s", env.Message)
	}
	var count int
	if err := json.Unmarshal(env.Data, &count); err != nil {
		return 0, fmt.Errorf("decode active users: %w", err)
	}
	return count, nil
}

// SessionExpiringSoon peeks at the access token's exp claim without verifying
// the signature; verification is the backend's job, we only need the deadline.
func (c *Client) SessionExpiringSoon() bool {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name != accessTokenCookie {
			continue
		}
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(ck.Value, claims); err != nil {
			return false
		}
		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			return false
		}
		return time.Until(exp.Time) < refreshWindow
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*Envelope, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	c.logger.Debug("backend call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Bool("success", env.Success))
	return &env, nil
}

func decodeUser(data json.RawMessage) (*domain.User, error) {
	var wrapped struct {
		User *domain.User `json:"user"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User, nil
	}
	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decode user payload: %w", err)
	}
	return &user, nil
}
