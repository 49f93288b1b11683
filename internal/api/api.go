package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gennadis/apiclient/internal/client"
)

const (
	signUpPath       = "/v1/signup"
	signInPath       = "/v1/signin"
	refreshTokenPath = "/v1/refresh-token"
	usersPath        = "/v1/users"
	userPath         = "/v1/user/"
	userUpdatePath   = "/v1/user/update"
	secretPath       = "/secret"
	notSecretPath    = "/not-secret"
)

// TokenSource supplies the access token for bearer endpoints.
type TokenSource interface {
	AccessToken() string
}

// Client calls the auth and users endpoints of the backend.
type Client struct {
	http   *client.Client
	tokens TokenSource
}

func New(httpClient *client.Client) *Client {
	return &Client{http: httpClient}
}

// WithTokenSource returns a copy of c that authenticates with ts.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

func (c *Client) SignUp(ctx context.Context, in SignUpRequest) (*AuthResponse, error) {
	out := &AuthResponse{}
	if err := c.call(ctx, http.MethodPost, signUpPath, out, client.WithJSON(in)); err != nil {
		slog.Error("Failed to sign up", "email", in.Email, "error", err)
		return nil, err
	}
	return out, nil
}

func (c *Client) SignIn(ctx context.Context, in SignInRequest) (*AuthResponse, error) {
	out := &AuthResponse{}
	if err := c.call(ctx, http.MethodPost, signInPath, out, client.WithJSON(in)); err != nil {
		slog.Error("Failed to sign in", "email", in.Email, "error", err)
		return nil, err
	}
	return out, nil
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	out := refreshResponse{}
	q := url.Values{"refresh_token": {refreshToken}}
	if err := c.call(ctx, http.MethodGet, refreshTokenPath, &out, client.WithQuery(q)); err != nil {
		slog.Error("Failed to refresh access token", "error", err)
		return "", err
	}
	return out.AccessToken, nil
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.authorized(ctx, http.MethodGet, usersPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) User(ctx context.Context, id int) (*User, error) {
	out := &User{}
	if err := c.authorized(ctx, http.MethodGet, userPath+strconv.Itoa(id), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateUser(ctx context.Context, in UserUpdateRequest) (*User, error) {
	out := &User{}
	if err := c.authorized(ctx, http.MethodPost, userUpdatePath, out, client.WithJSON(in)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Secret(ctx context.Context) (string, error) {
	var out string
	if err := c.authorized(ctx, http.MethodGet, secretPath, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) NotSecret(ctx context.Context) (string, error) {
	var out string
	if err := c.call(ctx, http.MethodGet, notSecretPath, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) authorized(ctx context.Context, method, path string, out any, opts ...client.RequestOption) error {
	if c.tokens == nil {
		return ErrUnauthenticated
	}
	token := c.tokens.AccessToken()
	if token == "" {
		return ErrUnauthenticated
	}
	return c.call(ctx, method, path, out, append(opts, client.WithBearerToken(token))...)
}

func (c *Client) call(ctx context.Context, method, path string, out any, opts ...client.RequestOption) error {
	req, err := c.http.NewRequest(ctx, method, path, opts...)
	if err != nil {
		return fmt.Errorf("failed to build %s %s request: %w", method, path, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := handleApiError(res, body); err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s %s response: %w", method, path, err)
	}
	return nil
}
