package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"slipdash/internal/core"
)

var errNoToken = core.ErrNotAuthenticated

// ErrNoAccessToken means the backend accepted the login but sent no token.
var ErrNoAccessToken = errors.New("login response did not include an access token")

// LoginResult is the token pair returned by /auth/login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges a username and password for a bearer token. The backend
// expects an OAuth2 password form, not JSON.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var out LoginResult
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &out)
	if err != nil {
		return LoginResult{}, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return LoginResult{}, ErrNoAccessToken
	}
	return out, nil
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a backend account. It does not log the user in.
func (c *Client) Register(ctx context.Context, r RegisterRequest) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/register",
		body:        body,
		contentType: "application/json",
	}, nil)
}
