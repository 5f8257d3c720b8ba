package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for an access token. The body is sent as
// JSON first; if the backend answers 422 it is retried once as a
// form-url-encoded body, and a second failure is returned as is.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	err := c.postJSON(ctx, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity {
		form := url.Values{}
		form.Set("username", username)
		form.Set("password", password)
		resp = loginResponse{}
		err = c.do(ctx, http.MethodPost, "/auth/login",
			strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &resp)
	}
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("login: response has no access_token")
	}
	return resp.AccessToken, nil
}
