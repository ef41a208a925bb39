// Package identity exchanges bearer tokens for stable user identifiers
// against an astakos-style identity provider.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the provider explicitly rejects the
// token. Any other failure mode is a transient/upstream error.
var ErrUnauthorized = errors.New("identity provider rejected the token")

// Client talks to the identity provider's token endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an identity client for the given provider base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenRequest struct {
	Auth struct {
		Token struct {
			ID string `json:"id"`
		} `json:"token"`
	} `json:"auth"`
}

type tokenResponse struct {
	Access struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"access"`
}

// Authenticate validates a bearer token and returns the stable user id
// it belongs to.
func (c *Client) Authenticate(ctx context.Context, token string) (string, error) {
	var body tokenRequest
	body.Auth.Token.ID = token

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/tokens", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode identity response: %w", err)
	}
	if tokenResp.Access.User.ID == "" {
		return "", fmt.Errorf("identity response has no user id")
	}

	return tokenResp.Access.User.ID, nil
}
