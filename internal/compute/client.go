// Package compute provisions and deletes agent VMs through an
// OpenStack-compatible compute API.
package compute

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
)

var (
	// ErrNotFound is returned when the compute service has no server
	// with the given id. Teardown treats it as already-torn-down.
	ErrNotFound = errors.New("server not found")

	// ErrQuotaExceeded is returned when the tenant is out of quota.
	ErrQuotaExceeded = errors.New("compute quota exceeded")
)

// PersonalityFile is a file injected into the VM at creation time.
type PersonalityFile struct {
	Path     string `json:"path"`
	Contents string `json:"contents"` // base64
	Owner    string `json:"owner,omitempty"`
	Group    string `json:"group,omitempty"`
	Mode     int    `json:"mode,omitempty"`
}

// CreateServerRequest describes the VM to create.
type CreateServerRequest struct {
	Name        string
	ImageRef    string
	FlavorRef   string
	Project     string
	Networks    json.RawMessage
	Personality []PersonalityFile
}

// Server is the subset of the created-server response we care about.
type Server struct {
	ID string `json:"id"`
}

// Client talks to the compute service. Every call carries the caller's
// own bearer token, the provisioner holds no credentials of its own.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a compute client for the given service base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type createServerBody struct {
	Server struct {
		Name        string            `json:"name"`
		ImageRef    string            `json:"imageRef"`
		FlavorRef   string            `json:"flavorRef"`
		Project     string            `json:"project,omitempty"`
		Networks    json.RawMessage   `json:"networks,omitempty"`
		Personality []PersonalityFile `json:"personality,omitempty"`
	} `json:"server"`
}

type createServerResponse struct {
	Server Server `json:"server"`
}

// CreateServer creates a VM and returns its remote id.
func (c *Client) CreateServer(ctx context.Context, token string, req CreateServerRequest) (*Server, error) {
	var body createServerBody
	body.Server.Name = req.Name
	body.Server.ImageRef = req.ImageRef
	body.Server.FlavorRef = req.FlavorRef
	body.Server.Project = req.Project
	body.Server.Networks = req.Networks
	body.Server.Personality = req.Personality

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode server request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/servers", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Auth-Token", token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("compute request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.errorFromResponse(resp)
	}

	var serverResp createServerResponse
	if err := json.NewDecoder(resp.Body).Decode(&serverResp); err != nil {
		return nil, fmt.Errorf("failed to decode server response: %w", err)
	}
	if serverResp.Server.ID == "" {
		return nil, fmt.Errorf("compute response has no server id")
	}

	return &serverResp.Server, nil
}

// DeleteServer deletes a VM by its remote id.
func (c *Client) DeleteServer(ctx context.Context, token string, serverID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, "DELETE", c.baseURL+"/servers/"+serverID, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("X-Auth-Token", token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("compute request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp)
	}

	return nil
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w (%d, %s)", ErrNotFound, resp.StatusCode, strings.TrimSpace(string(msg)))
	case http.StatusForbidden:
		return fmt.Errorf("%w (%d, %s)", ErrQuotaExceeded, resp.StatusCode, strings.TrimSpace(string(msg)))
	default:
		return fmt.Errorf("compute returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}
