// Package identity holds the client for the users service, the external
// collaborator that owns login identities. Registration creates the remote
// identity first; the local account row is committed only after it succeeds.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"op-platform/core/internal/platform/errs"
)

const defaultTimeout = 30 * time.Second

// CreateUserRequest is the payload sent to the users service.
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
}

type createUserResponse struct {
	ID string `json:"id"`
}

// Client calls the users service over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client for the users service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// CreateUser creates a login identity on the users service and returns the new
// external user id. Connection failures and timeouts surface as
// errs.ErrDependencyUnavailable so callers can abort registration cleanly.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/user/register", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", errs.Dependency(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return "", errs.ErrConflict
	case resp.StatusCode >= 500:
		return "", errs.Dependency(fmt.Errorf("users service returned %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("users service returned %d", resp.StatusCode)
	}

	var out createUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errs.Dependency(err)
	}
	if out.ID == "" {
		return "", errs.Dependency(fmt.Errorf("users service returned no id"))
	}
	return out.ID, nil
}

// Health reports whether the users service answers its health endpoint.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
