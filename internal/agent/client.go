package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tailwag-labs/tailwag/internal/auth"
	"github.com/tailwag-labs/tailwag/internal/license"
)

// Client is an HTTP client for communicating with the Tailwag hub. Network
// failures surface as license.ErrIssuerUnreachable (license paths) or
// auth.ErrPrimaryUnavailable (login path); they never change local state.
type Client struct {
	hubURL     string
	httpClient *http.Client
}

// NewClient creates a new hub API client.
func NewClient(hubURL string) *Client {
	return &Client{
		hubURL: hubURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type issueRequest struct {
	TenantID string `json:"tenant_id"`
}

type issueResponse struct {
	Token string `json:"token"`
}

// FetchGrant requests a freshly signed grant for the tenant. A 404 maps to
// license.ErrTenantNotFound, a 409 to license.ErrNoActivePlan.
func (c *Client) FetchGrant(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var resp issueResponse
	status, err := c.post(ctx, "/api/v1/licenses/issue", issueRequest{TenantID: tenantID.String()}, &resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", license.ErrIssuerUnreachable, err)
	}

	switch status {
	case http.StatusOK:
		return resp.Token, nil
	case http.StatusNotFound:
		return "", license.ErrTenantNotFound
	case http.StatusConflict:
		return "", license.ErrNoActivePlan
	default:
		return "", fmt.Errorf("%w: hub returned %d", license.ErrIssuerUnreachable, status)
	}
}

// PublicKeyInfo is one verification key as served by the hub.
type PublicKeyInfo struct {
	KeyID     string `json:"key_id"`
	PublicKey string `json:"public_key"`
}

type keysResponse struct {
	Keys []PublicKeyInfo `json:"keys"`
}

// FetchKeys retrieves the hub's verification public keys. Keys are
// distributed independently of grants so they can be pinned at registration.
func (c *Client) FetchKeys(ctx context.Context) ([]PublicKeyInfo, error) {
	var resp keysResponse
	status, err := c.get(ctx, "/api/v1/licenses/keys", &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", license.ErrIssuerUnreachable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: hub returned %d", license.ErrIssuerUnreachable, status)
	}
	return resp.Keys, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Granted  bool   `json:"granted"`
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
}

// Authenticate performs primary (online) authentication against the hub.
// It implements auth.PrimaryAuthenticator: a rejection is
// auth.ErrBadCredentials, an unreachable hub is auth.ErrPrimaryUnavailable.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*auth.Identity, error) {
	var resp loginResponse
	status, err := c.post(ctx, "/api/v1/auth/login", loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrPrimaryUnavailable, err)
	}

	switch status {
	case http.StatusOK:
		// fall through to parse identity
	case http.StatusUnauthorized:
		return nil, auth.ErrBadCredentials
	default:
		return nil, fmt.Errorf("%w: hub returned %d", auth.ErrPrimaryUnavailable, status)
	}

	userID, err := uuid.Parse(resp.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	tenantID, err := uuid.Parse(resp.TenantID)
	if err != nil {
		return nil, fmt.Errorf("parse tenant id: %w", err)
	}

	return &auth.Identity{
		UserID:   userID,
		TenantID: tenantID,
		Email:    resp.Email,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, result any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.hubURL+path, nil)
	if err != nil {
		return 0, err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, payload, result any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hubURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK && result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}
