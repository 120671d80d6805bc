// Package client provides the DecoyVerse Go SDK for the dashboard API:
// authentication, node management, alerts, statistics, and agent-bundle
// download.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// User mirrors the backend user record.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Node mirrors the backend node record.
type Node struct {
	NodeID    string     `json:"node_id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Hostname  string     `json:"hostname,omitempty"`
	OS        string     `json:"os,omitempty"`
	LastSeen  *time.Time `json:"last_seen"`
	CreatedAt time.Time  `json:"created_at"`
}

// CreatedNode is the create-node response, including the one-shot credential.
type CreatedNode struct {
	NodeID     string    `json:"node_id"`
	NodeAPIKey string    `json:"node_api_key"`
	Name       string    `json:"name"`
	Owner      string    `json:"owner"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Alert mirrors the backend alert record.
type Alert struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SourceIP   string    `json:"source_ip"`
	Service    string    `json:"service"`
	Activity   string    `json:"activity"`
	AttackType string    `json:"attack_type"`
	RiskScore  int       `json:"risk_score"`
	Confidence float64   `json:"confidence"`
	NodeID     string    `json:"node_id"`
	Status     string    `json:"status"`
	Severity   string    `json:"severity"`
}

// Stats mirrors the dashboard statistics aggregate.
type Stats struct {
	TotalAttacks      int     `json:"total_attacks"`
	ActiveAlerts      int     `json:"active_alerts"`
	UniqueAttackers   int     `json:"unique_attackers"`
	AvgRiskScore      float64 `json:"avg_risk_score"`
	HighRiskCount     int     `json:"high_risk_count"`
	TotalNodes        int     `json:"total_nodes"`
	ActiveNodes       int     `json:"active_nodes"`
	RecentRiskAverage float64 `json:"recent_risk_average"`
}

// APIError is a structured error body returned by the backend.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Client is the DecoyVerse SDK entry point.
type Client struct {
	base  string
	httpc *http.Client
	token string
}

// New creates a Client for the given backend base URL.
func New(baseURL string) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken sets the bearer token for subsequent calls.
func (c *Client) SetToken(token string) { c.token = token }

// Token returns the current bearer token.
func (c *Client) Token() string { return c.token }

type authResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// Register creates an account and stores the returned bearer token.
func (c *Client) Register(ctx context.Context, email, password string) (*User, error) {
	var out authResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email": email, "password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out.User, nil
}

// Login authenticates and stores the returned bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var out authResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out.User, nil
}

// CreateNode registers a new node. The returned credential appears only in
// this response.
func (c *Client) CreateNode(ctx context.Context, name string) (*CreatedNode, error) {
	var out CreatedNode
	if err := c.do(ctx, http.MethodPost, "/nodes", map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNodes returns the caller's nodes.
func (c *Client) ListNodes(ctx context.Context) ([]Node, error) {
	var out []Node
	if err := c.do(ctx, http.MethodGet, "/nodes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteNode removes a node.
func (c *Client) DeleteNode(ctx context.Context, nodeID string) error {
	return c.do(ctx, http.MethodDelete, "/nodes/"+nodeID, nil, nil)
}

// ListAlerts returns the caller's alerts, newest first.
func (c *Client) ListAlerts(ctx context.Context, limit int) ([]Alert, error) {
	path := "/alerts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []Alert
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStats returns the dashboard statistics aggregate.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadBundle fetches the agent archive for a node. Each call reissues
// the node credential.
func (c *Client) DownloadBundle(ctx context.Context, nodeID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/nodes/"+nodeID+"/agent-download", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("call backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}
