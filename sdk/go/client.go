package kitchenflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal KitchenFlow HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Profile represents a login profile (partial).
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role"`
}

// KitchenClient represents a customer record.
type KitchenClient struct {
	ID         string `json:"id"`
	ClientCode string `json:"client_code"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
}

// Project represents a kitchen project (partial).
type Project struct {
	ID               string   `json:"id"`
	ProjectReference string   `json:"project_reference"`
	ClientID         string   `json:"client_id"`
	KitchenShape     string   `json:"kitchen_shape"`
	BudgetBracket    string   `json:"budget_bracket"`
	Materials        []string `json:"materials,omitempty"`
	Status           string   `json:"status"`
	CurrentPhase     int      `json:"current_phase"`
	UpdatedAt        string   `json:"updated_at"`
}

// Phase represents one of a project's six phases.
type Phase struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	PhaseNumber int     `json:"phase_number"`
	PhaseName   string  `json:"phase_name"`
	Status      string  `json:"status"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	UpdatedAt   string  `json:"updated_at"`
}

// Assignment represents one entry of the assignment audit trail.
type Assignment struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	PhaseID    string `json:"phase_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	AssignedTo string `json:"assigned_to"`
	AssignedBy string `json:"assigned_by"`
	AssignedAt string `json:"assigned_at"`
	Notes      string `json:"notes,omitempty"`
}

// Event represents an audit log entry. Payload is the raw JSON recorded
// with the event.
type Event struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	TS         string `json:"ts"`
	Payload    string `json:"payload_json,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and stores it on the
// client.
func (c *Client) Login(ctx context.Context, email, password string) (Profile, error) {
	var resp struct {
		Token string  `json:"token"`
		User  Profile `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return Profile{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// CreateClient registers a customer.
func (c *Client) CreateClient(ctx context.Context, name, email string) (KitchenClient, error) {
	var resp KitchenClient
	err := c.do(ctx, http.MethodPost, "v1/clients", map[string]any{
		"name":  name,
		"email": email,
	}, &resp)
	return resp, err
}

// CreateProject opens a project for a client.
func (c *Client) CreateProject(ctx context.Context, clientID, shape, budget string, materials []string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/projects", map[string]any{
		"client_id":      clientID,
		"kitchen_shape":  shape,
		"budget_bracket": budget,
		"materials":      materials,
	}, &resp)
	return resp, err
}

// Projects lists the projects visible to the caller.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v1/projects", nil, &resp)
	return resp, err
}

// Phases lists a project's phases in order.
func (c *Client) Phases(ctx context.Context, projectID string) ([]Phase, error) {
	var resp []Phase
	endpoint := fmt.Sprintf("v1/projects/%s/phases", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AssignPhase hands a phase to a team member.
func (c *Client) AssignPhase(ctx context.Context, phaseID, assigneeID, notes string) (Assignment, error) {
	var resp Assignment
	endpoint := fmt.Sprintf("v1/phases/%s/assign", url.PathEscape(phaseID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{
		"assignee_id": assigneeID,
		"notes":       notes,
	}, &resp)
	return resp, err
}

// SetPhaseStatus moves a phase between statuses. Pass expectedUpdatedAt from
// the last read to detect concurrent edits.
func (c *Client) SetPhaseStatus(ctx context.Context, phaseID, status, expectedUpdatedAt string) (Phase, error) {
	var resp Phase
	endpoint := fmt.Sprintf("v1/phases/%s/status", url.PathEscape(phaseID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{
		"status":              status,
		"expected_updated_at": expectedUpdatedAt,
	}, &resp)
	return resp, err
}

// Events polls the audit feed. A zero cursor returns the newest events;
// a positive cursor returns events after it in id order.
func (c *Client) Events(ctx context.Context, after int64, limit int) ([]Event, error) {
	endpoint := "v1/events"
	params := url.Values{}
	if after > 0 {
		params.Set("after", fmt.Sprintf("%d", after))
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
