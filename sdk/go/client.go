package erasuresdk

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

// Client is a minimal Erasure HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		Timeout:     10 * time.Second,
	}
}

// Run represents the API run model (partial).
type Run struct {
	RunID        string  `json:"run_id"`
	PlanID       string  `json:"plan_id"`
	Status       string  `json:"status"`
	ErrorCode    *string `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	CreatedAt    string  `json:"created_at"`
}

// TaskRun represents one task attempt within a run.
type TaskRun struct {
	TaskID   string  `json:"task_id"`
	TaskType string  `json:"task_type"`
	Status   string  `json:"status"`
	Attempt  int     `json:"attempt"`
	ErrorMsg *string `json:"error_message"`
}

// Approval represents a pending or resolved approval gate.
type Approval struct {
	ApprovalID string `json:"approval_id"`
	RunID      string `json:"run_id"`
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Prompt     string `json:"prompt"`
}

// Listing represents a discovered broker listing.
type Listing struct {
	ListingID  string  `json:"listing_id"`
	BrokerID   string  `json:"broker_id"`
	ProfileID  string  `json:"profile_id"`
	Status     string  `json:"status"`
	URL        string  `json:"listing_url"`
	Confidence float64 `json:"confidence"`
}

// QueueItem represents a manual action awaiting a human.
type QueueItem struct {
	QueueID      string `json:"queue_id"`
	BrokerID     string `json:"broker_id"`
	ActionNeeded string `json:"action_needed"`
	Priority     int    `json:"priority"`
	Status       string `json:"status"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// RunDetail is the full run view.
type RunDetail struct {
	Run       Run        `json:"run"`
	Tasks     []TaskRun  `json:"tasks"`
	Approvals []Approval `json:"approvals"`
}

// StartRunResult reports whether a run was created or deduplicated.
type StartRunResult struct {
	Run     Run  `json:"run"`
	Created bool `json:"created"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StartRun starts (or deduplicates) a run for a broker plan.
func (c *Client) StartRun(ctx context.Context, planID string, params map[string]any, idempotencyKey string) (StartRunResult, error) {
	body := map[string]any{
		"plan_id": planID,
		"params":  params,
	}
	if idempotencyKey != "" {
		body["idempotency_key"] = idempotencyKey
	}
	var resp StartRunResult
	err := c.do(ctx, http.MethodPost, "v0/runs", body, &resp)
	return resp, err
}

// GetRun fetches a run with its tasks and approvals.
func (c *Client) GetRun(ctx context.Context, runID string) (RunDetail, error) {
	var resp RunDetail
	err := c.do(ctx, http.MethodGet, "v0/runs/"+url.PathEscape(runID), nil, &resp)
	return resp, err
}

// ListRuns returns runs, optionally filtered by status.
func (c *Client) ListRuns(ctx context.Context, status string) ([]Run, error) {
	endpoint := "v0/runs"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Run
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// PendingApprovals returns approvals awaiting a decision.
func (c *Client) PendingApprovals(ctx context.Context) ([]Approval, error) {
	var resp []Approval
	err := c.do(ctx, http.MethodGet, "v0/approvals?status=pending", nil, &resp)
	return resp, err
}

// ResolveApproval approves or denies a pending approval.
func (c *Client) ResolveApproval(ctx context.Context, approvalID string, approve bool) (Approval, error) {
	decision := "deny"
	if approve {
		decision = "approve"
	}
	var resp Approval
	endpoint := "v0/approvals/" + url.PathEscape(approvalID)
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"decision": decision}, &resp)
	return resp, err
}

// ListListings returns listings, optionally filtered by status.
func (c *Client) ListListings(ctx context.Context, status string) ([]Listing, error) {
	endpoint := "v0/listings"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Listing
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// PendingQueue returns manual actions awaiting a human.
func (c *Client) PendingQueue(ctx context.Context) ([]QueueItem, error) {
	var resp []QueueItem
	err := c.do(ctx, http.MethodGet, "v0/queue?status=pending", nil, &resp)
	return resp, err
}

// CompleteQueueItem marks a manual action done.
func (c *Client) CompleteQueueItem(ctx context.Context, queueID, notes string) (QueueItem, error) {
	var resp QueueItem
	endpoint := "v0/queue/" + url.PathEscape(queueID) + "/complete"
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"notes": notes}, &resp)
	return resp, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
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
