package certlinesdk

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

// Client is a minimal Certline HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, actorID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ActorID: actorID,
		Timeout: 10 * time.Second,
	}
}

// Application represents the API application model (partial).
type Application struct {
	ID            string            `json:"id"`
	FarmerID      string            `json:"farmer_id"`
	FarmName      string            `json:"farm_name"`
	CropType      string            `json:"crop_type,omitempty"`
	Status        string            `json:"status"`
	Documents     map[string]string `json:"documents,omitempty"`
	CertificateID *string           `json:"certificate_id,omitempty"`
	Version       int64             `json:"version"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
}

// Certificate represents an issued certificate.
type Certificate struct {
	CertificateNumber string `json:"certificate_number"`
	ApplicationID     string `json:"application_id"`
	FarmerID          string `json:"farmer_id"`
	IssuedBy          string `json:"issued_by"`
	IssuedAt          string `json:"issued_at"`
	ValidUntil        string `json:"valid_until"`
	Status            string `json:"status"`
}

// HistoryEntry is one audit trail row.
type HistoryEntry struct {
	ID            int64          `json:"id"`
	ApplicationID string         `json:"application_id"`
	FromStatus    string         `json:"from_status"`
	ToStatus      string         `json:"to_status"`
	ActorID       string         `json:"actor_id"`
	Note          string         `json:"note,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	TS            string         `json:"ts"`
}

// Event represents a log entry.
type Event struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts"`
	Type          string `json:"type"`
	ApplicationID string `json:"application_id,omitempty"`
	ActorID       string `json:"actor_id"`
	Payload       string `json:"payload_json"`
}

// StatusStat is one row of the workflow statistics.
type StatusStat struct {
	Status       string  `json:"status"`
	Count        int     `json:"count"`
	AvgDwellSecs float64 `json:"avg_dwell_seconds"`
}

// TransitionResult wraps a transitioned application plus any delivery warnings.
type TransitionResult struct {
	Application Application `json:"application"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// VerifyResult is the certificate verification outcome.
type VerifyResult struct {
	Valid       bool         `json:"valid"`
	Reason      string       `json:"reason,omitempty"`
	Certificate *Certificate `json:"certificate,omitempty"`
}

// History wraps the audit trail listing.
type History struct {
	ApplicationID string         `json:"application_id"`
	Entries       []HistoryEntry `json:"entries"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateApplication creates a draft application.
func (c *Client) CreateApplication(ctx context.Context, farmerID, farmName string, documents map[string]string) (Application, error) {
	body := map[string]any{
		"farmer_id": farmerID,
		"farm_name": farmName,
	}
	if len(documents) > 0 {
		body["documents"] = documents
	}
	var resp Application
	err := c.do(ctx, http.MethodPost, "applications", body, &resp)
	return resp, err
}

// GetApplication fetches an application by id.
func (c *Client) GetApplication(ctx context.Context, id string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodGet, c.appPath(id, ""), nil, &resp)
	return resp, err
}

// ListApplications lists applications, optionally filtered by status.
func (c *Client) ListApplications(ctx context.Context, status string) ([]Application, error) {
	endpoint := "applications"
	if status != "" {
		endpoint = fmt.Sprintf("%s?status=%s", endpoint, url.QueryEscape(status))
	}
	var resp []Application
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateDocuments replaces the document set of an editable application.
func (c *Client) UpdateDocuments(ctx context.Context, id string, documents map[string]string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodPatch, c.appPath(id, "documents"), map[string]any{"documents": documents}, &resp)
	return resp, err
}

// Submit submits a draft application for review.
func (c *Client) Submit(ctx context.Context, id string) (TransitionResult, error) {
	return c.transition(ctx, id, "submit", struct{}{})
}

// StartReview starts the document review.
func (c *Client) StartReview(ctx context.Context, id, reviewerID string) (TransitionResult, error) {
	return c.transition(ctx, id, "review/start", map[string]any{"reviewer_id": reviewerID})
}

// ApproveDocuments completes the review approving the documents and
// scheduling the inspection.
func (c *Client) ApproveDocuments(ctx context.Context, id, inspectorID, inspectionDate string) (TransitionResult, error) {
	return c.transition(ctx, id, "review/complete", map[string]any{
		"approved":        true,
		"inspector_id":    inspectorID,
		"inspection_date": inspectionDate,
	})
}

// RequestDocuments completes the review sending the application back for
// the listed missing document types.
func (c *Client) RequestDocuments(ctx context.Context, id string, missing []string) (TransitionResult, error) {
	return c.transition(ctx, id, "review/complete", map[string]any{
		"request_more_documents": true,
		"missing_documents":      missing,
	})
}

// StartInspection starts the field inspection.
func (c *Client) StartInspection(ctx context.Context, id, inspectorID string) (TransitionResult, error) {
	return c.transition(ctx, id, "inspection/start", map[string]any{"inspector_id": inspectorID})
}

// InspectionReport is the field inspection outcome.
type InspectionReport struct {
	Score             float64 `json:"score"`
	Passed            bool    `json:"passed"`
	SOPImplemented    bool    `json:"sop_implemented"`
	TraceabilityReady bool    `json:"traceability_ready"`
	QualityControl    bool    `json:"quality_control"`
	Notes             string  `json:"notes,omitempty"`
}

// CompleteInspection records the report and continues the workflow.
func (c *Client) CompleteInspection(ctx context.Context, id string, report InspectionReport) (TransitionResult, error) {
	return c.transition(ctx, id, "inspection/complete", report)
}

// Reinspect schedules a re-inspection from compliance review.
func (c *Client) Reinspect(ctx context.Context, id, inspectorID, inspectionDate string) (TransitionResult, error) {
	return c.transition(ctx, id, "reinspect", map[string]any{
		"inspector_id":    inspectorID,
		"inspection_date": inspectionDate,
	})
}

// ForwardApproval forwards a compliance-review application for approval.
func (c *Client) ForwardApproval(ctx context.Context, id, note string) (TransitionResult, error) {
	return c.transition(ctx, id, "forward-approval", map[string]any{"note": note})
}

// Approve approves an application and issues its certificate.
func (c *Client) Approve(ctx context.Context, id, note string) (TransitionResult, error) {
	return c.transition(ctx, id, "approve", map[string]any{"note": note})
}

// Reject rejects an application with a reason.
func (c *Client) Reject(ctx context.Context, id, reason string) (TransitionResult, error) {
	return c.transition(ctx, id, "reject", map[string]any{"reason": reason})
}

// Expire expires an issued certificate.
func (c *Client) Expire(ctx context.Context, id string) (TransitionResult, error) {
	return c.transition(ctx, id, "expire", struct{}{})
}

// GetHistory returns the audit trail of an application.
func (c *Client) GetHistory(ctx context.Context, id string) (History, error) {
	var resp History
	err := c.do(ctx, http.MethodGet, c.appPath(id, "history"), nil, &resp)
	return resp, err
}

// Statistics returns per-status counts and average dwell times.
func (c *Client) Statistics(ctx context.Context) ([]StatusStat, error) {
	var resp struct {
		Statuses []StatusStat `json:"statuses"`
	}
	err := c.do(ctx, http.MethodGet, "statistics", nil, &resp)
	return resp.Statuses, err
}

// GetCertificate fetches a certificate by number.
func (c *Client) GetCertificate(ctx context.Context, number string) (Certificate, error) {
	var resp Certificate
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("certificates/%s", url.PathEscape(number)), nil, &resp)
	return resp, err
}

// VerifyCertificate checks a signed certificate token.
func (c *Client) VerifyCertificate(ctx context.Context, token string) (VerifyResult, error) {
	var resp VerifyResult
	endpoint := fmt.Sprintf("certificates/verify?token=%s", url.QueryEscape(token))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) transition(ctx context.Context, id, action string, body any) (TransitionResult, error) {
	var resp TransitionResult
	err := c.do(ctx, http.MethodPost, c.appPath(id, action), body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
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
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
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

func (c *Client) appPath(id, suffix string) string {
	p := fmt.Sprintf("applications/%s", url.PathEscape(id))
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
