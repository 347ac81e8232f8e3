// Package parceltracksdk is a small HTTP client for the parceltrack API.
package parceltracksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal parceltrack HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type HistoryEvent struct {
	State       string    `json:"state,omitempty"`
	Status      string    `json:"status,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Parcel struct {
	ID           string         `json:"id"`
	CurrentState string         `json:"current_state"`
	History      []HistoryEvent `json:"history"`
	IssueCount   int            `json:"issue_count"`
	CreatedAt    time.Time      `json:"created_at"`
	LastEventAt  time.Time      `json:"last_event_at"`
}

type ParcelPage struct {
	TotalItems int      `json:"total_items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	Items      []Parcel `json:"items"`
}

// ListParcelsOptions maps to the list query string; zero values are omitted.
type ListParcelsOptions struct {
	Page     int
	PageSize int
	State    string
	Sort     string
	Order    string
}

type Attachment struct {
	URL          string    `json:"url"`
	OriginalName string    `json:"original_name"`
	AddedAt      time.Time `json:"added_at"`
}

type Issue struct {
	ID          string         `json:"id"`
	ParcelID    string         `json:"parcel_id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	History     []HistoryEvent `json:"history"`
	Attachments []Attachment   `json:"attachments"`
}

type IssueDetails struct {
	ParcelID     string         `json:"parcel_id"`
	IssueCount   int            `json:"issue_count"`
	FirstEventAt time.Time      `json:"first_event_at"`
	History      []HistoryEvent `json:"history"`
}

type Container struct {
	ID        string    `json:"id"`
	Members   []string  `json:"member_parcel_ids"`
	CreatedAt time.Time `json:"created_at"`
}

type PropagationResult struct {
	ContainerID string `json:"container_id"`
	State       string `json:"state"`
	Requested   int    `json:"requested"`
	Modified    int    `json:"modified"`
	Failures    []struct {
		ParcelID string `json:"parcel_id"`
		Reason   string `json:"reason"`
	} `json:"failures"`
}

// File is an attachment to upload.
type File struct {
	Name    string
	Content io.Reader
}

// APIError wraps non-2xx responses. Code and Message come from the
// {"error": {...}} envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ReceiveParcel registers a parcel in state Received.
func (c *Client) ReceiveParcel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "parcels", map[string]any{"id": id}, nil)
}

func (c *Client) GetParcel(ctx context.Context, id string) (Parcel, error) {
	var resp Parcel
	err := c.do(ctx, http.MethodGet, "parcels/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// TransitionParcel moves a parcel to state.
func (c *Client) TransitionParcel(ctx context.Context, id, state string) (Parcel, error) {
	var resp Parcel
	err := c.do(ctx, http.MethodPut, "parcels/"+url.PathEscape(id)+"/state", map[string]any{"state": state}, &resp)
	return resp, err
}

func (c *Client) ListParcels(ctx context.Context, opts ListParcelsOptions) (ParcelPage, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}
	for k, v := range map[string]string{"state": opts.State, "sort": opts.Sort, "order": opts.Order} {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := "parcels"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp ParcelPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) DeleteParcel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "parcels/"+url.PathEscape(id), nil, nil)
}

// CreateIssue files an issue and returns its id.
func (c *Client) CreateIssue(ctx context.Context, parcelID, issueType, description string, files ...File) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	fields := map[string]string{"parcel_id": parcelID, "type": issueType, "description": description}
	err := c.doMultipart(ctx, http.MethodPost, "issues", fields, files, &resp)
	return resp.ID, err
}

func (c *Client) GetIssue(ctx context.Context, id string) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodGet, "issues/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListIssues filters by status and parcel when non-empty.
func (c *Client) ListIssues(ctx context.Context, status, parcelID string) ([]Issue, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if parcelID != "" {
		q.Set("parcel_id", parcelID)
	}
	endpoint := "issues"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Issue
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateIssue applies any of status, comment and files in one request.
func (c *Client) UpdateIssue(ctx context.Context, id, status, comment string, files ...File) (Issue, error) {
	fields := map[string]string{}
	if status != "" {
		fields["status"] = status
	}
	if comment != "" {
		fields["comment"] = comment
	}
	var resp Issue
	err := c.doMultipart(ctx, http.MethodPatch, "issues/"+url.PathEscape(id), fields, files, &resp)
	return resp, err
}

func (c *Client) ChangeIssueStatus(ctx context.Context, id, status string) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodPut, "issues/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

func (c *Client) AddIssueComment(ctx context.Context, id, comment string) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodPost, "issues/"+url.PathEscape(id)+"/comments", map[string]any{"comment": comment}, &resp)
	return resp, err
}

func (c *Client) AddIssueAttachments(ctx context.Context, id string, files ...File) (Issue, error) {
	var resp Issue
	err := c.doMultipart(ctx, http.MethodPost, "issues/"+url.PathEscape(id)+"/attachments", nil, files, &resp)
	return resp, err
}

func (c *Client) DeleteIssue(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "issues/"+url.PathEscape(id), nil, nil)
}

// IssueDetails returns per-parcel issue counts; unknown parcels are omitted.
func (c *Client) IssueDetails(ctx context.Context, parcelIDs []string) ([]IssueDetails, error) {
	var resp struct {
		Items []IssueDetails `json:"items"`
	}
	err := c.do(ctx, http.MethodPost, "issues/details", map[string]any{"parcel_ids": parcelIDs}, &resp)
	return resp.Items, err
}

func (c *Client) AddContainerMembers(ctx context.Context, containerID string, parcelIDs []string) (Container, error) {
	var resp Container
	err := c.do(ctx, http.MethodPut, "containers/"+url.PathEscape(containerID)+"/members", map[string]any{"parcel_ids": parcelIDs}, &resp)
	return resp, err
}

func (c *Client) RemoveContainerMembers(ctx context.Context, containerID string, parcelIDs []string) (Container, error) {
	var resp Container
	err := c.do(ctx, http.MethodDelete, "containers/"+url.PathEscape(containerID)+"/members", map[string]any{"parcel_ids": parcelIDs}, &resp)
	return resp, err
}

func (c *Client) GetContainer(ctx context.Context, id string) (Container, error) {
	var resp Container
	err := c.do(ctx, http.MethodGet, "containers/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// PropagateContainerState moves every member parcel to state.
func (c *Client) PropagateContainerState(ctx context.Context, containerID, state string) (PropagationResult, error) {
	var resp PropagationResult
	err := c.do(ctx, http.MethodPut, "containers/"+url.PathEscape(containerID)+"/state", map[string]any{"state": state}, &resp)
	return resp, err
}

func (c *Client) DeleteContainer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "containers/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) doMultipart(ctx context.Context, method, endpoint string, fields map[string]string, files []File, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile("attachments", f.Name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(fw, f.Content); err != nil {
			return fmt.Errorf("read %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
