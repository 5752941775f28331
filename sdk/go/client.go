// Package sitelinesdk is a minimal typed client for the Siteline HTTP API.
package sitelinesdk

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

// Client talks to one project of a Siteline server.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Task is the projected task node (partial).
type Task struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	Weight          float64  `json:"weight"`
	Duration        int      `json:"duration"`
	Cost            *float64 `json:"cost,omitempty"`
	Hierarchy       string   `json:"hierarchy,omitempty"`
	PlannedProgress float64  `json:"planned_progress"`
	ActualProgress  float64  `json:"actual_progress"`
	IsEditedToday   bool     `json:"is_edited_today"`
	ExecutionStatus string   `json:"execution_status"`
	OverallStatus   string   `json:"overall_status"`
	Subtasks        []Task   `json:"subtasks,omitempty"`
}

// Timeline is the projected revision.
type Timeline struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Currency  string `json:"currency,omitempty"`
	CreatedAt string `json:"created_at"`
	Tasks     []Task `json:"tasks"`
}

// CurvePoint carries the three dashboard series for one day.
type CurvePoint struct {
	Planned  *float64 `json:"planned,omitempty"`
	Actual   *float64 `json:"actual,omitempty"`
	Original *float64 `json:"original,omitempty"`
}

// Dashboard is the project aggregate.
type Dashboard struct {
	StartDate      string                `json:"start_date"`
	EndDate        string                `json:"end_date"`
	Today          string                `json:"today"`
	TotalDays      int                   `json:"total_days"`
	ElapsedDays    int                   `json:"elapsed_days"`
	RemainingDays  int                   `json:"remaining_days"`
	ProgressCurves map[string]CurvePoint `json:"progress_curves"`
}

// HistoryEntry is one recorded measurement.
type HistoryEntry struct {
	TimelineID      string  `json:"timeline_id"`
	TimelineName    string  `json:"timeline_name"`
	TaskID          string  `json:"task_id"`
	TaskName        string  `json:"task_name"`
	Progress        float64 `json:"progress_percentage"`
	MeasurementDate string  `json:"measurement_date"`
	PublicationDate string  `json:"publication_date"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTimeline creates a revision from authoring input. The input mirrors
// the POST timelines body: name plus a task tree with dates and costs.
func (c *Client) CreateTimeline(ctx context.Context, input map[string]any) (Timeline, error) {
	var resp Timeline
	err := c.do(ctx, http.MethodPost, c.projectPath("timelines"), input, &resp)
	return resp, err
}

// LatestTimeline returns the live revision projected at a date; zero date
// means the server clock.
func (c *Client) LatestTimeline(ctx context.Context, at string) (Timeline, error) {
	endpoint := c.projectPath("timelines/latest")
	if at != "" {
		endpoint += "?date=" + url.QueryEscape(at)
	}
	var resp Timeline
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Timeline returns one revision projected at a date.
func (c *Client) Timeline(ctx context.Context, id, at string) (Timeline, error) {
	endpoint := c.projectPath("timelines/" + url.PathEscape(id))
	if at != "" {
		endpoint += "?date=" + url.QueryEscape(at)
	}
	var resp Timeline
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RecordMeasurement records one progress reading on a task.
func (c *Client) RecordMeasurement(ctx context.Context, timelineID, taskID string, progress float64, date string) (Timeline, error) {
	body := map[string]any{
		"task_id":             taskID,
		"progress_percentage": progress,
	}
	if date != "" {
		body["measurement_date"] = date
	}
	var resp Timeline
	endpoint := c.projectPath(fmt.Sprintf("timelines/%s/measurements", url.PathEscape(timelineID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// DeleteProgressDate strips every entry recorded for one date.
func (c *Client) DeleteProgressDate(ctx context.Context, timelineID, date string) error {
	endpoint := c.projectPath(fmt.Sprintf("timelines/%s/progress?date=%s", url.PathEscape(timelineID), url.QueryEscape(date)))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Dashboard returns the project aggregate.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, c.projectPath("timelines/dashboard"), nil, &resp)
	return resp, err
}

// History returns the measurement history, optionally filtered to one task.
func (c *Client) History(ctx context.Context, taskID string) ([]HistoryEntry, error) {
	endpoint := c.projectPath("timelines/history")
	if taskID != "" {
		endpoint += "?task_id=" + url.QueryEscape(taskID)
	}
	var resp []HistoryEntry
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
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
