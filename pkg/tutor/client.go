package tutor

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

// Client talks to the Tutor Service over HTTP. The zero timeout on the
// underlying http.Client is intentional: streaming turns can legitimately
// run for minutes, so stall detection is handled per-request via
// FirstByteTimeout and by the session's read-loop watchdog instead.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithFirstByteTimeout bounds the wait for response headers on every call,
// converting a stalled connect into a transport error.
func WithFirstByteTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = &http.Transport{
			ResponseHeaderTimeout: d,
		}
	}
}

// NewClient creates a Client for the Tutor Service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 0},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL reports the configured service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OpenTurnStream POSTs a turn to the streaming chat endpoint and returns the
// raw response body for incremental consumption. The caller owns the body
// and must close it; cancelling ctx aborts the read loop.
func (c *Client) OpenTurnStream(ctx context.Context, req TurnRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open turn stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}

	return resp.Body, nil
}

// Chat sends a turn to the buffered chat endpoint and waits for the full reply.
func (c *Client) Chat(ctx context.Context, req TurnRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.postJSON(ctx, "/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History fetches the persisted transcript for a student.
func (c *Client) History(ctx context.Context, studentID string) (*ChatHistory, error) {
	var out ChatHistory
	if err := c.getJSON(ctx, "/chat/"+url.PathEscape(studentID)+"/history", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearHistory deletes the server-side transcript for a student. Idempotent.
func (c *Client) ClearHistory(ctx context.Context, studentID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/chat/"+url.PathEscape(studentID), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	return nil
}

// Stats fetches aggregate conversation statistics.
func (c *Client) Stats(ctx context.Context) (*ChatStats, error) {
	var wrapped struct {
		Status     string    `json:"status"`
		Statistics ChatStats `json:"statistics"`
	}
	if err := c.getJSON(ctx, "/chat/stats", &wrapped); err != nil {
		return nil, err
	}
	return &wrapped.Statistics, nil
}

// ListStudents fetches all known student profiles.
func (c *Client) ListStudents(ctx context.Context) ([]StudentProfile, error) {
	var out []StudentProfile
	if err := c.getJSON(ctx, "/students", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStudent fetches a single student profile.
func (c *Client) GetStudent(ctx context.Context, studentID string) (*StudentProfile, error) {
	var out StudentProfile
	if err := c.getJSON(ctx, "/students/"+url.PathEscape(studentID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateStudent registers a new student profile.
func (c *Client) CreateStudent(ctx context.Context, profile StudentProfile) (*StudentProfile, error) {
	var out StudentProfile
	if err := c.postJSON(ctx, "/students", profile, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Report fetches a study report for a unit, optionally personalized for a
// student. Report generation happens entirely server-side.
func (c *Client) Report(ctx context.Context, unitCode, studentID string) (*TutorReport, error) {
	path := "/tutor-report/" + url.PathEscape(strings.ToUpper(unitCode))
	if studentID != "" {
		path += "?student_id=" + url.QueryEscape(studentID)
	}
	var out TutorReport
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks service liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, "/health", &struct{}{})
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.doJSON(httpReq, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.doJSON(httpReq, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readAPIError drains a non-success response into an APIError, preferring
// the service's structured detail when the body parses.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Detail != "" {
			return &APIError{StatusCode: resp.StatusCode, Body: errResp.Detail}
		}
		if errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Body: errResp.Error}
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
