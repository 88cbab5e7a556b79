package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrAPIUnavailable is returned when no daemon API address is configured.
	ErrAPIUnavailable = errors.New("daemon API unavailable")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")
)

// Client talks to a running townhalld over its HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for the daemon bound at bind. token may be empty
// when the daemon runs without authentication.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var status DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &status)
	return status, err
}

// Ping checks that the daemon answers /healthz.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// List returns jobs, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses []string) ([]Job, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", status)
	}
	path := "/api/jobs"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Describe fetches one job, returning nil when it does not exist.
func (c *Client) Describe(ctx context.Context, id string) (*Job, error) {
	var resp JobResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &resp)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// Retry retries the given failed jobs, or every failed job when ids is empty.
func (c *Client) Retry(ctx context.Context, ids []string) (RetryJobsResult, error) {
	var resp RetryJobsResult
	err := c.do(ctx, http.MethodPost, "/api/jobs/retry", RetryRequest{IDs: ids}, &resp)
	return resp, err
}

// Remove deletes one job unless it is in progress.
func (c *Client) Remove(ctx context.Context, id string) (int64, error) {
	var resp RemoveResponse
	err := c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, &resp)
	return resp.Removed, err
}

// Video fetches a video record, returning nil when it does not exist.
func (c *Client) Video(ctx context.Context, videoID string) (*Video, error) {
	var resp Video
	err := c.do(ctx, http.MethodGet, "/api/videos/"+url.PathEscape(videoID), nil, &resp)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enqueue submits a job through the daemon.
func (c *Client) Enqueue(ctx context.Context, videoID, inputLocator string) (EnqueueResponse, error) {
	var resp EnqueueResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", EnqueueRequest{VideoID: videoID, InputLocator: inputLocator}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return err
	}
	endpoint := c.base.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("api %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("api %s returned status %d: %s", path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api %s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
