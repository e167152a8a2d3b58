package suno

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	// Poll calls back a browser polling loop, so they get a tight bound.
	defaultPollTimeout = 8 * time.Second
)

// Client calls the music generation provider over HTTP.
type Client struct {
	client        *resty.Client
	baseURL       string
	callbackURL   string
	submitTimeout time.Duration
	pollTimeout   time.Duration
}

// Config holds configuration for the provider client.
type Config struct {
	BaseURL       string
	APIKey        string
	CallbackURL   string
	SubmitTimeout time.Duration
	PollTimeout   time.Duration
}

// NewClient creates a new provider client.
// Parameters:
//   - cfg: provider configuration including base URL, API key, and the callback
//     URL handed to the provider on submission.
// Returns:
//   - *Client: initialized client wrapper.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	submitTimeout := cfg.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = defaultSubmitTimeout
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	return &Client{
		client:        client,
		baseURL:       cfg.BaseURL,
		callbackURL:   cfg.CallbackURL,
		submitTimeout: submitTimeout,
		pollTimeout:   pollTimeout,
	}
}

// Generate submits a generation request and returns the provider-assigned task
// ID. The provider's own generation is asynchronous and may take minutes; this
// call only registers it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: generation parameters; the callback URL is filled in if unset.
// Returns:
//   - string: provider task ID.
//   - error: non-nil on transport failure, non-2xx status, or provider error code.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	var resp generateResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.baseURL + "/generate")
	if err != nil {
		return "", fmt.Errorf("failed to call generate API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		return "", fmt.Errorf("generate API returned HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
	}
	if resp.Code != 200 {
		return "", fmt.Errorf("generate API error code %d: %s", resp.Code, resp.Msg)
	}
	if resp.Data.TaskID == "" {
		return "", fmt.Errorf("generate API returned no task_id (status %d)", httpResp.StatusCode())
	}

	return resp.Data.TaskID, nil
}

// RecordInfo polls the provider for the current state of a task. The call is
// bounded by the poll timeout and aborts with an error rather than hang.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - taskID: provider task ID to query.
// Returns:
//   - *RecordInfo: provider status and raw track entries.
//   - error: non-nil on transport failure, timeout, or provider error code.
func (c *Client) RecordInfo(ctx context.Context, taskID string) (*RecordInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	var resp recordInfoResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("taskId", taskID).
		SetResult(&resp).
		Get(c.baseURL + "/generate/record-info")
	if err != nil {
		return nil, fmt.Errorf("failed to call record-info API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		return nil, fmt.Errorf("record-info API returned HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
	}
	if resp.Code != 200 {
		return nil, fmt.Errorf("record-info API error code %d: %s", resp.Code, resp.Msg)
	}

	return &RecordInfo{
		TaskID: resp.Data.TaskID,
		Status: resp.Data.Status,
		Tracks: resp.Data.Response.SunoData,
	}, nil
}
