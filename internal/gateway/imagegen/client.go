package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"lumora/internal/config"
)

// Client talks to the external image-generation provider. One submit
// produces one provider task; results arrive by callback or polling.
type Client struct {
	baseURL     string
	apiKey      string
	callbackURL string
	httpClient  *http.Client
}

type TaskState string

const (
	StatePending TaskState = "pending"
	StateSuccess TaskState = "success"
	StateFailed  TaskState = "failed"
)

type SubmitRequest struct {
	Prompt          string   `json:"prompt"`
	ReferenceImages []string `json:"reference_images,omitempty"` // at most 4
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	OutputFormat    string   `json:"output_format,omitempty"`
	CallbackURL     string   `json:"callback_url,omitempty"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type TaskResult struct {
	State      TaskState `json:"state"`
	ResultURLs []string  `json:"result_urls"`
	Error      string    `json:"error"`
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:     cfg.ImageGen.BaseURL,
		apiKey:      cfg.ImageGen.APIKey,
		callbackURL: cfg.ImageGen.CallbackURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) SubmitTask(ctx context.Context, req SubmitRequest) (string, error) {
	if len(req.ReferenceImages) > 4 {
		req.ReferenceImages = req.ReferenceImages[:4]
	}
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/tasks", req)
	if err != nil {
		return "", err
	}

	var resp submitResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("provider returned empty task id")
	}

	return resp.TaskID, nil
}

func (c *Client) GetTask(ctx context.Context, taskID string) (*TaskResult, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}

	var resp TaskResult
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		zap.L().Error("imagegen request failed",
			zap.String("method", method), zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		zap.L().Error("imagegen error response",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("body", string(respBody)))
		return nil, fmt.Errorf("imagegen error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
