package payout

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
	"lumora/internal/gateway"
)

// Client talks to the SBP payout provider settling withdrawals to
// phone-linked accounts.
type Client struct {
	baseURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
}

type CreatePayoutRequest struct {
	OrderID     string `json:"order_id"` // "WD-{withdrawalId}"
	Destination string `json:"destination"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type CreatePayoutResponse struct {
	PayoutID string `json:"payout_id"`
	Status   string `json:"status"`
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:   cfg.Payout.BaseURL,
		apiKey:    cfg.Payout.APIKey,
		secretKey: cfg.Payout.SecretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) CreatePayout(ctx context.Context, req CreatePayoutRequest) (*CreatePayoutResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/payouts", req)
	if err != nil {
		return nil, err
	}

	var resp CreatePayoutResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.PayoutID == "" {
		return nil, fmt.Errorf("provider returned empty payout id")
	}
	return &resp, nil
}

// VerifySignature checks the payout webhook HMAC over the raw body.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	return gateway.VerifyHMAC(payload, signature, c.secretKey)
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

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		zap.L().Error("payout request failed",
			zap.String("method", method), zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		zap.L().Error("payout error response",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("body", string(respBody)))
		return nil, fmt.Errorf("payout error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
