package billing

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

// Client talks to the payment provider: invoice creation for checkout and
// payment reversal for refunds.
type Client struct {
	baseURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
}

type CreateInvoiceRequest struct {
	OrderCode   int64  `json:"order_code"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type CreateInvoiceResponse struct {
	PaymentURL    string `json:"payment_url"`
	ProviderTxnID string `json:"transaction_id"`
}

type RefundRequest struct {
	ProviderTxnID string `json:"transaction_id"`
	AmountMinor   int64  `json:"amount"`
}

type RefundResponse struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:   cfg.Billing.BaseURL,
		apiKey:    cfg.Billing.APIKey,
		secretKey: cfg.Billing.SecretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/invoices", req)
	if err != nil {
		return nil, err
	}

	var resp CreateInvoiceResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// Refund asks the provider to reverse part or all of a payment. Callers must
// not mutate local payment state unless this returns without error.
func (c *Client) Refund(ctx context.Context, providerTxnID string, amountMinor int64) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/refunds", RefundRequest{
		ProviderTxnID: providerTxnID,
		AmountMinor:   amountMinor,
	})
	return err
}

// VerifySignature checks the payment webhook HMAC.
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		zap.L().Error("billing request failed",
			zap.String("method", method), zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		zap.L().Error("billing error response",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
			zap.String("body", string(respBody)))
		return nil, fmt.Errorf("billing error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
