package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tipwallet/internal/config"
)

// HTTPGateway 处理商 HTTP 适配器
type HTTPGateway struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPGateway(cfg *config.GatewayConfig) *HTTPGateway {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPGateway{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type createIntentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (g *HTTPGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency string) (*PaymentIntent, error) {
	var intent PaymentIntent
	err := g.post(ctx, "/v1/payment_intents", createIntentRequest{Amount: amount, Currency: currency}, &intent)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

type createTransferRequest struct {
	AccountID      string `json:"account_id"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type createTransferResponse struct {
	ExternalRef string `json:"external_ref"`
}

func (g *HTTPGateway) CreateTransfer(ctx context.Context, accountID string, amount int64, idemKey string) (string, error) {
	var resp createTransferResponse
	err := g.post(ctx, "/v1/transfers", createTransferRequest{
		AccountID:      accountID,
		Amount:         amount,
		IdempotencyKey: idemKey,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ExternalRef, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	payload, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(respBody)
}
