package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/config"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
)

// HTTPPlugin talks to a remote payment processor over JSON/HTTP. Declines
// come back as ERROR transactions; transport failures and 5xx responses come
// back as *PluginError.
type HTTPPlugin struct {
	baseURL    string
	httpClient *http.Client
}

var _ ports.PaymentPlugin = (*HTTPPlugin)(nil)

func NewHTTPPlugin(cfg config.PluginConfig) *HTTPPlugin {
	return &HTTPPlugin{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.ConnTimeout,
		},
	}
}

func (c *HTTPPlugin) AuthorizePayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	return c.post(ctx, "/api/v1/authorizations", domain.TransactionTypeAuthorize, req)
}

func (c *HTTPPlugin) CapturePayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	return c.post(ctx, "/api/v1/captures", domain.TransactionTypeCapture, req)
}

func (c *HTTPPlugin) PurchasePayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	return c.post(ctx, "/api/v1/purchases", domain.TransactionTypePurchase, req)
}

func (c *HTTPPlugin) VoidPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	return c.post(ctx, "/api/v1/voids", domain.TransactionTypeVoid, req)
}

func (c *HTTPPlugin) RefundPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	return c.post(ctx, "/api/v1/refunds", domain.TransactionTypeRefund, req)
}

func (c *HTTPPlugin) CreditPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	return c.post(ctx, "/api/v1/credits", domain.TransactionTypeCredit, req)
}

func (c *HTTPPlugin) ChargebackPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	return c.post(ctx, "/api/v1/chargebacks", domain.TransactionTypeChargeback, req)
}

func (c *HTTPPlugin) GetPaymentInfo(ctx context.Context, req domain.PluginRequest) ([]*domain.PluginTransactionInfo, error) {
	url := fmt.Sprintf("%s/api/v1/payments/%s/transactions", c.baseURL, req.PaymentID)
	resp, err := sendRequest[any, paymentInfoResponse](c, ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return nil, err
	}

	infos := make([]*domain.PluginTransactionInfo, 0, len(resp.Transactions))
	for _, t := range resp.Transactions {
		infos = append(infos, t.toInfo(req.PaymentID, t.TransactionType))
	}
	return infos, nil
}

func (c *HTTPPlugin) post(ctx context.Context, path string, tt domain.TransactionType, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	body := newTransactionRequest(req)
	resp, err := sendRequest[transactionRequest, transactionResponse](c, ctx, http.MethodPost, c.baseURL+path, &body, req.TransactionID.String())
	if err != nil {
		if declined, ok := asDecline(err, req, tt); ok {
			return declined, nil
		}
		return nil, err
	}
	return resp.toInfo(req.PaymentID, tt), nil
}

func sendRequest[Req any, Resp any](c *HTTPPlugin, ctx context.Context, method, url string, reqBody *Req, idempotencyKey string) (*Resp, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &PluginError{Code: "transport_error", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Err == "" {
			return nil, &PluginError{Code: "unexpected_response", Message: string(body), StatusCode: resp.StatusCode}
		}
		return nil, &PluginError{
			Code:       errResp.Err,
			Message:    errResp.Message,
			StatusCode: resp.StatusCode,
		}
	}

	var out Resp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return &out, nil
}
