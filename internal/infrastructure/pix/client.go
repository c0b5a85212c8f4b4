// Package pix talks to the PIX charge provider.
package pix

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

	"go.uber.org/zap"

	"dizimo/internal/domain"
)

const chargeTypeDynamic = "DYNAMIC"

// Client issues, fetches and deletes charges. Each call is attempted once;
// retry policy belongs to the caller.
type Client struct {
	baseURL    string
	appID      string
	expiresIn  time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithExpiresIn(d time.Duration) ClientOption {
	return func(c *Client) {
		c.expiresIn = d
	}
}

func NewClient(baseURL, appID string, timeout time.Duration, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		appID:      appID,
		expiresIn:  30 * time.Minute,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createChargeRequest struct {
	Value         int64           `json:"value"`
	Customer      domain.Customer `json:"customer"`
	CorrelationID string          `json:"correlationID"`
	ExpireIn      int             `json:"expireIn"`
	Type          string          `json:"type"`
}

type chargeEnvelope struct {
	Charge *chargePayload `json:"charge"`
}

type chargePayload struct {
	CorrelationID string              `json:"correlationID"`
	Value         int64               `json:"value"`
	Status        domain.ChargeStatus `json:"status"`
	ExpiresDate   string              `json:"expiresDate"`
	ExpiresIn     int                 `json:"expiresIn"`
	CreatedAt     string              `json:"createdAt"`
	BRCode        string              `json:"brCode"`
	QRCodeImage   string              `json:"qrCodeImage"`
	Customer      *domain.Customer    `json:"customer"`
}

func (p *chargePayload) toDomain() *domain.ChargeInfo {
	return &domain.ChargeInfo{
		CorrelationID: p.CorrelationID,
		Value:         p.Value,
		Status:        p.Status,
		ExpiresDate:   p.ExpiresDate,
		ExpiresIn:     p.ExpiresIn,
		CreatedAt:     p.CreatedAt,
		BRCode:        p.BRCode,
		QRCodeImage:   p.QRCodeImage,
		Customer:      p.Customer,
	}
}

func (c *Client) CreateCharge(ctx context.Context, value int64, customer domain.Customer, correlationID string) (*domain.ChargeInfo, error) {
	body, err := json.Marshal(createChargeRequest{
		Value:         value,
		Customer:      customer,
		CorrelationID: correlationID,
		ExpireIn:      int(c.expiresIn.Seconds()),
		Type:          chargeTypeDynamic,
	})
	if err != nil {
		return nil, &domain.GatewayError{Op: "create charge", Err: err}
	}

	charge, err := c.doCharge(ctx, "create charge", http.MethodPost, c.baseURL, body)
	if err != nil {
		return nil, err
	}
	if charge.CorrelationID == "" {
		charge.CorrelationID = correlationID
	}
	c.logger.Info("PIX charge created",
		zap.String("correlation_id", correlationID),
		zap.Int64("value", charge.Value),
		zap.String("status", string(charge.Status)),
	)
	return charge, nil
}

func (c *Client) GetCharge(ctx context.Context, correlationID string) (*domain.ChargeInfo, error) {
	charge, err := c.doCharge(ctx, "get charge", http.MethodGet, c.chargeURL(correlationID), nil)
	if err != nil {
		return nil, err
	}
	if charge.CorrelationID == "" {
		charge.CorrelationID = correlationID
	}
	return charge, nil
}

func (c *Client) DeleteCharge(ctx context.Context, correlationID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.chargeURL(correlationID), nil)
	if err != nil {
		return &domain.GatewayError{Op: "delete charge", Err: err}
	}
	defer resp.Body.Close()

	// Deleting a charge the provider already dropped is not an error.
	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("PIX charge already gone", zap.String("correlation_id", correlationID))
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("delete charge", resp)
	}
	c.logger.Info("PIX charge deleted", zap.String("correlation_id", correlationID))
	return nil
}

func (c *Client) chargeURL(correlationID string) string {
	return c.baseURL + "/" + url.PathEscape(correlationID)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.appID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func (c *Client) doCharge(ctx context.Context, op, method, target string, body []byte) (*domain.ChargeInfo, error) {
	resp, err := c.do(ctx, method, target, body)
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if method == http.MethodGet && resp.StatusCode == http.StatusNotFound {
		return nil, &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: domain.ErrChargeNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(op, resp)
	}

	var envelope chargeEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if envelope.Charge == nil {
		return nil, &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("response has no charge")}
	}
	return envelope.Charge.toDomain(), nil
}

func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &domain.GatewayError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(msg))),
	}
}
