package erp

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

	"github.com/google/uuid"
)

// SalesOrder is the ERP projection of a local order.
type SalesOrder struct {
	Code          string
	Reference     string
	Customer      string
	Company       string
	Item          string
	Rate          float64
	Currency      string
	BillingStatus string
	Status        string
	PercentBilled int
}

// Pusher mirrors orders into the ERP and returns the ERP document code.
type Pusher interface {
	PushSalesOrder(ctx context.Context, order SalesOrder) (string, error)
}

// Client is an ERPNext REST client using token authentication.
type Client struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		APISecret: apiSecret,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) PushSalesOrder(ctx context.Context, order SalesOrder) (string, error) {
	doc := map[string]interface{}{
		"customer":       order.Customer,
		"company":        order.Company,
		"po_no":          order.Reference,
		"currency":       order.Currency,
		"billing_status": order.BillingStatus,
		"status":         order.Status,
		"per_billed":     order.PercentBilled,
		"items": []map[string]interface{}{
			{"item_code": order.Item, "qty": 1, "rate": order.Rate},
		},
	}

	method, path := http.MethodPost, "/api/resource/Sales%20Order"
	if order.Code != "" {
		method, path = http.MethodPut, path+"/"+url.PathEscape(order.Code)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.APIKey, c.APISecret))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("erp push %s: %w", order.Reference, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("erp push %s: status=%d body=%s", order.Reference, resp.StatusCode, string(body))
	}

	var out struct {
		Data struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("erp push %s: decode: %w", order.Reference, err)
	}
	if out.Data.Name == "" {
		return order.Code, nil
	}
	return out.Data.Name, nil
}

// Local stands in for the ERP when none is configured and issues local
// document codes.
type Local struct{}

func (Local) PushSalesOrder(_ context.Context, order SalesOrder) (string, error) {
	if order.Code != "" {
		return order.Code, nil
	}
	return "SO-" + strings.ToUpper(uuid.NewString()[:8]), nil
}
