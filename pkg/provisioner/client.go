package provisioner

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

// ErrInvalidRequest is returned when the deployment system rejects a request
// as malformed (name taken, unknown package, ...).
var ErrInvalidRequest = errors.New("invalid deployment request")

type Request struct {
	AppName           string `json:"app_name"`
	Package           string `json:"package"`
	Region            string `json:"region"`
	OrderReference    string `json:"order_reference"`
	ActivityReference string `json:"activity_reference"`
}

// Client talks to the deployment controller over JSON/HTTP.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) RequestCreate(ctx context.Context, req Request) error {
	return c.send(ctx, http.MethodPost, "/instances", req)
}

func (c *Client) RequestDelete(ctx context.Context, appName string) error {
	return c.send(ctx, http.MethodDelete, "/instances/"+url.PathEscape(appName), nil)
}

func (c *Client) send(ctx context.Context, method, path string, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("provisioner %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.TrimSpace(string(respBody)))
	default:
		return fmt.Errorf("provisioner %s %s: status=%d body=%s", method, path, resp.StatusCode, string(respBody))
	}
}
