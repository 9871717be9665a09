package gateway

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
)

const defaultPaystackBaseURL = "https://api.paystack.co"

// PaystackAPIError is a non-2xx answer from the Paystack API.
type PaystackAPIError struct {
	StatusCode int
	Message    string
}

func (e *PaystackAPIError) Error() string {
	return fmt.Sprintf("paystack api error: status=%d message=%s", e.StatusCode, e.Message)
}

// PaystackClient is a minimal REST client for the endpoints the adapter uses.
type PaystackClient struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
}

func NewPaystackClient(secretKey, baseURL string) *PaystackClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultPaystackBaseURL
	}
	return &PaystackClient{
		SecretKey: secretKey,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// paystackID accepts both numeric and string identifiers.
type paystackID string

func (id *paystackID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*id = paystackID(s)
	return nil
}

type paystackCustomer struct {
	ID           paystackID `json:"id"`
	CustomerCode string     `json:"customer_code"`
	Email        string     `json:"email"`
}

type paystackPlan struct {
	ID       paystackID `json:"id"`
	PlanCode string     `json:"plan_code"`
	Interval string     `json:"interval"`
	Currency string     `json:"currency"`
	Amount   int64      `json:"amount"`
}

type paystackAuthorization struct {
	AuthorizationCode string `json:"authorization_code"`
}

type paystackTransaction struct {
	Status        string                `json:"status"`
	Reference     string                `json:"reference"`
	Amount        int64                 `json:"amount"`
	Currency      string                `json:"currency"`
	Authorization paystackAuthorization `json:"authorization"`
	Customer      paystackCustomer      `json:"customer"`
	PlanObject    paystackPlan          `json:"plan_object"`
	Metadata      json.RawMessage       `json:"metadata"`
}

// metadata decodes the transaction metadata. Paystack sends an empty string
// when none was attached.
func (t paystackTransaction) metadata() map[string]interface{} {
	out := map[string]interface{}{}
	if len(t.Metadata) == 0 || t.Metadata[0] != '{' {
		return out
	}
	_ = json.Unmarshal(t.Metadata, &out)
	return out
}

type paystackSubscription struct {
	ID               paystackID            `json:"id"`
	SubscriptionCode string                `json:"subscription_code"`
	EmailToken       string                `json:"email_token"`
	Status           string                `json:"status"`
	Amount           int64                 `json:"amount"`
	CreatedAt        string                `json:"createdAt"`
	NextPaymentDate  *string               `json:"next_payment_date"`
	Plan             paystackPlan          `json:"plan"`
	Customer         paystackCustomer      `json:"customer"`
	Authorization    paystackAuthorization `json:"authorization"`
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

func (c *PaystackClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
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
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var env paystackEnvelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = string(raw)
		}
		return &PaystackAPIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode paystack response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode paystack data: %w", err)
	}
	return nil
}

func (c *PaystackClient) InitializeTransaction(ctx context.Context, payload map[string]interface{}) (*paystackInitializeResponse, error) {
	var out paystackInitializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (*paystackTransaction, error) {
	var out paystackTransaction
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PaystackClient) FetchSubscription(ctx context.Context, idOrCode string) (*paystackSubscription, error) {
	var out paystackSubscription
	if err := c.do(ctx, http.MethodGet, "/subscription/"+url.PathEscape(idOrCode), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PaystackClient) ListSubscriptions(ctx context.Context, customerID, planID string) ([]paystackSubscription, error) {
	q := url.Values{}
	if customerID != "" {
		q.Set("customer", customerID)
	}
	if planID != "" {
		q.Set("plan", planID)
	}
	var out []paystackSubscription
	if err := c.do(ctx, http.MethodGet, "/subscription?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PaystackClient) CreateSubscription(ctx context.Context, customer, plan, authorization string) (*paystackSubscription, error) {
	payload := map[string]interface{}{
		"customer":      customer,
		"plan":          plan,
		"authorization": authorization,
	}
	var out paystackSubscription
	if err := c.do(ctx, http.MethodPost, "/subscription", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PaystackClient) DisableSubscription(ctx context.Context, code, emailToken string) error {
	payload := map[string]interface{}{
		"code":  code,
		"token": emailToken,
	}
	return c.do(ctx, http.MethodPost, "/subscription/disable", payload, nil)
}
