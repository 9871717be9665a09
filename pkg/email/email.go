// pkg/email/email.go
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const defaultResendURL = "https://api.resend.com/emails"

type EmailService struct {
	apiKey     string
	from       string
	endpoint   string
	templates  *template.Template
	httpClient *http.Client
}

type EmailData struct {
	From    string     `json:"from"`
	To      string     `json:"to"`
	Subject string     `json:"subject"`
	Html    string     `json:"html"`
	Tags    []EmailTag `json:"tags,omitempty"`
}

type EmailTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Template data structures
type InstanceData struct {
	CompanyName  string
	InstanceName string
	InstanceURL  string
	PackageName  string
}

type PaymentReminderData struct {
	InstanceData
	PeriodEnd  time.Time
	ExpiryAt   time.Time
	DaysLeft   int
	BillingURL string
}

func NewEmailService(apiKey, from string) (*EmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("error loading email templates: %v", err)
	}

	if from == "" {
		from = "Hosting <noreply@example.com>"
	}
	return &EmailService{
		apiKey:     apiKey,
		from:       from,
		endpoint:   defaultResendURL,
		templates:  templates,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// WithEndpoint points the service at another Resend-compatible URL.
func (s *EmailService) WithEndpoint(endpoint string) *EmailService {
	s.endpoint = endpoint
	return s
}

func (s *EmailService) sendTemplateEmail(ctx context.Context, to, subject, templateName, tag string, data interface{}) error {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("template execution error: %v", err)
	}

	emailData := EmailData{
		From:    s.from,
		To:      to,
		Subject: subject,
		Html:    body.String(),
	}
	if tag != "" {
		emailData.Tags = []EmailTag{{Name: "record", Value: tag}}
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("error marshaling email data: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending email: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("error reading response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("resend API error: %s", string(respBody))
	}

	log.Infof("[Email] sent %q to %s", templateName, to)
	return nil
}

// Email sending methods
func (s *EmailService) SendCredentialsReady(ctx context.Context, to, tag string, data InstanceData) error {
	subject := fmt.Sprintf("Your instance %s is ready", data.InstanceName)
	return s.sendTemplateEmail(ctx, to, subject, "credentials_ready.html", tag, data)
}

func (s *EmailService) SendCredentialsError(ctx context.Context, to, tag string, data InstanceData) error {
	subject := fmt.Sprintf("Your instance %s is online", data.InstanceName)
	return s.sendTemplateEmail(ctx, to, subject, "credentials_error.html", tag, data)
}

func (s *EmailService) SendPaymentReminder(ctx context.Context, to, tag string, data PaymentReminderData) error {
	subject := fmt.Sprintf("Payment overdue for %s", data.InstanceName)
	return s.sendTemplateEmail(ctx, to, subject, "payment_reminder.html", tag, data)
}

func (s *EmailService) SendSubscriptionCancelled(ctx context.Context, to, tag string, data InstanceData) error {
	subject := fmt.Sprintf("Subscription for %s has been cancelled", data.InstanceName)
	return s.sendTemplateEmail(ctx, to, subject, "subscription_cancelled.html", tag, data)
}
