package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EmailCategory string

const (
	EmailCredentials      EmailCategory = "credentials"
	EmailCredentialsError EmailCategory = "credentials_error"
	EmailPaymentReminder  EmailCategory = "payment_reminder"
	EmailCancelled        EmailCategory = "subscription_cancelled"
)

// EmailEvent is the send log used to gate repeated emails. Tag scopes the
// event to a record, e.g. "instance-42".
type EmailEvent struct {
	ID        uint          `gorm:"primaryKey"`
	Category  EmailCategory `gorm:"index:idx_email_event_tag;not null"`
	Tag       string        `gorm:"index:idx_email_event_tag;not null"`
	Recipient string        `gorm:"not null"`
	Subject   string
	SentAt    time.Time `gorm:"index;not null"`
}

const (
	ProviderStripe      = "stripe"
	ProviderPaystack    = "paystack"
	ProviderProvisioner = "provisioner"
)

const (
	EventInstanceCreated = "instance.created"
	EventInstanceDeleted = "instance.deleted"
)

// WebhookEvent is an inbound callback. (Provider, ProviderEventID) is unique,
// which makes intake idempotent.
type WebhookEvent struct {
	gorm.Model
	Provider        string         `gorm:"uniqueIndex:idx_webhook_provider_event;not null"`
	ProviderEventID string         `gorm:"uniqueIndex:idx_webhook_provider_event;not null"`
	EventType       string         `gorm:"index;not null"`
	AppName         string         `gorm:"index"`
	Payload         datatypes.JSON `json:"-"`
	ProcessedAt     *time.Time
	ProcessingError string `gorm:"type:text"`
}
