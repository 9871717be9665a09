package model

import (
	"time"

	"gorm.io/gorm"
)

// Subscription mirrors the recurring billing record held by a payment gateway.
// (PaymentMethod, SubscriptionID) is the upsert key.
type Subscription struct {
	gorm.Model
	SubscriptionID string        `json:"subscription_id" gorm:"uniqueIndex:idx_subscription_gateway;not null"`
	PaymentMethod  PaymentMethod `json:"payment_method" gorm:"uniqueIndex:idx_subscription_gateway;not null"`
	CustomerRef    string        `json:"customer_ref"`
	CustomerID     uint          `json:"customer_id" gorm:"index"`

	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	IsActive    bool      `json:"is_active" gorm:"index"`
	Currency    string    `json:"currency"`
	Amount      int64     `json:"amount"`
	Period      string    `json:"period"`

	// PaymentID holds a transaction reference that still has to be turned
	// into a gateway subscription (Paystack payment changes).
	PaymentID         string     `json:"-"`
	CancelRequestedAt *time.Time `json:"cancel_requested_at"`
}
