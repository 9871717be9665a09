package model

import "gorm.io/gorm"

type PaymentMethod string

const (
	PaymentStripe   PaymentMethod = "Stripe"
	PaymentPaystack PaymentMethod = "Paystack"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentStripe || m == PaymentPaystack
}

type Periodicity string

const (
	PeriodMonthly Periodicity = "monthly"
	PeriodYearly  Periodicity = "yearly"
)

// Package is a sellable hosting plan. Prices are stored in minor units.
type Package struct {
	gorm.Model
	Name             string      `json:"name" gorm:"uniqueIndex;not null"`
	Description      string      `json:"description"`
	Price            int64       `json:"price" gorm:"not null"`
	Currency         string      `json:"currency" gorm:"size:3;not null"`
	Periodicity      Periodicity `json:"periodicity" gorm:"not null;default:'monthly'"`
	StripePriceID    string      `json:"-"`
	PaystackPlanCode string      `json:"-"`
	VaultPath        string      `json:"-"` // credential prefix for instances of this package
	Enabled          bool        `json:"enabled" gorm:"default:true"`
}

// PlanRef returns the gateway-side price or plan identifier for the method.
func (p *Package) PlanRef(method PaymentMethod) string {
	switch method {
	case PaymentStripe:
		return p.StripePriceID
	case PaymentPaystack:
		return p.PaystackPlanCode
	}
	return ""
}
