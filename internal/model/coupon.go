package model

import (
	"time"

	"gorm.io/gorm"
)

type Coupon struct {
	gorm.Model
	Name               string   `json:"name" gorm:"uniqueIndex;not null"`
	DiscountAmount     *int64   `json:"discount_amount"`
	DiscountPercentage *float64 `json:"discount_percentage"`
	Currency           string   `json:"currency"`
	DurationMonths     int      `json:"duration_months"`
}

type CouponCodeStatus string

const (
	CouponUnused   CouponCodeStatus = "unused"
	CouponReserved CouponCodeStatus = "reserved"
	CouponConsumed CouponCodeStatus = "consumed"
)

// CouponCode is a single-use code (COUPONNAME-XXXXX) backed by a Coupon.
type CouponCode struct {
	gorm.Model
	Code       string           `json:"code" gorm:"uniqueIndex;not null"`
	CouponID   uint             `json:"coupon_id" gorm:"index;not null"`
	Status     CouponCodeStatus `json:"status" gorm:"index;not null;default:'unused'"`
	OrderID    *uint            `json:"order_id"`
	ConsumedAt *time.Time       `json:"consumed_at"`

	Coupon Coupon `json:"coupon,omitempty" gorm:"foreignKey:CouponID"`
}
