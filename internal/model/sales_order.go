package model

import "gorm.io/gorm"

type SalesOrderStatus string

const (
	OrderWaitingPayment       SalesOrderStatus = "Waiting Payment"
	OrderWaitingConfiguration SalesOrderStatus = "Waiting Configuration"
	OrderWaitingDeployment    SalesOrderStatus = "Waiting Deployment"
	OrderDeployed             SalesOrderStatus = "Deployed"
)

// OrderStatusInfo is the billing metadata mirrored to the ERP for each status.
type OrderStatusInfo struct {
	BillingStatus string
	ERPStatus     string
	PercentBilled int
}

var orderStatusInfo = map[SalesOrderStatus]OrderStatusInfo{
	OrderWaitingPayment:       {BillingStatus: "Not Billed", ERPStatus: "To Bill", PercentBilled: 0},
	OrderWaitingConfiguration: {BillingStatus: "Fully Billed", ERPStatus: "On Hold", PercentBilled: 100},
	OrderWaitingDeployment:    {BillingStatus: "Fully Billed", ERPStatus: "To Deliver", PercentBilled: 100},
	OrderDeployed:             {BillingStatus: "Fully Billed", ERPStatus: "Completed", PercentBilled: 100},
}

func (s SalesOrderStatus) Info() OrderStatusInfo {
	return orderStatusInfo[s]
}

type SalesOrder struct {
	gorm.Model
	Reference     string           `json:"reference" gorm:"uniqueIndex;size:36;not null"`
	Status        SalesOrderStatus `json:"status" gorm:"index;not null"`
	PaymentMethod PaymentMethod    `json:"payment_method" gorm:"not null"`
	PaymentID     string           `json:"-" gorm:"index"`

	PackageID   uint   `json:"package_id" gorm:"not null"`
	CustomerID  uint   `json:"customer_id" gorm:"index;not null"`
	CompanyName string `json:"company_name"`
	AppName     string `json:"app_name" gorm:"index"`

	InstanceID     *uint `json:"instance_id"`
	SubscriptionID *uint `json:"subscription_id"`

	CouponCode         string   `json:"coupon_code,omitempty"`
	DiscountCode       string   `json:"discount_code,omitempty"`
	DiscountAmount     *int64   `json:"discount_amount,omitempty"`
	DiscountPercentage *float64 `json:"discount_percentage,omitempty"`
	DiscountCurrency   string   `json:"discount_currency,omitempty"`
	DiscountDuration   *int     `json:"discount_duration,omitempty"`

	ExternalReference string `json:"external_reference"` // ERP document code

	Package  Package        `json:"package,omitempty" gorm:"foreignKey:PackageID"`
	Comments []OrderComment `json:"comments,omitempty" gorm:"foreignKey:OrderID"`
}

// OrderComment is a diagnostic note attached to an order.
type OrderComment struct {
	gorm.Model
	OrderID uint   `json:"order_id" gorm:"index;not null"`
	Message string `json:"message" gorm:"type:text"`
	IsError bool   `json:"is_error"`
}
