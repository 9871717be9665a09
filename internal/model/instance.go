package model

import (
	"time"

	"gorm.io/gorm"
)

type InstanceStatus string

const (
	InstanceDeploying  InstanceStatus = "Deploying"
	InstanceStartingUp InstanceStatus = "Starting Up"
	InstanceOnline     InstanceStatus = "Online"
	InstanceOffline    InstanceStatus = "Offline"
	InstanceDeleting   InstanceStatus = "Deleting"
	InstanceDeleted    InstanceStatus = "Deleted"
)

// Locked reports whether the status is on the deletion path. Locked
// instances accept no further lifecycle transitions besides Deleted.
func (s InstanceStatus) Locked() bool {
	return s == InstanceDeleting || s == InstanceDeleted
}

type Instance struct {
	gorm.Model
	Name        string         `json:"name" gorm:"uniqueIndex;not null"`
	PackageID   uint           `json:"package_id" gorm:"not null"`
	CustomerID  uint           `json:"customer_id" gorm:"index;not null"`
	CompanyName string         `json:"company_name"`
	Status      InstanceStatus `json:"status" gorm:"index;not null;default:'Deploying'"`

	SubscriptionID *uint `json:"subscription_id" gorm:"index"`

	CredentialsSentAt   *time.Time `json:"-"`
	DeletionRequestedAt *time.Time `json:"-"`

	Package Package `json:"package,omitempty" gorm:"foreignKey:PackageID"`
}

func (i *Instance) IsLocked() bool {
	return i.Status.Locked()
}
