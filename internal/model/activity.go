package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActivityType string

const (
	ActivityCreateInstance ActivityType = "create_instance"
	ActivityDeleteInstance ActivityType = "delete_instance"
)

type ActivityStatus string

const (
	ActivityRunning ActivityStatus = "running"
	ActivitySuccess ActivityStatus = "success"
	ActivityFailed  ActivityStatus = "failed"
)

// Activity records a request sent to the deployment system. A running
// create activity is the pending deployment reference of an order.
type Activity struct {
	gorm.Model
	Reference  string         `json:"reference" gorm:"uniqueIndex;size:36;not null"`
	Type       ActivityType   `json:"type" gorm:"index;not null"`
	AppName    string         `json:"app_name" gorm:"index;not null"`
	OrderID    *uint          `json:"order_id" gorm:"index"`
	InstanceID *uint          `json:"instance_id"`
	Status     ActivityStatus `json:"status" gorm:"index;not null;default:'running'"`
	Note       string         `json:"note" gorm:"type:text"`
	Payload    datatypes.JSON `json:"payload"`
}
