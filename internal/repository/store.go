package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"hostctl_backend/internal/model"
)

// ErrNotFound is returned by single-record lookups that match nothing.
var ErrNotFound = errors.New("record not found")

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id uint) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUserFields(ctx context.Context, id uint, fields map[string]interface{}) error
}

type PackageStore interface {
	GetPackage(ctx context.Context, id uint) (*model.Package, error)
	ListPackages(ctx context.Context, enabledOnly bool) ([]model.Package, error)
}

// OrderStore transitions are compare-and-set: the bool result reports
// whether this call performed the change.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *model.SalesOrder) error
	GetOrder(ctx context.Context, id uint) (*model.SalesOrder, error)
	GetOrderByPaymentID(ctx context.Context, method model.PaymentMethod, paymentID string) (*model.SalesOrder, error)
	UpdateOrderFields(ctx context.Context, id uint, fields map[string]interface{}) error
	TransitionOrder(ctx context.Context, id uint, from, to model.SalesOrderStatus) (bool, error)
	// BindOrderSubscription sets the subscription (plus any extra fields)
	// only while the order has none.
	BindOrderSubscription(ctx context.Context, orderID, subscriptionID uint, extra map[string]interface{}) (bool, error)
	// BindOrderInstance links a waiting-deployment order to its instance and
	// marks it deployed.
	BindOrderInstance(ctx context.Context, orderID, instanceID uint) (bool, error)
	ListOrdersAwaitingInstance(ctx context.Context, appName string) ([]model.SalesOrder, error)
	ListOrdersBySubscription(ctx context.Context, subscriptionID uint) ([]model.SalesOrder, error)
	ListOrdersWaitingPayment(ctx context.Context) ([]model.SalesOrder, error)
	AddOrderComment(ctx context.Context, orderID uint, message string, isError bool) error
}

type SubscriptionStore interface {
	// UpsertSubscription writes on (payment_method, subscription_id) and
	// reloads the stored row into sub.
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscription(ctx context.Context, id uint) (*model.Subscription, error)
	GetSubscriptionByGatewayID(ctx context.Context, method model.PaymentMethod, gatewayID string) (*model.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error)
	UpdateSubscriptionFields(ctx context.Context, id uint, fields map[string]interface{}) error
	ClaimSubscriptionCancel(ctx context.Context, id uint, at time.Time) (bool, error)
}

type InstanceStore interface {
	CreateInstance(ctx context.Context, inst *model.Instance) error
	GetInstance(ctx context.Context, id uint) (*model.Instance, error)
	GetInstanceByName(ctx context.Context, name string) (*model.Instance, error)
	ListInstancesBySubscription(ctx context.Context, subscriptionID uint) ([]model.Instance, error)
	ListLiveInstances(ctx context.Context) ([]model.Instance, error)
	TransitionInstance(ctx context.Context, id uint, from []model.InstanceStatus, to model.InstanceStatus) (bool, error)
	BindInstanceSubscription(ctx context.Context, instanceID, subscriptionID uint) (bool, error)
	ClaimCredentialsDelivery(ctx context.Context, id uint, at time.Time) (bool, error)
	ClaimInstanceDeletion(ctx context.Context, id uint, at time.Time) (bool, error)
	// ReleaseInstanceDeletion clears the claim of a delete request that never
	// reached the deployment system.
	ReleaseInstanceDeletion(ctx context.Context, id uint) error
}

type CouponStore interface {
	GetCouponCode(ctx context.Context, code string) (*model.CouponCode, error)
	ReserveCouponCode(ctx context.Context, code string, orderID uint) (bool, error)
	// ConsumeCouponCode moves an unused code, or one reserved by orderID,
	// to consumed.
	ConsumeCouponCode(ctx context.Context, code string, orderID uint, at time.Time) (bool, error)
	// ReleaseCouponCode moves a code reserved by orderID back to unused.
	ReleaseCouponCode(ctx context.Context, code string, orderID uint) (bool, error)
}

type ActivityStore interface {
	CreateActivity(ctx context.Context, activity *model.Activity) error
	FindRunningActivity(ctx context.Context, typ model.ActivityType, appName string) (*model.Activity, error)
	UpdateActivity(ctx context.Context, id uint, fields map[string]interface{}) error
	// ResolveRunningActivities closes every running activity for appName.
	ResolveRunningActivities(ctx context.Context, appName string, status model.ActivityStatus, note string) error
}

type EventStore interface {
	LastEmailEvent(ctx context.Context, category model.EmailCategory, tag string) (*model.EmailEvent, error)
	CreateEmailEvent(ctx context.Context, event *model.EmailEvent) error
	CreateWebhookEventIfNotExists(ctx context.Context, event *model.WebhookEvent) (bool, *model.WebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
	HasWebhookSignal(ctx context.Context, provider, eventType, appName string) (bool, error)
}

type Store interface {
	UserStore
	PackageStore
	OrderStore
	SubscriptionStore
	InstanceStore
	CouponStore
	ActivityStore
	EventStore
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a Store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Models lists every table the store reads or writes, for migration.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Package{},
		&model.Subscription{},
		&model.SalesOrder{},
		&model.OrderComment{},
		&model.Instance{},
		&model.Coupon{},
		&model.CouponCode{},
		&model.Activity{},
		&model.EmailEvent{},
		&model.WebhookEvent{},
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
