package service

import (
	"context"
	"errors"
	"time"

	"hostctl_backend/internal/repository"
	"hostctl_backend/pkg/alert"
	"hostctl_backend/pkg/email"
	"hostctl_backend/pkg/erp"
	"hostctl_backend/pkg/gateway"
	"hostctl_backend/pkg/lock"
	"hostctl_backend/pkg/provisioner"
	"hostctl_backend/pkg/subscription"
	"hostctl_backend/pkg/utils/vault"
)

var (
	ErrInvalidDeployment   = errors.New("invalid deployment")
	ErrCredentialsNotFound = vault.ErrCredentialsNotFound
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrActivityNotFound    = errors.New("activity not found")
	ErrPackageUnavailable  = errors.New("package unavailable")
	ErrCouponUnavailable   = errors.New("coupon code unavailable")
)

type Mailer interface {
	SendCredentialsReady(ctx context.Context, to, tag string, data email.InstanceData) error
	SendCredentialsError(ctx context.Context, to, tag string, data email.InstanceData) error
	SendPaymentReminder(ctx context.Context, to, tag string, data email.PaymentReminderData) error
	SendSubscriptionCancelled(ctx context.Context, to, tag string, data email.InstanceData) error
}

type Vault interface {
	Credentials(ctx context.Context, prefix, instanceName string) (map[string]string, error)
}

type Deployer interface {
	RequestCreate(ctx context.Context, req provisioner.Request) error
	RequestDelete(ctx context.Context, appName string) error
}

type Prober interface {
	Probe(ctx context.Context, url string) bool
}

type Deps struct {
	Store    repository.Store
	Gateways *gateway.Registry
	Mailer   Mailer
	Vault    Vault
	Deployer Deployer
	Prober   Prober
	ERP      erp.Pusher
	Locker   lock.Locker
	Alerts   alert.Notifier
	Policy   subscription.Policy

	ClusterDomain string
	DefaultRegion string
	FrontendURL   string

	Now func() time.Time
}

// Services wires the lifecycle services together. The dependency order is
// one-directional: Reconciler uses Instances and Orders, Instances use
// Orders and Subscriptions, Orders use Subscriptions and Coupons.
type Services struct {
	Coupons       *CouponService
	Subscriptions *SubscriptionService
	Orders        *OrderService
	Instances     *InstanceService
	Reconciler    *Reconciler
	Provisioning  *ProvisioningService
}

func New(d Deps) *Services {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocal()
	}
	if d.Alerts == nil {
		d.Alerts = alert.Nop{}
	}
	if d.ERP == nil {
		d.ERP = erp.Local{}
	}

	deps := &d
	coupons := &CouponService{deps: deps}
	subs := &SubscriptionService{deps: deps}
	orders := &OrderService{deps: deps, subs: subs, coupons: coupons}
	instances := &InstanceService{deps: deps, subs: subs, orders: orders}
	return &Services{
		Coupons:       coupons,
		Subscriptions: subs,
		Orders:        orders,
		Instances:     instances,
		Reconciler:    &Reconciler{deps: deps, subs: subs, orders: orders, instances: instances, coupons: coupons},
		Provisioning:  &ProvisioningService{deps: deps, instances: instances},
	}
}
