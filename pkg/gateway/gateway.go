package gateway

import (
	"context"
	"fmt"
	"time"

	"hostctl_backend/internal/model"
)

// Discount is the promotion attached to a gateway subscription or payment.
type Discount struct {
	Code           string
	Amount         *int64
	Percentage     *float64
	Currency       string
	DurationMonths *int
}

// Snapshot is a provider subscription normalised into one shape.
// A zero PeriodEnd means the provider did not report one.
type Snapshot struct {
	ID          string
	CustomerRef string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Canceled    bool
	Currency    string
	Amount      int64
	Period      string
	Discount    *Discount
}

type CheckoutRequest struct {
	OrderReference string
	Email          string
	PlanRef        string
	Amount         int64
	Currency       string
	CouponCode     string
	Discount       *Discount
	SuccessURL     string
	CancelURL      string
}

type CheckoutSession struct {
	PaymentID string
	URL       string
	ClientKey string
}

// Adapter is implemented once per payment provider.
type Adapter interface {
	Method() model.PaymentMethod
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	// VerifyPayment reports whether a checkout id / transaction reference has
	// been paid. Network and 4xx failures are reported as false.
	VerifyPayment(ctx context.Context, paymentID string) (bool, error)
	// SubscriptionFromPayment resolves the subscription created by a paid
	// checkout. It returns nil when none exists yet.
	SubscriptionFromPayment(ctx context.Context, paymentID string) (*Snapshot, error)
	// FetchSubscription returns nil when the provider has no such record.
	FetchSubscription(ctx context.Context, subscriptionID string) (*Snapshot, error)
	// Cancel stops renewal. Already-canceled subscriptions are a success.
	Cancel(ctx context.Context, subscriptionID string) error
}

// PendingPaymentResolver is implemented by providers where a successful
// payment has to be turned into a subscription in a second step.
type PendingPaymentResolver interface {
	// ResolvePendingPayment returns the subscription id now backing
	// currentSubscriptionID after paymentID, or "" if the payment is not
	// settled yet.
	ResolvePendingPayment(ctx context.Context, paymentID, currentSubscriptionID string) (string, error)
}

// Registry dispatches on the payment method of a record.
type Registry struct {
	adapters map[model.PaymentMethod]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.PaymentMethod]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Method()] = a
	}
	return r
}

func (r *Registry) For(method model.PaymentMethod) (Adapter, error) {
	a, ok := r.adapters[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	return a, nil
}
