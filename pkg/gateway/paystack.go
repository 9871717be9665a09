package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"hostctl_backend/internal/model"
)

const (
	metaOrderReference     = "order_reference"
	metaPlanCode           = "plan_code"
	metaCouponCode         = "coupon_code"
	metaDiscountAmount     = "discount_amount"
	metaDiscountPercentage = "discount_percentage"
	metaDiscountCurrency   = "discount_currency"
	metaDiscountDuration   = "discount_duration"
)

var paystackCanceledStatuses = map[string]bool{
	"cancel":       true,
	"cancelled":    true,
	"non-renewing": true,
}

type PaystackAdapter struct {
	client *PaystackClient
}

func NewPaystackAdapter(client *PaystackClient) *PaystackAdapter {
	return &PaystackAdapter{client: client}
}

func (a *PaystackAdapter) Method() model.PaymentMethod {
	return model.PaymentPaystack
}

// CreateCheckout initializes a transaction. Discounted checkouts charge the
// reduced amount without a plan; the subscription is then created from the
// card authorization once the payment settles.
func (a *PaystackAdapter) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	metadata := map[string]interface{}{
		metaOrderReference: req.OrderReference,
		metaPlanCode:       req.PlanRef,
	}
	payload := map[string]interface{}{
		"email":        req.Email,
		"amount":       req.Amount,
		"currency":     req.Currency,
		"callback_url": req.SuccessURL,
	}
	if d := req.Discount; d != nil {
		metadata[metaCouponCode] = d.Code
		metadata[metaDiscountCurrency] = d.Currency
		if d.Amount != nil {
			metadata[metaDiscountAmount] = *d.Amount
		}
		if d.Percentage != nil {
			metadata[metaDiscountPercentage] = *d.Percentage
		}
		if d.DurationMonths != nil {
			metadata[metaDiscountDuration] = *d.DurationMonths
		}
	} else {
		payload["plan"] = req.PlanRef
	}
	payload["metadata"] = metadata

	resp, err := a.client.InitializeTransaction(ctx, payload)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: initialize transaction: %v", ErrGateway, err)
	}
	return CheckoutSession{
		PaymentID: resp.Reference,
		URL:       resp.AuthorizationURL,
		ClientKey: resp.AccessCode,
	}, nil
}

func (a *PaystackAdapter) VerifyPayment(ctx context.Context, paymentID string) (bool, error) {
	tx, err := a.client.VerifyTransaction(ctx, paymentID)
	if err != nil {
		if paystackExpectedFailure(err) {
			log.Warnf("[Paystack] verify %s: %v", paymentID, err)
			return false, nil
		}
		return false, fmt.Errorf("%w: verify transaction %s: %v", ErrGateway, paymentID, err)
	}
	return tx.Status == "success", nil
}

func (a *PaystackAdapter) SubscriptionFromPayment(ctx context.Context, paymentID string) (*Snapshot, error) {
	tx, err := a.client.VerifyTransaction(ctx, paymentID)
	if err != nil {
		if paystackStatus(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: verify transaction %s: %v", ErrGateway, paymentID, err)
	}
	if tx.Status != "success" {
		return nil, nil
	}

	meta := tx.metadata()
	planCode := tx.PlanObject.PlanCode
	if planCode == "" {
		planCode = metaString(meta, metaPlanCode)
	}
	if planCode == "" {
		return nil, fmt.Errorf("%w: transaction %s carries no plan", ErrInconsistent, paymentID)
	}

	sub, err := a.findByAuthorization(ctx, tx, planCode)
	if err != nil {
		return nil, err
	}
	if sub == nil && tx.PlanObject.PlanCode == "" {
		sub, err = a.createFromTransaction(ctx, tx, planCode)
		if err != nil {
			return nil, err
		}
	}
	if sub == nil {
		return nil, nil
	}

	snap := paystackSnapshot(sub)
	snap.Discount = metaDiscount(meta)
	return snap, nil
}

func (a *PaystackAdapter) FetchSubscription(ctx context.Context, subscriptionID string) (*Snapshot, error) {
	sub, err := a.fetch(ctx, subscriptionID)
	if err != nil || sub == nil {
		return nil, err
	}
	return paystackSnapshot(sub), nil
}

func (a *PaystackAdapter) Cancel(ctx context.Context, subscriptionID string) error {
	sub, err := a.fetch(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil || paystackInactive(sub.Status) {
		return nil
	}

	if err := a.client.DisableSubscription(ctx, sub.SubscriptionCode, sub.EmailToken); err != nil {
		var apiErr *PaystackAPIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			// Paystack answers 400 for subscriptions that are already inactive.
			if again, ferr := a.fetch(ctx, subscriptionID); ferr == nil && (again == nil || paystackInactive(again.Status)) {
				return nil
			}
		}
		return fmt.Errorf("%w: disable subscription %s: %v", ErrGateway, subscriptionID, err)
	}
	return nil
}

// ResolvePendingPayment binds a settled replacement payment to a
// subscription. An existing subscription on the same card authorization is
// reused; otherwise the current one is canceled before a new one is created.
func (a *PaystackAdapter) ResolvePendingPayment(ctx context.Context, paymentID, currentSubscriptionID string) (string, error) {
	tx, err := a.client.VerifyTransaction(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("%w: verify transaction %s: %v", ErrGateway, paymentID, err)
	}
	if tx.Status != "success" {
		return "", nil
	}
	if tx.Authorization.AuthorizationCode == "" {
		return "", fmt.Errorf("%w: transaction %s has no authorization", ErrInconsistent, paymentID)
	}

	current, err := a.fetch(ctx, currentSubscriptionID)
	if err != nil {
		return "", err
	}
	planCode := metaString(tx.metadata(), metaPlanCode)
	if current != nil && current.Plan.PlanCode != "" {
		planCode = current.Plan.PlanCode
	}
	if planCode == "" {
		return "", fmt.Errorf("%w: no plan for subscription %s", ErrInconsistent, currentSubscriptionID)
	}

	existing, err := a.findByAuthorization(ctx, tx, planCode)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.SubscriptionCode, nil
	}

	if current != nil {
		if err := a.Cancel(ctx, currentSubscriptionID); err != nil {
			return "", err
		}
	}
	created, err := a.createFromTransaction(ctx, tx, planCode)
	if err != nil {
		return "", err
	}
	log.Infof("[Paystack] replaced subscription %s with %s", currentSubscriptionID, created.SubscriptionCode)
	return created.SubscriptionCode, nil
}

func (a *PaystackAdapter) fetch(ctx context.Context, idOrCode string) (*paystackSubscription, error) {
	sub, err := a.client.FetchSubscription(ctx, idOrCode)
	if err != nil {
		if paystackStatus(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: fetch subscription %s: %v", ErrGateway, idOrCode, err)
	}
	return sub, nil
}

func (a *PaystackAdapter) findByAuthorization(ctx context.Context, tx *paystackTransaction, planCode string) (*paystackSubscription, error) {
	subs, err := a.client.ListSubscriptions(ctx, string(tx.Customer.ID), "")
	if err != nil {
		return nil, fmt.Errorf("%w: list subscriptions: %v", ErrGateway, err)
	}
	for i := range subs {
		s := subs[i]
		if s.Plan.PlanCode != planCode || paystackInactive(s.Status) {
			continue
		}
		if s.Authorization.AuthorizationCode == tx.Authorization.AuthorizationCode {
			return &s, nil
		}
	}
	return nil, nil
}

func (a *PaystackAdapter) createFromTransaction(ctx context.Context, tx *paystackTransaction, planCode string) (*paystackSubscription, error) {
	customer := tx.Customer.CustomerCode
	if customer == "" {
		customer = tx.Customer.Email
	}
	created, err := a.client.CreateSubscription(ctx, customer, planCode, tx.Authorization.AuthorizationCode)
	if err != nil {
		return nil, fmt.Errorf("%w: create subscription: %v", ErrGateway, err)
	}
	// The create response omits period dates.
	if full, err := a.fetch(ctx, created.SubscriptionCode); err == nil && full != nil {
		return full, nil
	}
	return created, nil
}

func paystackSnapshot(sub *paystackSubscription) *Snapshot {
	snap := &Snapshot{
		ID:          sub.SubscriptionCode,
		CustomerRef: sub.Customer.CustomerCode,
		Canceled:    paystackCanceledStatuses[strings.ToLower(sub.Status)],
		Currency:    sub.Plan.Currency,
		Amount:      sub.Amount,
		Period:      sub.Plan.Interval,
	}
	if snap.ID == "" {
		snap.ID = string(sub.ID)
	}
	if t, err := time.Parse(time.RFC3339, sub.CreatedAt); err == nil {
		snap.PeriodStart = t.UTC()
	}
	if sub.NextPaymentDate != nil {
		if t, err := time.Parse(time.RFC3339, *sub.NextPaymentDate); err == nil {
			snap.PeriodEnd = t.UTC()
		}
	}
	return snap
}

func paystackInactive(status string) bool {
	status = strings.ToLower(status)
	return paystackCanceledStatuses[status] || status == "complete"
}

func metaString(meta map[string]interface{}, key string) string {
	s, _ := meta[key].(string)
	return s
}

func metaNumber(meta map[string]interface{}, key string) (float64, bool) {
	n, ok := meta[key].(float64)
	return n, ok
}

func metaDiscount(meta map[string]interface{}) *Discount {
	code := metaString(meta, metaCouponCode)
	if code == "" {
		return nil
	}
	d := &Discount{Code: code, Currency: metaString(meta, metaDiscountCurrency)}
	if n, ok := metaNumber(meta, metaDiscountAmount); ok {
		amount := int64(n)
		d.Amount = &amount
	}
	if n, ok := metaNumber(meta, metaDiscountPercentage); ok {
		d.Percentage = &n
	}
	if n, ok := metaNumber(meta, metaDiscountDuration); ok {
		months := int(n)
		d.DurationMonths = &months
	}
	return d
}

func paystackStatus(err error) int {
	var apiErr *PaystackAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func paystackExpectedFailure(err error) bool {
	if code := paystackStatus(err); code != 0 {
		return code >= http.StatusBadRequest && code < http.StatusInternalServerError
	}
	var ne net.Error
	return errors.As(err, &ne)
}
