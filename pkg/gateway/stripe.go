package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"hostctl_backend/internal/model"
)

type StripeAdapter struct {
	api StripeAPI
}

func NewStripeAdapter(api StripeAPI) *StripeAdapter {
	return &StripeAdapter{api: api}
}

func (a *StripeAdapter) Method() model.PaymentMethod {
	return model.PaymentStripe
}

func (a *StripeAdapter) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PlanRef),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:          stripe.String(req.SuccessURL),
		CancelURL:           stripe.String(req.CancelURL),
		CustomerEmail:       stripe.String(req.Email),
		ClientReferenceID:   stripe.String(req.OrderReference),
		AllowPromotionCodes: stripe.Bool(true),
	}
	params.Context = ctx
	params.AddMetadata("order_reference", req.OrderReference)
	if req.CouponCode != "" {
		params.AddMetadata("coupon_code", req.CouponCode)
	}

	sess, err := a.api.NewCheckoutSession(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: create checkout session: %v", ErrGateway, err)
	}
	return CheckoutSession{PaymentID: sess.ID, URL: sess.URL}, nil
}

// VerifyPayment treats a checkout session as paid once it carries an invoice
// or reports a paid status.
func (a *StripeAdapter) VerifyPayment(ctx context.Context, paymentID string) (bool, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := a.api.GetCheckoutSession(paymentID, params)
	if err != nil {
		if stripeExpectedFailure(err) {
			log.Warnf("[Stripe] verify %s: %v", paymentID, err)
			return false, nil
		}
		return false, fmt.Errorf("%w: get checkout session %s: %v", ErrGateway, paymentID, err)
	}
	return sess.Invoice != nil || sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid, nil
}

func (a *StripeAdapter) SubscriptionFromPayment(ctx context.Context, paymentID string) (*Snapshot, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := a.api.GetCheckoutSession(paymentID, params)
	if err != nil {
		if stripeMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get checkout session %s: %v", ErrGateway, paymentID, err)
	}
	if sess.Subscription == nil || sess.Subscription.ID == "" {
		return nil, nil
	}
	return a.FetchSubscription(ctx, sess.Subscription.ID)
}

func (a *StripeAdapter) FetchSubscription(ctx context.Context, subscriptionID string) (*Snapshot, error) {
	sub, err := a.getSubscription(ctx, subscriptionID)
	if err != nil || sub == nil {
		return nil, err
	}
	return stripeSnapshot(sub), nil
}

func (a *StripeAdapter) Cancel(ctx context.Context, subscriptionID string) error {
	sub, err := a.getSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil || sub.Status == stripe.SubscriptionStatusCanceled || sub.CancelAtPeriodEnd {
		return nil
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	if _, err := a.api.UpdateSubscription(subscriptionID, params); err != nil {
		if stripeMissing(err) {
			return nil
		}
		return fmt.Errorf("%w: cancel subscription %s: %v", ErrGateway, subscriptionID, err)
	}
	return nil
}

func (a *StripeAdapter) getSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("discount.promotion_code")
	sub, err := a.api.GetSubscription(id, params)
	if err != nil {
		if stripeMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get subscription %s: %v", ErrGateway, id, err)
	}
	return sub, nil
}

func stripeSnapshot(sub *stripe.Subscription) *Snapshot {
	snap := &Snapshot{
		ID:          sub.ID,
		PeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		Canceled:    sub.CanceledAt > 0 || sub.Status == stripe.SubscriptionStatusCanceled,
		Currency:    string(sub.Currency),
	}
	if sub.Customer != nil {
		snap.CustomerRef = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		snap.Amount = price.UnitAmount
		if price.Recurring != nil {
			snap.Period = string(price.Recurring.Interval)
		}
	}
	if sub.Discount != nil && sub.Discount.Coupon != nil {
		coupon := sub.Discount.Coupon
		d := &Discount{Code: coupon.Name, Currency: string(coupon.Currency)}
		if sub.Discount.PromotionCode != nil && sub.Discount.PromotionCode.Code != "" {
			d.Code = sub.Discount.PromotionCode.Code
		}
		if coupon.AmountOff > 0 {
			amount := coupon.AmountOff
			d.Amount = &amount
		}
		if coupon.PercentOff > 0 {
			pct := coupon.PercentOff
			d.Percentage = &pct
		}
		if coupon.DurationInMonths > 0 {
			months := int(coupon.DurationInMonths)
			d.DurationMonths = &months
		}
		snap.Discount = d
	}
	return snap
}

// ConstructStripeEvent verifies a webhook payload against its signature header.
func ConstructStripeEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, secret)
}

func stripeExpectedFailure(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode >= http.StatusBadRequest && se.HTTPStatusCode < http.StatusInternalServerError
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func stripeMissing(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound
	}
	return false
}
