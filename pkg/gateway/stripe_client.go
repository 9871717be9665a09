package gateway

import (
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// StripeAPI is the part of the Stripe SDK the adapter depends on.
type StripeAPI interface {
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// stripeSDK is the stripe-go backed implementation of StripeAPI.
type stripeSDK struct {
	api *client.API
}

func NewStripeSDK(secretKey string) StripeAPI {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return stripeSDK{api: sc}
}

func (s stripeSDK) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.api.CheckoutSessions.New(params)
}

func (s stripeSDK) GetCheckoutSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.api.CheckoutSessions.Get(id, params)
}

func (s stripeSDK) GetSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return s.api.Subscriptions.Get(id, params)
}

func (s stripeSDK) UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return s.api.Subscriptions.Update(id, params)
}
