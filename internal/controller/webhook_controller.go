package controller

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"

	"hostctl_backend/internal/model"
	"hostctl_backend/internal/repository"
	"hostctl_backend/internal/service"
	"hostctl_backend/pkg/gateway"
)

// beginWebhook records an inbound event. It returns nil when the event was
// already processed successfully.
func (h *Handler) beginWebhook(c *fiber.Ctx, provider, eventID, eventType string) (*model.WebhookEvent, error) {
	created, stored, err := h.store.CreateWebhookEventIfNotExists(c.UserContext(), &model.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       eventType,
		Payload:         datatypes.JSON(append([]byte(nil), c.Body()...)),
	})
	if err != nil {
		return nil, err
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		log.Infof("[Webhook] %s event %s already processed", provider, eventID)
		return nil, nil
	}
	return stored, nil
}

func (h *Handler) finishWebhook(c *fiber.Ctx, event *model.WebhookEvent, err error) error {
	var processingError string
	if err != nil {
		processingError = err.Error()
		log.Errorf("[Webhook] %s event %s: %v", event.Provider, event.ProviderEventID, err)
	}
	if merr := h.store.MarkWebhookProcessed(c.UserContext(), event.ID, processingError); merr != nil {
		log.Errorf("[Webhook] mark %s processed: %v", event.ProviderEventID, merr)
	}
	if err != nil {
		return serviceError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *Handler) syncStoredSubscription(c *fiber.Ctx, method model.PaymentMethod, gatewayID string) error {
	if gatewayID == "" {
		return nil
	}
	sub, err := h.store.GetSubscriptionByGatewayID(c.UserContext(), method, gatewayID)
	if errors.Is(err, repository.ErrNotFound) {
		// Not bound to an order yet; the order sync picks it up.
		return nil
	}
	if err != nil {
		return err
	}
	return h.svc.Reconciler.SyncSubscription(c.UserContext(), sub)
}

func (h *Handler) syncOrderByPayment(c *fiber.Ctx, method model.PaymentMethod, paymentID string) error {
	if paymentID == "" {
		return nil
	}
	order, err := h.store.GetOrderByPaymentID(c.UserContext(), method, paymentID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warnf("[Webhook] no %s order for payment %s", method, paymentID)
		return nil
	}
	if err != nil {
		return err
	}
	return h.svc.Reconciler.SyncOrder(c.UserContext(), order.ID)
}

func (h *Handler) HandleStripeWebhook(c *fiber.Ctx) error {
	event, err := gateway.ConstructStripeEvent(c.Body(), c.Get("Stripe-Signature"), h.secrets.Stripe)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid webhook signature")
	}
	eventType := string(event.Type)

	stored, err := h.beginWebhook(c, model.ProviderStripe, event.ID, eventType)
	if err != nil {
		return serviceError(c, err)
	}
	if stored == nil {
		return c.SendStatus(fiber.StatusOK)
	}
	log.Infof("[Webhook] stripe %s", eventType)

	var object struct {
		ID           string `json:"id"`
		Subscription string `json:"subscription"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return h.finishWebhook(c, stored, fiber.NewError(fiber.StatusBadRequest, "Invalid event payload"))
	}

	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		err = h.syncOrderByPayment(c, model.PaymentStripe, object.ID)
	case "customer.subscription.updated", "customer.subscription.deleted":
		err = h.syncStoredSubscription(c, model.PaymentStripe, object.ID)
	case "invoice.paid", "invoice.payment_failed":
		err = h.syncStoredSubscription(c, model.PaymentStripe, object.Subscription)
	}
	return h.finishWebhook(c, stored, err)
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID               json.RawMessage `json:"id"`
		Reference        string          `json:"reference"`
		SubscriptionCode string          `json:"subscription_code"`
		Subscription     struct {
			SubscriptionCode string `json:"subscription_code"`
		} `json:"subscription"`
	} `json:"data"`
}

// eventID builds a stable id; Paystack events carry none of their own.
func (e paystackEvent) eventID() string {
	key := e.Data.Reference
	if key == "" {
		key = e.Data.SubscriptionCode
	}
	if key == "" {
		key = strings.Trim(string(e.Data.ID), `"`)
	}
	return e.Event + ":" + key
}

func (h *Handler) HandlePaystackWebhook(c *fiber.Ctx) error {
	if !gateway.VerifyPaystackSignature(c.Body(), c.Get("X-Paystack-Signature"), h.secrets.Paystack) {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid webhook signature")
	}
	var event paystackEvent
	if err := json.Unmarshal(c.Body(), &event); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid event payload")
	}

	stored, err := h.beginWebhook(c, model.ProviderPaystack, event.eventID(), event.Event)
	if err != nil {
		return serviceError(c, err)
	}
	if stored == nil {
		return c.SendStatus(fiber.StatusOK)
	}
	log.Infof("[Webhook] paystack %s", event.Event)

	switch event.Event {
	case "charge.success":
		err = h.syncOrderByPayment(c, model.PaymentPaystack, event.Data.Reference)
	case "subscription.create", "subscription.disable", "subscription.not_renew":
		err = h.syncStoredSubscription(c, model.PaymentPaystack, event.Data.SubscriptionCode)
	case "invoice.update", "invoice.payment_failed":
		err = h.syncStoredSubscription(c, model.PaymentPaystack, event.Data.Subscription.SubscriptionCode)
	}
	return h.finishWebhook(c, stored, err)
}

// HandleProvisionerEvent receives deployment-system callbacks.
func (h *Handler) HandleProvisionerEvent(c *fiber.Ctx) error {
	ev := new(service.ProvisionerEvent)
	if err := h.parse(c, ev); err != nil {
		return serviceError(c, err)
	}
	err := h.svc.Provisioning.HandleEvent(c.UserContext(), *ev, c.Body())
	if errors.Is(err, service.ErrActivityNotFound) {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		return serviceError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}
