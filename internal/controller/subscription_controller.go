package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"hostctl_backend/internal/model"
	"hostctl_backend/internal/repository"
)

type PaymentInput struct {
	PaymentID string `json:"payment_id" validate:"required"`
}

func (h *Handler) loadSubscription(c *fiber.Ctx) (*model.Subscription, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	sub, err := h.store.GetSubscription(c.UserContext(), id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !owns(c, sub.CustomerID)) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Subscription not found")
	}
	return sub, err
}

func (h *Handler) GetSubscription(c *fiber.Ctx) error {
	sub, err := h.loadSubscription(c)
	if err != nil {
		return serviceError(c, err)
	}
	expiry := h.svc.Instances.ExpiryState(sub, h.now())
	return c.JSON(fiber.Map{
		"subscription":    sub,
		"waiting_payment": expiry.WaitingPayment,
		"expiry_at":       expiry.ExpiryAt,
		"expired":         expiry.Expired,
	})
}

// CancelSubscription stops renewal at the gateway. The instance stays up
// until the paid period and grace period run out.
func (h *Handler) CancelSubscription(c *fiber.Ctx) error {
	sub, err := h.loadSubscription(c)
	if err != nil {
		return serviceError(c, err)
	}
	sub, err = h.svc.Reconciler.CancelSubscription(c.UserContext(), sub.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":      "Subscription cancelled successfully",
		"subscription": sub,
	})
}

// AttachPayment records a payment that replaces the card behind a Paystack
// subscription. It is resolved on the next sync.
func (h *Handler) AttachPayment(c *fiber.Ctx) error {
	sub, err := h.loadSubscription(c)
	if err != nil {
		return serviceError(c, err)
	}
	if sub.PaymentMethod != model.PaymentPaystack {
		return errorJSON(c, fiber.StatusBadRequest, "Payment changes are handled by the Stripe billing portal")
	}
	input := new(PaymentInput)
	if err := h.parse(c, input); err != nil {
		return serviceError(c, err)
	}
	if err := h.svc.Subscriptions.AttachPendingPayment(c.UserContext(), sub, input.PaymentID); err != nil {
		return serviceError(c, err)
	}
	if err := h.svc.Reconciler.SyncSubscription(c.UserContext(), sub); err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Payment recorded",
	})
}
