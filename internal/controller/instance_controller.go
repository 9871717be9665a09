package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"hostctl_backend/internal/model"
	"hostctl_backend/internal/repository"
)

func (h *Handler) loadInstance(c *fiber.Ctx) (*model.Instance, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	inst, err := h.store.GetInstance(c.UserContext(), id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !owns(c, inst.CustomerID)) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Instance not found")
	}
	return inst, err
}

func (h *Handler) instanceSubscription(c *fiber.Ctx, inst *model.Instance) (*model.Subscription, error) {
	if inst.SubscriptionID == nil {
		return nil, nil
	}
	return h.store.GetSubscription(c.UserContext(), *inst.SubscriptionID)
}

func (h *Handler) GetInstance(c *fiber.Ctx) error {
	inst, err := h.loadInstance(c)
	if err != nil {
		return serviceError(c, err)
	}
	sub, err := h.instanceSubscription(c, inst)
	if err != nil {
		return serviceError(c, err)
	}
	expiry := h.svc.Instances.ExpiryState(sub, h.now())
	return c.JSON(fiber.Map{
		"instance":        inst,
		"url":             h.svc.Instances.URL(inst),
		"locked":          inst.IsLocked(),
		"waiting_payment": expiry.WaitingPayment,
		"expiry_at":       expiry.ExpiryAt,
	})
}

func (h *Handler) GetCredentials(c *fiber.Ctx) error {
	inst, err := h.loadInstance(c)
	if err != nil {
		return serviceError(c, err)
	}
	if inst.IsLocked() {
		return notFoundJSON(c, "Instance")
	}
	creds, err := h.svc.Instances.Credentials(c.UserContext(), inst)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(creds)
}

// DeleteInstance asks for the instance to be removed and cancels its
// subscription. Repeating it on a Deleting instance retries the cancel.
func (h *Handler) DeleteInstance(c *fiber.Ctx) error {
	inst, err := h.loadInstance(c)
	if err != nil {
		return serviceError(c, err)
	}
	if inst.Status == model.InstanceDeleted {
		return c.Status(fiber.StatusAccepted).JSON(inst)
	}
	sub, err := h.instanceSubscription(c, inst)
	if err != nil {
		return serviceError(c, err)
	}
	if err := h.svc.Instances.Deprovision(c.UserContext(), inst, sub); err != nil {
		return serviceError(c, err)
	}
	log.Infof("[API] instance %s deletion requested by user %d", inst.Name, currentUser(c).UserID)
	return c.Status(fiber.StatusAccepted).JSON(inst)
}
