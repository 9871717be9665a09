package controller

import (
	"github.com/gofiber/fiber/v2"
)

// SyncAll runs the subscription sync on demand.
func (h *Handler) SyncAll(c *fiber.Ctx) error {
	summary, err := h.svc.Reconciler.SyncAll(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(summary)
}

func (h *Handler) PollPayments(c *fiber.Ctx) error {
	summary, err := h.svc.Reconciler.PollPendingPayments(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(summary)
}

func (h *Handler) CheckInstances(c *fiber.Ctx) error {
	summary, err := h.svc.Reconciler.CheckInstances(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(summary)
}
