package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"hostctl_backend/internal/model"
	"hostctl_backend/internal/repository"
	"hostctl_backend/internal/service"
)

type CheckoutInput struct {
	PaymentMethod model.PaymentMethod `json:"payment_method" validate:"required,oneof=Stripe Paystack"`
	AppName       string              `json:"app_name"`
	CouponCode    string              `json:"coupon_code"`
}

type ConfigureInput struct {
	AppName string `json:"app_name"`
}

func (h *Handler) ListPackages(c *fiber.Ctx) error {
	packages, err := h.store.ListPackages(c.UserContext(), true)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Could not fetch packages")
	}
	return c.JSON(packages)
}

// Checkout opens a gateway checkout for a package.
func (h *Handler) Checkout(c *fiber.Ctx) error {
	packageID, err := paramID(c, "package_id")
	if err != nil {
		return serviceError(c, err)
	}
	input := new(CheckoutInput)
	if err := h.parse(c, input); err != nil {
		return serviceError(c, err)
	}
	claims := currentUser(c)

	order, session, err := h.svc.Orders.Checkout(c.UserContext(), service.CheckoutInput{
		CustomerID:  claims.UserID,
		Email:       claims.Email,
		CompanyName: claims.CompanyName,
		PackageID:   packageID,
		Method:      input.PaymentMethod,
		AppName:     input.AppName,
		CouponCode:  input.CouponCode,
	})
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order":        order,
		"checkout_url": session.URL,
		"client_key":   session.ClientKey,
	})
}

func (h *Handler) loadOrder(c *fiber.Ctx) (*model.SalesOrder, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	order, err := h.store.GetOrder(c.UserContext(), id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !owns(c, order.CustomerID)) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Order not found")
	}
	return order, err
}

func (h *Handler) GetOrder(c *fiber.Ctx) error {
	order, err := h.loadOrder(c)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(order)
}

// ConfigureOrder names a paid order and starts its deployment.
func (h *Handler) ConfigureOrder(c *fiber.Ctx) error {
	order, err := h.loadOrder(c)
	if err != nil {
		return serviceError(c, err)
	}
	input := new(ConfigureInput)
	if err := h.parse(c, input); err != nil {
		return serviceError(c, err)
	}
	if err := h.svc.Orders.Configure(c.UserContext(), order, input.AppName); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(order)
}

// SyncOrder re-checks the payment and subscription of an order, typically
// right after the customer returns from the checkout page.
func (h *Handler) SyncOrder(c *fiber.Ctx) error {
	order, err := h.loadOrder(c)
	if err != nil {
		return serviceError(c, err)
	}
	if err := h.svc.Reconciler.SyncOrder(c.UserContext(), order.ID); err != nil {
		return serviceError(c, err)
	}
	fresh, err := h.store.GetOrder(c.UserContext(), order.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fresh)
}
