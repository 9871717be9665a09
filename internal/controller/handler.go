package controller

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"hostctl_backend/internal/repository"
	"hostctl_backend/internal/service"
	"hostctl_backend/pkg/gateway"
	"hostctl_backend/pkg/utils/jwt"
	"hostctl_backend/pkg/utils/validation"
)

type WebhookSecrets struct {
	Stripe   string
	Paystack string
}

// Handler serves the HTTP API on top of the service layer.
type Handler struct {
	store    repository.Store
	svc      *service.Services
	secrets  WebhookSecrets
	validate *validator.Validate
	now      func() time.Time
}

func NewHandler(store repository.Store, svc *service.Services, secrets WebhookSecrets) *Handler {
	return &Handler{
		store:    store,
		svc:      svc,
		secrets:  secrets,
		validate: validator.New(),
		now:      time.Now,
	}
}

func currentUser(c *fiber.Ctx) *jwt.Claims {
	claims, _ := c.Locals("user").(*jwt.Claims)
	return claims
}

// owns reports whether the caller may see a record of customerID.
func owns(c *fiber.Ctx, customerID uint) bool {
	claims := currentUser(c)
	return claims != nil && (claims.IsAdmin || claims.UserID == customerID)
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}

func (h *Handler) parse(c *fiber.Ctx, input interface{}) error {
	if err := c.BodyParser(input); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid input")
	}
	if err := h.validate.Struct(input); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

func notFoundJSON(c *fiber.Ctx, what string) error {
	return errorJSON(c, fiber.StatusNotFound, what+" not found")
}

// serviceError maps service and gateway errors to responses.
func serviceError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return errorJSON(c, fe.Code, fe.Message)
	case errors.Is(err, repository.ErrNotFound):
		return notFoundJSON(c, "Record")
	case errors.Is(err, validation.ErrAppNameRequired),
		errors.Is(err, validation.ErrAppNameLength),
		errors.Is(err, validation.ErrAppNameFormat),
		errors.Is(err, validation.ErrAppNameReserved),
		errors.Is(err, service.ErrCouponUnavailable),
		errors.Is(err, service.ErrPackageUnavailable),
		errors.Is(err, gateway.ErrUnsupportedMethod):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidDeployment),
		errors.Is(err, service.ErrInvalidTransition):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrCredentialsNotFound):
		return errorJSON(c, fiber.StatusNotFound, "Credentials not available yet")
	case errors.Is(err, gateway.ErrGateway):
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return errorJSON(c, fiber.StatusBadGateway, "Payment provider unavailable")
	}
	log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	return errorJSON(c, fiber.StatusInternalServerError, "Internal server error")
}
