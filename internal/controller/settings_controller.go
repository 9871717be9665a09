package controller

import (
	"github.com/gofiber/fiber/v2"
)

type ProfileUpdateInput struct {
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	CompanyName string `json:"company_name" validate:"required,max=200"`
}

func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	claims := currentUser(c)
	input := new(ProfileUpdateInput)
	if err := h.parse(c, input); err != nil {
		return serviceError(c, err)
	}

	updates := map[string]interface{}{
		"first_name":   input.FirstName,
		"last_name":    input.LastName,
		"company_name": input.CompanyName,
	}
	if err := h.store.UpdateUserFields(c.UserContext(), claims.UserID, updates); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Could not update profile")
	}

	user, err := h.store.GetUser(c.UserContext(), claims.UserID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"user":    user.GetPublicProfile(),
	})
}
