package controller

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"hostctl_backend/internal/model"
	"hostctl_backend/internal/repository"
	"hostctl_backend/pkg/utils/jwt"
)

type RegisterInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	CompanyName string `json:"company_name" validate:"required"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Register(c *fiber.Ctx) error {
	input := new(RegisterInput)
	if err := h.parse(c, input); err != nil {
		return serviceError(c, err)
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if _, err := h.store.GetUserByEmail(c.UserContext(), input.Email); err == nil {
		return errorJSON(c, fiber.StatusBadRequest, "Email already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return serviceError(c, err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Could not hash password")
	}

	user := model.User{
		Email:       input.Email,
		Password:    string(hashedPassword),
		CompanyName: input.CompanyName,
		FirstName:   input.FirstName,
		LastName:    input.LastName,
	}
	if err := h.store.CreateUser(c.UserContext(), &user); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Could not create user")
	}

	token, err := jwt.GenerateToken(user.ID, user.Email, user.CompanyName, user.IsAdmin)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Could not generate token")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful",
		"token":   token,
		"user":    user.GetPublicProfile(),
	})
}

func (h *Handler) Login(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := h.parse(c, input); err != nil {
		return serviceError(c, err)
	}

	user, err := h.store.GetUserByEmail(c.UserContext(), strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	token, err := jwt.GenerateToken(user.ID, user.Email, user.CompanyName, user.IsAdmin)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Could not generate token")
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user.GetPublicProfile(),
	})
}

// GetMe returns the caller's profile.
func (h *Handler) GetMe(c *fiber.Ctx) error {
	claims := currentUser(c)

	user, err := h.store.GetUser(c.UserContext(), claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFoundJSON(c, "User")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Could not fetch user")
	}
	return c.JSON(user.GetPublicProfile())
}
