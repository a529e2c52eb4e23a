package authentication

import (
	"errors"
	"log"
	"strings"
	"time"

	"Postboard/src/core/helpers"
	"Postboard/src/core/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenLifetime = 30 * 24 * time.Hour

var errNoSecret = errors.New("authentication is not configured")

type signUpRequest struct {
	NickName string `json:"nick_name" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Handler struct {
	DB     *gorm.DB
	Secret string
}

func NewHandler(db *gorm.DB, secret string) *Handler {
	return &Handler{DB: db, Secret: secret}
}

// issueJwtToken generates a JWT token for authenticated users.
func (h *Handler) issueJwtToken(user models.User) (string, error) {
	if h.Secret == "" {
		return "", errNoSecret
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"name": user.NickName,
		"iat":  now.Unix(),
		"exp":  now.Add(tokenLifetime).Unix(),
	})
	return token.SignedString([]byte(h.Secret))
}

// SignUp handles user registration.
func (h *Handler) SignUp(c *fiber.Ctx) error {
	if h.Secret == "" {
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Authentication is not configured", nil)
	}

	body := new(signUpRequest)
	if err := c.BodyParser(body); err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid input data", err)
	}
	body.NickName = strings.TrimSpace(body.NickName)
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if err := helpers.Validate(body); err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid input data", err)
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to hash password", err)
	}

	user := models.User{NickName: body.NickName, Email: body.Email, Password: string(hashedPwd)}
	if err := h.DB.WithContext(c.UserContext()).Create(&user).Error; err != nil {
		log.Println("Error creating user:", err)
		return helpers.HandleStoreError(c, err, "User not found", "Failed to create user account")
	}

	token, err := h.issueJwtToken(user)
	if err != nil {
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to generate token", err)
	}

	return helpers.HandleSuccess(c, fiber.StatusCreated, "Account created successfully", fiber.Map{
		"token": token,
		"user":  user,
	})
}

// SignIn handles user authentication.
func (h *Handler) SignIn(c *fiber.Ctx) error {
	if h.Secret == "" {
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Authentication is not configured", nil)
	}

	body := new(signInRequest)
	if err := c.BodyParser(body); err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid input data", err)
	}
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if err := helpers.Validate(body); err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid input data", err)
	}

	var user models.User
	if err := h.DB.WithContext(c.UserContext()).Where("email = ?", body.Email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to fetch user", err)
		}
		return helpers.HandleError(c, fiber.StatusUnauthorized, "Invalid login credentials", nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(body.Password)); err != nil {
		return helpers.HandleError(c, fiber.StatusUnauthorized, "Invalid login credentials", nil)
	}

	token, err := h.issueJwtToken(user)
	if err != nil {
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to generate token", err)
	}

	return helpers.HandleSuccess(c, fiber.StatusOK, "Sign-in successful", fiber.Map{"token": token})
}
