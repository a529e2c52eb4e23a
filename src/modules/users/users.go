package users

import (
	"time"

	"Postboard/src/core/helpers"
	"Postboard/src/core/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile is the public view of a user.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	NickName  string    `json:"nick_name"`
	CreatedAt time.Time `json:"created_at"`
}

type Handler struct {
	DB *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{DB: db}
}

func (h *Handler) GetUser(c *fiber.Ctx) error {
	id, err := helpers.ParseID(c.Params("id"))
	if err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid user ID", err)
	}

	var user models.User
	if err := h.DB.WithContext(c.UserContext()).First(&user, "id = ?", id).Error; err != nil {
		return helpers.HandleStoreError(c, err, "User not found", "Failed to fetch user")
	}

	return helpers.HandleSuccess(c, fiber.StatusOK, "User profile retrieved successfully", Profile{
		ID:        user.ID,
		NickName:  user.NickName,
		CreatedAt: user.CreatedAt,
	})
}
