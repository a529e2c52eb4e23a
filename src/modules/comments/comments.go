package comments

import (
	"log"
	"strings"

	"Postboard/src/core/cache"
	"Postboard/src/core/helpers"
	"Postboard/src/core/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type createCommentRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

type Handler struct {
	DB    *gorm.DB
	Cache cache.Cache
}

func NewHandler(db *gorm.DB, c cache.Cache) *Handler {
	if c == nil {
		c = cache.Nop{}
	}
	return &Handler{DB: db, Cache: c}
}

// CreateComment adds a comment to a post. The author defaults to the
// authenticated user.
func (h *Handler) CreateComment(c *fiber.Ctx) error {
	postID, err := helpers.ParseID(c.Params("id"))
	if err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid post ID", err)
	}

	body := new(createCommentRequest)
	if err := c.BodyParser(body); err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid input data", err)
	}
	if strings.TrimSpace(body.Content) == "" {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Comment content is required", nil)
	}

	userID, ok, err := helpers.ActingUser(c, body.UserID)
	if err != nil {
		return helpers.HandleActingUserError(c, err)
	}
	if !ok {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Missing required field: user_id", nil)
	}

	ctx := c.UserContext()
	db := h.DB.WithContext(ctx)

	if err := db.Select("id").First(&models.Post{}, "id = ?", postID).Error; err != nil {
		return helpers.HandleStoreError(c, err, "Post not found", "Failed to fetch post")
	}
	if err := db.Select("id").First(&models.User{}, "id = ?", userID).Error; err != nil {
		return helpers.HandleStoreError(c, err, "User not found", "Failed to fetch user")
	}

	comment := models.Comment{PostID: postID, UserID: userID, Content: body.Content}
	if err := db.Create(&comment).Error; err != nil {
		log.Printf("[Comments] Create failed: %v", err)
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to create comment", err)
	}

	h.Cache.Del(ctx, cache.PostKey(postID))
	return helpers.HandleSuccess(c, fiber.StatusCreated, "Comment created successfully", comment)
}

func (h *Handler) GetComments(c *fiber.Ctx) error {
	postID, err := helpers.ParseID(c.Params("id"))
	if err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid post ID", err)
	}

	db := h.DB.WithContext(c.UserContext())
	if err := db.Select("id").First(&models.Post{}, "id = ?", postID).Error; err != nil {
		return helpers.HandleStoreError(c, err, "Post not found", "Failed to fetch post")
	}

	comments := []models.Comment{}
	if err := db.Where("post_id = ?", postID).Order("created_at ASC").Find(&comments).Error; err != nil {
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to fetch comments", err)
	}
	return helpers.HandleSuccess(c, fiber.StatusOK, "Comments fetched successfully", comments)
}
