package tags

import (
	"errors"
	"fmt"
	"log"
	"time"

	"Postboard/src/core/cache"
	"Postboard/src/core/helpers"
	"Postboard/src/core/models"
	"Postboard/src/modules/notifications"
	"Postboard/src/modules/taglinks"
	"Postboard/src/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TagDetail struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Posts     []uuid.UUID `json:"posts"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type createTagRequest struct {
	Name      string `json:"name"`
	PostID    string `json:"post_id"`
	PostIDAlt string `json:"postId"`
}

type updateTagRequest struct {
	Name *string `json:"name"`
}

type linkRequest struct {
	PostID    string `json:"post_id"`
	PostIDAlt string `json:"postId"`
}

// postIDField returns post_id, falling back to the camel-case postId.
func postIDField(snake, camel string) string {
	if snake != "" {
		return snake
	}
	return camel
}

type Handler struct {
	DB       *gorm.DB
	Cache    cache.Cache
	Notifier notifications.Publisher
}

func NewHandler(db *gorm.DB, c cache.Cache, n notifications.Publisher) *Handler {
	if c == nil {
		c = cache.Nop{}
	}
	if n == nil {
		n = notifications.Nop{}
	}
	return &Handler{DB: db, Cache: c, Notifier: n}
}

func (h *Handler) GetTags(c *fiber.Ctx) error {
	db := h.DB.WithContext(c.UserContext())

	var tags []models.Tag
	if err := db.Order("name ASC").Find(&tags).Error; err != nil {
		log.Printf("[Tags] List failed: %v", err)
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to fetch tags", err)
	}

	byTag, err := taglinks.PostIDsByTag(db, nil)
	if err != nil {
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to fetch tags", err)
	}

	details := make([]TagDetail, 0, len(tags))
	for _, tag := range tags {
		details = append(details, toDetail(tag, byTag[tag.ID]))
	}
	return helpers.HandleSuccess(c, fiber.StatusOK, "Tags fetched successfully", details)
}

func (h *Handler) GetTagByID(c *fiber.Ctx) error {
	id, err := helpers.ParseID(c.Params("id"))
	if err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid tag ID", err)
	}

	detail, err := loadDetail(h.DB.WithContext(c.UserContext()), id)
	if err != nil {
		return helpers.HandleStoreError(c, err, "Tag not found", "Failed to fetch tag")
	}
	return helpers.HandleSuccess(c, fiber.StatusOK, "Tag fetched successfully", detail)
}

func (h *Handler) CreateTag(c *fiber.Ctx) error {
	body := new(createTagRequest)
	if err := c.BodyParser(body); err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid input data", err)
	}

	name := utils.NormalizeTag(body.Name)
	if name == "" {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Tag name is required", nil)
	}
	if err := helpers.ValidateTagName(name); err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Tag name is too long", err)
	}

	var postID uuid.UUID
	if raw := postIDField(body.PostID, body.PostIDAlt); raw != "" {
		id, err := helpers.ParseID(raw)
		if err != nil {
			return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid post ID", err)
		}
		postID = id
	}

	ctx := c.UserContext()
	db := h.DB.WithContext(ctx)

	var (
		tag     models.Tag
		created bool
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		if postID != uuid.Nil {
			if err := postExists(tx, postID); err != nil {
				return err
			}
		}

		var err error
		tag, created, err = taglinks.FindOrCreate(tx, name)
		if err != nil {
			return err
		}
		if postID != uuid.Nil {
			return taglinks.Link(tx, postID, tag.ID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errPostNotFound) {
			return helpers.HandleError(c, fiber.StatusNotFound, "Post not found", nil)
		}
		return helpers.HandleStoreError(c, err, "Tag not found", "Failed to create tag")
	}

	if postID != uuid.Nil {
		h.Cache.Del(ctx, cache.PostKey(postID))
		h.Notifier.Publish(notifications.Event{Type: notifications.TagAssigned, PostID: postID, TagID: &tag.ID})
	}

	detail, err := loadDetail(db, tag.ID)
	if err != nil {
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to fetch tag", err)
	}

	if !created {
		return helpers.HandleSuccess(c, fiber.StatusOK, "Tag already exists", detail)
	}
	return helpers.HandleSuccess(c, fiber.StatusCreated, "Tag created successfully", detail)
}

func (h *Handler) UpdateTag(c *fiber.Ctx) error {
	id, err := helpers.ParseID(c.Params("id"))
	if err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid tag ID", err)
	}

	body := new(updateTagRequest)
	if err := c.BodyParser(body); err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid input data", err)
	}
	var name string
	if body.Name != nil {
		name = utils.NormalizeTag(*body.Name)
		if name == "" {
			return helpers.HandleError(c, fiber.StatusBadRequest, "Tag name cannot be empty", nil)
		}
		if err := helpers.ValidateTagName(name); err != nil {
			return helpers.HandleError(c, fiber.StatusBadRequest, "Tag name is too long", err)
		}
	}

	ctx := c.UserContext()
	db := h.DB.WithContext(ctx)

	var affected []uuid.UUID
	err = db.Transaction(func(tx *gorm.DB) error {
		var tag models.Tag
		if err := tx.First(&tag, "id = ?", id).Error; err != nil {
			return err
		}
		if name == "" || name == tag.Name {
			return nil
		}
		if err := tx.Model(&tag).Update("name", name).Error; err != nil {
			return err
		}
		ids, err := taglinks.PostIDsForTag(tx, id)
		affected = ids
		return err
	})
	if err != nil {
		return helpers.HandleStoreError(c, err, "Tag not found", "Failed to update tag")
	}

	cache.InvalidatePosts(ctx, h.Cache, affected)

	detail, err := loadDetail(db, id)
	if err != nil {
		return helpers.HandleStoreError(c, err, "Tag not found", "Failed to fetch tag")
	}
	return helpers.HandleSuccess(c, fiber.StatusOK, "Tag updated successfully", detail)
}

func (h *Handler) DeleteTag(c *fiber.Ctx) error {
	id, err := helpers.ParseID(c.Params("id"))
	if err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid tag ID", err)
	}

	ctx := c.UserContext()
	var affected []uuid.UUID
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if affected, err = taglinks.PostIDsForTag(tx, id); err != nil {
			return err
		}
		if err := taglinks.UnlinkTag(tx, id); err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Tag{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return helpers.HandleStoreError(c, err, "Tag not found", "Failed to delete tag")
	}

	cache.InvalidatePosts(ctx, h.Cache, affected)
	return helpers.HandleSuccess(c, fiber.StatusOK, "Tag deleted successfully", fiber.Map{"id": id})
}

func (h *Handler) AssignTagToPost(c *fiber.Ctx) error {
	return h.changeLink(c, true)
}

func (h *Handler) RemoveTagFromPost(c *fiber.Ctx) error {
	return h.changeLink(c, false)
}

func (h *Handler) changeLink(c *fiber.Ctx, assign bool) error {
	tagID, err := helpers.ParseID(c.Params("id"))
	if err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid tag ID", err)
	}
	body := new(linkRequest)
	if err := c.BodyParser(body); err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid input data", err)
	}
	raw := postIDField(body.PostID, body.PostIDAlt)
	if raw == "" {
		return helpers.HandleError(c, fiber.StatusBadRequest, "post_id is required", nil)
	}
	postID, err := helpers.ParseID(raw)
	if err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid post ID", err)
	}

	ctx := c.UserContext()
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Tag{}, "id = ?", tagID).Error; err != nil {
			return err
		}
		if err := postExists(tx, postID); err != nil {
			return err
		}
		if assign {
			return taglinks.Link(tx, postID, tagID)
		}
		return taglinks.Unlink(tx, postID, tagID)
	})
	if err != nil {
		if errors.Is(err, errPostNotFound) {
			return helpers.HandleError(c, fiber.StatusNotFound, "Post not found", nil)
		}
		return helpers.HandleStoreError(c, err, "Tag not found", "Failed to update tag assignment")
	}

	h.Cache.Del(ctx, cache.PostKey(postID))

	message := "Tag assigned to post successfully"
	event := notifications.TagAssigned
	if !assign {
		message = "Tag removed from post successfully"
		event = notifications.TagRemoved
	}
	h.Notifier.Publish(notifications.Event{Type: event, PostID: postID, TagID: &tagID})

	return helpers.HandleSuccess(c, fiber.StatusOK, message, fiber.Map{
		"message": message,
		"tag_id":  tagID,
		"post_id": postID,
	})
}

var errPostNotFound = errors.New("post not found")

func postExists(tx *gorm.DB, id uuid.UUID) error {
	err := tx.Select("id").First(&models.Post{}, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errPostNotFound
	}
	if err != nil {
		return fmt.Errorf("find post %s: %w", id, err)
	}
	return nil
}

func loadDetail(db *gorm.DB, id uuid.UUID) (TagDetail, error) {
	var tag models.Tag
	if err := db.First(&tag, "id = ?", id).Error; err != nil {
		return TagDetail{}, err
	}
	posts, err := taglinks.PostIDsForTag(db, id)
	if err != nil {
		return TagDetail{}, err
	}
	return toDetail(tag, posts), nil
}

func toDetail(tag models.Tag, posts []uuid.UUID) TagDetail {
	if posts == nil {
		posts = []uuid.UUID{}
	}
	return TagDetail{
		ID:        tag.ID,
		Name:      tag.Name,
		Posts:     posts,
		CreatedAt: tag.CreatedAt,
		UpdatedAt: tag.UpdatedAt,
	}
}
