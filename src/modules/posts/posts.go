package posts

import (
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"strings"
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

type UserSummary struct {
	ID       uuid.UUID `json:"id"`
	NickName string    `json:"nick_name"`
}

type ImageSummary struct {
	ID  uuid.UUID `json:"id"`
	URL string    `json:"url"`
}

// PostDetail is a post with its relations resolved. It is also the value kept
// in the cache.
type PostDetail struct {
	ID          uuid.UUID             `json:"id"`
	Description string                `json:"description"`
	User        *UserSummary          `json:"user"`
	Tags        []taglinks.TagSummary `json:"tags"`
	Images      []ImageSummary        `json:"images"`
	Comments    []uuid.UUID           `json:"comments"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

type PostPage struct {
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPosts int64        `json:"total_posts"`
	TotalPages int          `json:"total_pages"`
	Posts      []PostDetail `json:"posts"`
}

type createPostRequest struct {
	Description string          `json:"description"`
	User        string          `json:"user"`
	Tags        json.RawMessage `json:"tags"`
}

// updatePostRequest lists the only fields a client may change.
type updatePostRequest struct {
	Description *string `json:"description"`
}

type Handler struct {
	DB       *gorm.DB
	Cache    cache.Cache
	Uploader utils.Uploader
	Notifier notifications.Publisher
}

func NewHandler(db *gorm.DB, c cache.Cache, up utils.Uploader, n notifications.Publisher) *Handler {
	if c == nil {
		c = cache.Nop{}
	}
	if n == nil {
		n = notifications.Nop{}
	}
	return &Handler{DB: db, Cache: c, Uploader: up, Notifier: n}
}

func (h *Handler) GetPosts(c *fiber.Ctx) error {
	db := h.DB.WithContext(c.UserContext())
	page, limit := helpers.ParsePagination(c)

	var total int64
	if err := db.Model(&models.Post{}).Count(&total).Error; err != nil {
		log.Printf("[Posts] Count failed: %v", err)
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to fetch posts", err)
	}

	var posts []models.Post
	err := db.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		log.Printf("[Posts] List failed: %v", err)
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to fetch posts", err)
	}

	details, err := assemble(db, posts)
	if err != nil {
		log.Printf("[Posts] Resolving relations failed: %v", err)
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to fetch posts", err)
	}

	return helpers.HandleSuccess(c, fiber.StatusOK, "Posts fetched successfully", PostPage{
		Page:       page,
		Limit:      limit,
		TotalPosts: total,
		TotalPages: helpers.TotalPages(total, limit),
		Posts:      details,
	})
}

func (h *Handler) GetPostByID(c *fiber.Ctx) error {
	id, err := helpers.ParseID(c.Params("id"))
	if err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid post ID", err)
	}

	ctx := c.UserContext()
	key := cache.PostKey(id)
	if cached, ok := h.Cache.Get(ctx, key); ok {
		log.Printf("[Posts] Serving post %s from cache", id)
		return helpers.HandleSuccess(c, fiber.StatusOK, "Post fetched successfully", json.RawMessage(cached))
	}

	detail, err := loadDetail(h.DB.WithContext(ctx), id)
	if err != nil {
		return helpers.HandleStoreError(c, err, "Post not found", "Failed to fetch post")
	}

	encoded, err := json.Marshal(detail)
	if err != nil {
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to fetch post", err)
	}
	h.Cache.Set(ctx, key, encoded)

	return helpers.HandleSuccess(c, fiber.StatusOK, "Post fetched successfully", json.RawMessage(encoded))
}

func (h *Handler) CreatePost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	db := h.DB.WithContext(ctx)

	var (
		description, user string
		tagNames          []string
		files             []*multipart.FileHeader
	)

	switch {
	case strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return helpers.HandleError(c, fiber.StatusBadRequest, "Failed to parse form data", err)
		}
		description = firstValue(form.Value["description"])
		user = firstValue(form.Value["user"])
		if listed := form.Value["tags[]"]; len(listed) > 0 {
			tagNames = listed
		} else {
			tagNames = utils.ParseTagField(form.Value["tags"])
		}
		files = append(files, form.File["images"]...)
		files = append(files, form.File["files"]...)
	case c.Is("json"):
		body := new(createPostRequest)
		if err := c.BodyParser(body); err != nil {
			return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid input data", err)
		}
		description, user = body.Description, body.User
		tagNames = utils.ParseTagJSON(body.Tags)
	default:
		return helpers.HandleError(c, fiber.StatusBadRequest, "Unsupported content type", nil)
	}

	userID, ok, err := helpers.ActingUser(c, user)
	if strings.TrimSpace(description) == "" || (!ok && err == nil) {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Missing required fields: description or user", nil)
	}
	if err != nil {
		return helpers.HandleActingUserError(c, err)
	}

	if err := db.Select("id").First(&models.User{}, "id = ?", userID).Error; err != nil {
		return helpers.HandleStoreError(c, err, "User not found", "Failed to fetch user")
	}

	tagNames = utils.NormalizeTags(tagNames)
	for _, name := range tagNames {
		if err := helpers.ValidateTagName(name); err != nil {
			return helpers.HandleError(c, fiber.StatusBadRequest, "Tag name is too long", err)
		}
	}

	stored := make([]utils.StoredFile, 0, len(files))
	for _, f := range files {
		sf, err := h.Uploader.Upload(ctx, f)
		if err != nil {
			log.Printf("[Posts] Image upload failed: %v", err)
			utils.DeleteAll(ctx, h.Uploader, stored)
			return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to upload image", err)
		}
		stored = append(stored, sf)
	}

	post := models.Post{UserID: userID, Description: description}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return err
		}

		if len(stored) > 0 {
			images := make([]models.PostImage, 0, len(stored))
			for _, sf := range stored {
				images = append(images, models.PostImage{PostID: post.ID, URL: sf.URL, StoragePath: sf.Path})
			}
			if err := tx.Create(&images).Error; err != nil {
				return fmt.Errorf("save images: %w", err)
			}
		}

		for _, name := range tagNames {
			tag, _, err := taglinks.FindOrCreate(tx, name)
			if err != nil {
				return err
			}
			if err := taglinks.Link(tx, post.ID, tag.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[Posts] Create failed: %v", err)
		utils.DeleteAll(ctx, h.Uploader, stored)
		return helpers.HandleStoreError(c, err, "Post not found", "Failed to create post")
	}

	detail, err := loadDetail(db, post.ID)
	if err != nil {
		return helpers.HandleError(c, fiber.StatusInternalServerError, "Failed to fetch created post", err)
	}

	h.Notifier.Publish(notifications.Event{Type: notifications.PostCreated, PostID: post.ID})
	return helpers.HandleSuccess(c, fiber.StatusCreated, "Post created successfully", detail)
}

func (h *Handler) UpdatePost(c *fiber.Ctx) error {
	id, err := helpers.ParseID(c.Params("id"))
	if err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid post ID", err)
	}

	body := new(updatePostRequest)
	if err := c.BodyParser(body); err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid input data", err)
	}
	if body.Description != nil && strings.TrimSpace(*body.Description) == "" {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Description cannot be empty", nil)
	}

	ctx := c.UserContext()
	db := h.DB.WithContext(ctx)

	err = db.Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, "id = ?", id).Error; err != nil {
			return err
		}
		if body.Description == nil {
			return nil
		}
		return tx.Model(&post).Update("description", *body.Description).Error
	})
	if err != nil {
		return helpers.HandleStoreError(c, err, "Post not found", "Failed to update post")
	}

	h.Cache.Del(ctx, cache.PostKey(id))

	detail, err := loadDetail(db, id)
	if err != nil {
		return helpers.HandleStoreError(c, err, "Post not found", "Failed to fetch updated post")
	}

	h.Notifier.Publish(notifications.Event{Type: notifications.PostUpdated, PostID: id})
	return helpers.HandleSuccess(c, fiber.StatusOK, "Post updated successfully", detail)
}

func (h *Handler) DeletePost(c *fiber.Ctx) error {
	id, err := helpers.ParseID(c.Params("id"))
	if err != nil {
		return helpers.HandleError(c, fiber.StatusBadRequest, "Invalid post ID", err)
	}

	ctx := c.UserContext()
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		// comments and images are left in place
		return taglinks.UnlinkPost(tx, id)
	})
	if err != nil {
		return helpers.HandleStoreError(c, err, "Post not found", "Failed to delete post")
	}

	h.Cache.Del(ctx, cache.PostKey(id))
	h.Notifier.Publish(notifications.Event{Type: notifications.PostDeleted, PostID: id})

	return helpers.HandleSuccess(c, fiber.StatusOK, fmt.Sprintf("Post %s deleted successfully", id), fiber.Map{"id": id})
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// loadDetail fetches one post with its relations.
func loadDetail(db *gorm.DB, id uuid.UUID) (PostDetail, error) {
	var post models.Post
	if err := db.First(&post, "id = ?", id).Error; err != nil {
		return PostDetail{}, err
	}
	details, err := assemble(db, []models.Post{post})
	if err != nil {
		return PostDetail{}, err
	}
	return details[0], nil
}

// assemble resolves users, tags, comments and images for posts with one
// query per relation.
func assemble(db *gorm.DB, posts []models.Post) ([]PostDetail, error) {
	details := make([]PostDetail, 0, len(posts))
	if len(posts) == 0 {
		return details, nil
	}

	postIDs := make([]uuid.UUID, 0, len(posts))
	userIDs := make([]uuid.UUID, 0, len(posts))
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		userIDs = append(userIDs, p.UserID)
	}

	var users []models.User
	if err := db.Select("id", "nick_name").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	userByID := make(map[uuid.UUID]*UserSummary, len(users))
	for _, u := range users {
		userByID[u.ID] = &UserSummary{ID: u.ID, NickName: u.NickName}
	}

	tagsByPost, err := taglinks.TagsForPosts(db, postIDs)
	if err != nil {
		return nil, err
	}

	var comments []models.Comment
	err = db.Select("id", "post_id").Where("post_id IN ?", postIDs).
		Order("created_at ASC").Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	commentsByPost := make(map[uuid.UUID][]uuid.UUID)
	for _, cm := range comments {
		commentsByPost[cm.PostID] = append(commentsByPost[cm.PostID], cm.ID)
	}

	var images []models.PostImage
	err = db.Select("id", "post_id", "url").Where("post_id IN ?", postIDs).
		Order("created_at ASC").Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	imagesByPost := make(map[uuid.UUID][]ImageSummary)
	for _, img := range images {
		imagesByPost[img.PostID] = append(imagesByPost[img.PostID], ImageSummary{ID: img.ID, URL: img.URL})
	}

	for _, p := range posts {
		d := PostDetail{
			ID:          p.ID,
			Description: p.Description,
			User:        userByID[p.UserID],
			Tags:        tagsByPost[p.ID],
			Images:      imagesByPost[p.ID],
			Comments:    commentsByPost[p.ID],
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		}
		if d.Tags == nil {
			d.Tags = []taglinks.TagSummary{}
		}
		if d.Images == nil {
			d.Images = []ImageSummary{}
		}
		if d.Comments == nil {
			d.Comments = []uuid.UUID{}
		}
		details = append(details, d)
	}
	return details, nil
}
