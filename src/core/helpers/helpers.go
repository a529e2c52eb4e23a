package helpers

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultPage  = 1
	DefaultLimit = 2
	MaxLimit     = 100
	MaxPage      = math.MaxInt32

	MaxTagLength = 100
)

// ErrInvalidID is returned by ParseID for identifiers that are not UUIDs.
var ErrInvalidID = errors.New("invalid id format")

// ErrForeignUser is returned by ActingUser when a request names a user other
// than the authenticated one.
var ErrForeignUser = errors.New("cannot act on behalf of another user")

// Initialize a validator instance using go-playground's validator package
var Validator = validator.New()

// Validate checks the struct fields against the specified validation tags.
func Validate(val interface{}) error {
	return Validator.Struct(val)
}

// HandleSuccess sends a structured JSON response for successful requests.
func HandleSuccess(context *fiber.Ctx, statusCode int, message string, data interface{}) error {
	return context.Status(statusCode).JSON(fiber.Map{
		"status":  "success",
		"message": message,
		"error":   nil,
		"data":    data,
	})
}

// HandleError sends a structured JSON response for errors.
func HandleError(context *fiber.Ctx, statusCode int, message string, err error) error {
	return context.Status(statusCode).JSON(GenerateErrorResponse(message, err))
}

// GenerateErrorResponse creates a custom Fiber-compatible error response object.
func GenerateErrorResponse(message string, err error) fiber.Map {
	var detail interface{}
	if err != nil {
		detail = err.Error()
	}
	return fiber.Map{
		"status":  "error",
		"message": message,
		"error":   detail,
		"data":    nil,
	}
}

// HandleStoreError maps a store failure to its response: missing records are
// 404 with notFound, unique violations 400 with "already exists", the rest 500
// with failure.
func HandleStoreError(c *fiber.Ctx, err error, notFound, failure string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return HandleError(c, fiber.StatusNotFound, notFound, nil)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return HandleError(c, fiber.StatusBadRequest, "Resource already exists", err)
	default:
		return HandleError(c, fiber.StatusInternalServerError, failure, err)
	}
}

// ValidateTagName checks a normalized tag name fits the tags.name column.
func ValidateTagName(name string) error {
	return Validator.Var(name, fmt.Sprintf("required,max=%d", MaxTagLength))
}

// ParseID parses a path or body identifier.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}

// ParsePagination extracts page and limit, falling back to the defaults for
// missing, malformed or non-positive values. page is capped at MaxPage so the
// offset cannot overflow.
func ParsePagination(c *fiber.Ctx) (int, int) {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page <= 0 {
		page = DefaultPage
	}
	if page > MaxPage {
		page = MaxPage
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// TotalPages is ceil(total / limit).
func TotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// CurrentUserID returns the authenticated user placed in Locals by the auth
// middleware, if any.
func CurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	raw, ok := c.Locals("user_id").(string)
	if !ok || raw == "" {
		return uuid.Nil, false
	}
	id, err := ParseID(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ActingUser resolves who a write is performed as. The authenticated user wins;
// a claimed id from the body is accepted only when it matches the token, or
// when the request carries no token at all. ok is false when neither is set.
func ActingUser(c *fiber.Ctx, claimed string) (id uuid.UUID, ok bool, err error) {
	current, authed := CurrentUserID(c)
	if claimed == "" {
		return current, authed, nil
	}
	id, err = ParseID(claimed)
	if err != nil {
		return uuid.Nil, false, err
	}
	if authed && id != current {
		return uuid.Nil, false, ErrForeignUser
	}
	return id, true, nil
}

// HandleActingUserError answers an ActingUser failure.
func HandleActingUserError(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrForeignUser) {
		return HandleError(c, fiber.StatusForbidden, "Cannot act on behalf of another user", nil)
	}
	return HandleError(c, fiber.StatusBadRequest, "Invalid user ID", err)
}
