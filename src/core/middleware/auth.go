package middleware

import (
	"errors"

	"Postboard/src/core/helpers"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Protected validates the bearer token and stores its subject in Locals as
// "user_id".
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   jwtware.SigningKey{Key: []byte(secret)},
		ErrorHandler: jwtError,
		SuccessHandler: func(c *fiber.Ctx) error {
			// Extract user claims and attach user_id to the context
			token, ok := c.Locals("user").(*jwt.Token)
			if !ok {
				return helpers.HandleError(c, fiber.StatusUnauthorized, "Invalid or expired JWT", nil)
			}
			sub, err := token.Claims.GetSubject()
			if err != nil || sub == "" {
				return helpers.HandleError(c, fiber.StatusUnauthorized, "User ID missing in token", err)
			}
			c.Locals("user_id", sub)
			return c.Next()
		},
	})
}

// Optional runs Protected only when a secret is configured.
func Optional(secret string) fiber.Handler {
	if secret == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return Protected(secret)
}

// jwtError handles JWT-related errors
func jwtError(c *fiber.Ctx, err error) error {
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
		return helpers.HandleError(c, fiber.StatusUnauthorized, "Missing or malformed JWT", err)
	}
	return helpers.HandleError(c, fiber.StatusUnauthorized, "Invalid or expired JWT", err)
}
