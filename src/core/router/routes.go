package router

import (
	"log"
	"sort"

	"Postboard/src/core/cache"
	"Postboard/src/core/config"
	"Postboard/src/core/middleware"
	"Postboard/src/modules/authentication"
	"Postboard/src/modules/comments"
	"Postboard/src/modules/notifications"
	"Postboard/src/modules/posts"
	"Postboard/src/modules/tags"
	"Postboard/src/modules/users"
	"Postboard/src/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

// Deps are the shared services the handlers are built from.
type Deps struct {
	DB       *gorm.DB
	Cache    cache.Cache
	Uploader utils.Uploader
	Hub      *notifications.Hub
	Settings config.Settings
}

func InitialiseAndSetupRoutes(app *fiber.App, d Deps) {
	root := app.Group("/", logger.New())

	root.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	if d.Settings.StorageDriver == "" || d.Settings.StorageDriver == "local" {
		app.Static("/images", d.Settings.UploadDir)
	}

	var notifier notifications.Publisher = notifications.Nop{}
	if d.Hub != nil {
		notifier = d.Hub
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/posts", websocket.New(d.Hub.Handler()))
	}

	apiV1 := root.Group("/api/v1")
	setupAPIV1Routes(apiV1, d, notifier)

	routes := app.GetRoutes()
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Path < routes[j].Path
	})
	for _, route := range routes {
		log.Printf("%s\t%s", route.Method, route.Path)
	}
}

func setupAPIV1Routes(router fiber.Router, d Deps, notifier notifications.Publisher) {
	protected := middleware.Optional(d.Settings.JWTSecret)

	authHandler := authentication.NewHandler(d.DB, d.Settings.JWTSecret)
	userHandler := users.NewHandler(d.DB)
	postHandler := posts.NewHandler(d.DB, d.Cache, d.Uploader, notifier)
	tagHandler := tags.NewHandler(d.DB, d.Cache, notifier)
	commentHandler := comments.NewHandler(d.DB, d.Cache)

	// Grouped API endpoints
	authGroup := router.Group("/auth")
	userGroup := router.Group("/users")
	postGroup := router.Group("/posts")
	tagGroup := router.Group("/tags")

	// Authentication routes
	authGroup.Post("/signup", authHandler.SignUp)
	authGroup.Post("/signin", authHandler.SignIn)

	userGroup.Get("/:id", userHandler.GetUser)

	postGroup.Get("/", postHandler.GetPosts)
	postGroup.Get("/:id", postHandler.GetPostByID)
	postGroup.Post("/", protected, postHandler.CreatePost)
	postGroup.Put("/:id", protected, postHandler.UpdatePost)
	postGroup.Patch("/:id", protected, postHandler.UpdatePost)
	postGroup.Delete("/:id", protected, postHandler.DeletePost)
	postGroup.Get("/:id/comments", commentHandler.GetComments)
	postGroup.Post("/:id/comments", protected, commentHandler.CreateComment)

	tagGroup.Get("/", tagHandler.GetTags)
	tagGroup.Get("/:id", tagHandler.GetTagByID)
	tagGroup.Post("/", protected, tagHandler.CreateTag)
	tagGroup.Put("/:id", protected, tagHandler.UpdateTag)
	tagGroup.Delete("/:id", protected, tagHandler.DeleteTag)
	tagGroup.Post("/:id/assign", protected, tagHandler.AssignTagToPost)
	tagGroup.Post("/:id/remove", protected, tagHandler.RemoveTagFromPost)
}
