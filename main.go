package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"Postboard/src/core/cache"
	"Postboard/src/core/config"
	"Postboard/src/core/database"
	"Postboard/src/core/router"
	"Postboard/src/modules/notifications"
	"Postboard/src/utils"
)

func main() {
	// Setup environment variables
	config.SetupEnv()
	settings := config.Load()

	// Connect to the database
	database.ConnectDB(settings)
	defer database.Close()

	postCache, err := cache.New(settings)
	if err != nil {
		log.Fatalf("Error creating cache: %v", err)
	}
	if closer, ok := postCache.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	uploader, err := utils.NewUploader(settings)
	if err != nil {
		log.Fatalf("Error creating uploader: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := notifications.NewHub(256)
	go hub.Run(ctx)

	// Initialize the Fiber app
	app := fiber.New()

	// Middleware
	app.Use(recover.New())   // Recover middleware to handle panics
	app.Use(cors.New())      // CORS middleware for cross-origin requests
	app.Use(requestid.New()) // Middleware to generate unique request IDs

	// Set up routes
	router.InitialiseAndSetupRoutes(app, router.Deps{
		DB:       database.DB,
		Cache:    postCache,
		Uploader: uploader,
		Hub:      hub,
		Settings: settings,
	})

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server")
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	if err := app.Listen(fmt.Sprintf(":%s", settings.AppPort)); err != nil {
		log.Fatal(err)
	}
}
