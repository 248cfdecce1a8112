// Package main is the entry point for the API server. It initializes
// the database, sets up the HTTP middleware stack and mounts the
// application routes.
package main

import (
	"time"

	"veyra/internal/config"
	"veyra/internal/repositories"
	"veyra/internal/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	config.LoadEnv()

	if config.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if err := repositories.InitDB(); err != nil {
		logrus.WithError(err).Fatal("database initialization failed")
	}

	sqlDB, err := repositories.DB.DB()
	if err != nil {
		logrus.WithError(err).Fatal("failed to get database instance")
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		logrus.WithError(err).Fatal("database ping failed")
	}
	logrus.Info("connected to database")

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins:     config.GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Throttle credential endpoints per source IP.
	for _, path := range []string{"/api/register", "/api/login"} {
		app.Use(path, limiter.New(limiter.Config{
			Max:        5,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests. Please try again later.",
				})
			},
		}))
	}

	routes.SetupRoutes(app, repositories.DB)

	logrus.Fatal(app.Listen(":" + config.GetEnv("PORT", "3000")))
}
