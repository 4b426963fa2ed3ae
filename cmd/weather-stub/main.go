package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-client/internal/stubapi"
)

func main() {
	log := logrus.New()

	app := fiber.New(fiber.Config{
		AppName:               "weather-stub",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	stubapi.RegisterRoutes(app)

	port := os.Getenv("WEATHER_STUB_PORT")
	if port == "" {
		port = "10680"
	}

	go func() {
		log.WithField("port", port).Info("weather stub listening")
		if err := app.Listen(":" + port); err != nil {
			log.WithError(err).Error("fiber server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Error("error during shutdown")
	}
}
