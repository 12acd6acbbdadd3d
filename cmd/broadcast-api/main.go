package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-broadcast/internal/adapters/db/postgres"
	"whatsapp-broadcast/internal/adapters/queue/rabbitmq"
	"whatsapp-broadcast/internal/app"
	cfg "whatsapp-broadcast/internal/config"
	"whatsapp-broadcast/internal/middleware"
	"whatsapp-broadcast/internal/phone"
	"whatsapp-broadcast/internal/transport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	if err := run(log); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	conf := cfg.FromEnv()

	store, err := postgres.New(conf.DatabaseURL, log)
	if err != nil {
		return errors.New("failed to connect to postgres: " + err.Error())
	}
	defer store.Close()

	publisher, err := rabbitmq.NewPublisher(conf.AMQPURL)
	if err != nil {
		return errors.New("failed to connect to rabbitmq: " + err.Error())
	}
	defer publisher.Close()

	svc := app.NewCampaignService(store, publisher, phone.Brazil{}, conf.Batch, log)

	fiberApp := fiber.New(fiber.Config{
		AppName:               "broadcast-api",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           120 * time.Second,
		ServerHeader:          "",
		// Recipient lists can run to tens of thousands of numbers.
		BodyLimit: 5 * 1024 * 1024,
	})

	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	fiberApp.Use(middleware.RequestID())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.CORSConfig())
	fiberApp.Use(middleware.IPRateLimit(100, time.Minute))

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	// Campaign creation fans out into thousands of sends, so it gets its own
	// much tighter budget on top of the global limit.
	dispatch := middleware.NewDispatchLimiter(10, time.Minute)

	handler := transport.NewHandler(svc, log)
	api := fiberApp.Group("/api")
	handler.Register(api, dispatch.Middleware())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("broadcast-api started", "addr", conf.HTTPAddr)
		if err := fiberApp.Listen(conf.HTTPAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return errors.New("failed to shutdown gracefully: " + err.Error())
	}

	log.Info("broadcast-api stopped gracefully")
	return nil
}
