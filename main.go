package main

import (
	"os"

	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medqueue/opd-booking/config"
	"github.com/medqueue/opd-booking/internal/handler"
	"github.com/medqueue/opd-booking/internal/middleware"
	"github.com/medqueue/opd-booking/internal/notifier"
	"github.com/medqueue/opd-booking/internal/repository"
	"github.com/medqueue/opd-booking/internal/service"
	"github.com/medqueue/opd-booking/pkg/database"
	"github.com/medqueue/opd-booking/pkg/rabbitmq"
)

func main() {
	cfg := config.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().
		Timestamp().
		Str("service", "opd-booking").
		Logger()

	db := database.NewPostgresDB(cfg.DSN())

	// Broker mirror is optional: without RABBITMQ_URL events stay in-process.
	var broker notifier.BrokerPublisher
	if cfg.RabbitURL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer publisher.Close()
		broker = publisher
	}
	hub := notifier.NewHub(broker, logger)

	// Repositories
	doctorRepo := repository.NewDoctorRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	profileRepo := repository.NewProfileRepository(db)

	// Service
	bookingSvc := service.NewBookingService(bookingRepo, slotRepo, hub)

	// Echo
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Use(echoMw.RequestLoggerWithConfig(echoMw.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v echoMw.RequestLoggerValues) error {
			logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("request")
			return nil
		},
	}))
	e.Use(echoMw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok", "service": "opd-booking"})
	})

	api := e.Group("/api/v1", middleware.Auth(cfg.JWTSecret))
	handler.NewBookingHandler(bookingSvc, doctorRepo, slotRepo, profileRepo, hub).RegisterRoutes(api)

	admin := e.Group("/api/v1/admin", middleware.Auth(cfg.JWTSecret), middleware.RequireAdmin)
	handler.NewAdminHandler(bookingSvc, doctorRepo, slotRepo).RegisterRoutes(admin)

	logger.Info().Str("port", cfg.ServerPort).Msg("OPD booking service starting")
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
