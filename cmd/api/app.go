package main

import (
	"database/sql"
	"strings"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stegapi/docs"
	"stegapi/internal/config"
	handlers "stegapi/internal/http/handler"
	"stegapi/internal/http/middleware"
	"stegapi/internal/otel"
	"stegapi/internal/service"
)

// multipartOverhead leaves room for the text fields next to the image part.
const multipartOverhead = 1 << 20

// newApp wires middleware and routes. reg must be a fresh registry per app.
func newApp(cfg *config.AppConfig, log *zap.Logger, db *sql.DB, svc service.StegoService, reg *prometheus.Registry) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		AppName:               otel.DefaultServiceName,
		BodyLimit:             cfg.Stego.MaxImageBytes + multipartOverhead,
		ReadTimeout:           time.Duration(cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout:          time.Duration(cfg.WriteTimeoutSec) * time.Second,
		ErrorHandler:          handlers.ErrorHandler(),
		DisableStartupMessage: true,
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, err
	}

	// Register global middleware
	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log.With(zap.String("component", "http"))))
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	handlers.RegisterRoutes(app, db, svc, int64(cfg.Stego.MaxImageBytes))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	return app, nil
}
