// Package api serves the territory engine's operational endpoints.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/territoryengine/pkg/container"
	"github.com/jordanlanch/territoryengine/pkg/domain"
	apimw "github.com/jordanlanch/territoryengine/pkg/middleware"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewServer builds the echo server for c.
func NewServer(c *container.Container) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogValuesFunc: func(ec echo.Context, v middleware.RequestLoggerValues) error {
			c.Logger.Debug("Request handled", "method", ec.Request().Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if c.Config.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true, // let Recover turn the panic into a 500
		}))
	}
	e.Use(apimw.SecurityHeaders(apimw.SecurityHeadersConfig{}))
	e.Use(c.Metrics.Middleware())

	h := &handler{c: c, prom: echo.WrapHandler(promhttp.Handler())}
	e.GET("/health", h.health)
	e.GET("/metrics", h.metrics)

	admin := e.Group("/admin")
	if c.Config.AdminRateLimitPerMinute > 0 {
		limiter := apimw.NewRateLimiter(c.Config.AdminRateLimitPerMinute, c.Config.AdminRateLimitBurst)
		admin.Use(limiter.RateLimitMiddleware())
	}
	admin.Use(apimw.RequireAdminToken(c.Config.AdminToken))
	admin.POST("/jobs/ownership-sync", h.runOwnershipSync)
	admin.POST("/jobs/analytics-warm", h.runAnalyticsWarm)
	admin.GET("/territories/:id/ownership", h.ownershipStatistics)
	admin.GET("/territories/:id/performance", h.performance)

	return e
}

type handler struct {
	c    *container.Container
	prom echo.HandlerFunc
}

func (h *handler) recordDBConnections() {
	h.c.Metrics.UpdateDBConnections(float64(h.c.DB.Stats().OpenConnections))
}

func (h *handler) metrics(ec echo.Context) error {
	h.recordDBConnections()
	return h.prom(ec)
}

func (h *handler) health(ec echo.Context) error {
	ctx, cancel := context.WithTimeout(ec.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.c.DB.Ping(ctx); err != nil {
		return ec.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":   "unhealthy",
			"database": "down",
		})
	}

	h.recordDBConnections()

	body := map[string]any{"status": "healthy", "database": "up", "cache": "disabled"}
	if h.c.Cache != nil {
		if err := h.c.Cache.Set(ctx, "territory:health", "ok", time.Minute); err != nil {
			return ec.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"cache":  "down",
			})
		}
		body["cache"] = "up"
	}
	return ec.JSON(http.StatusOK, body)
}

func (h *handler) runOwnershipSync(ec echo.Context) error {
	ctx, cancel := context.WithTimeout(ec.Request().Context(), 5*time.Minute)
	defer cancel()

	updated, err := h.c.Cron.RunOwnershipSync(ctx)
	if err != nil {
		return writeError(ec, err)
	}
	return ec.JSON(http.StatusOK, map[string]any{"updated": updated})
}

func (h *handler) runAnalyticsWarm(ec echo.Context) error {
	ctx, cancel := context.WithTimeout(ec.Request().Context(), 5*time.Minute)
	defer cancel()

	n, err := h.c.AnalyticsService.WarmCache(ctx)
	if err != nil {
		return writeError(ec, err)
	}
	return ec.JSON(http.StatusOK, map[string]any{"territories": n})
}

func (h *handler) ownershipStatistics(ec echo.Context) error {
	stats, err := h.c.OwnershipHandler.GetOwnershipStatistics(ec.Request().Context(), ec.Param("id"))
	if err != nil {
		return writeError(ec, err)
	}
	return ec.JSON(http.StatusOK, stats)
}

func (h *handler) performance(ec echo.Context) error {
	m, err := h.c.AnalyticsService.GetPerformanceMetrics(ec.Request().Context(), ec.Param("id"))
	if err != nil {
		return writeError(ec, err)
	}
	return ec.JSON(http.StatusOK, m)
}

// writeError maps domain error codes to HTTP statuses without exposing internals.
func writeError(ec echo.Context, err error) error {
	switch domain.GetErrorCode(err) {
	case domain.ErrCodeNotFound:
		return ec.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	case domain.ErrCodeValidation:
		return ec.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
	case domain.ErrCodeConflict:
		return ec.JSON(http.StatusConflict, ErrorResponse{Error: "conflict", Message: err.Error()})
	}

	log.Printf("[INTERNAL ERROR] Path: %s, Error: %v", ec.Request().URL.Path, err)
	if hub := sentryecho.GetHubFromContext(ec); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
	return ec.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}
