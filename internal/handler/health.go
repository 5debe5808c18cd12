package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deppfellow/reqvalid/internal/middleware"
	"github.com/deppfellow/reqvalid/internal/server"
	"github.com/labstack/echo/v4"
)

// HealthHandler serves GET /status for load balancers and uptime monitors.
type HealthHandler struct {
	Handler
}

// NewHealthHandler constructs a HealthHandler with access to shared app dependencies.
func NewHealthHandler(s *server.Server) *HealthHandler {
	return &HealthHandler{
		Handler: NewHandler(s),
	}
}

// healthCheck verifies one dependency and returns extra fields for the report.
type healthCheck func(ctx context.Context) (map[string]interface{}, error)

func (h *HealthHandler) checks() map[string]healthCheck {
	return map[string]healthCheck{
		"schemas": h.checkSchemas,
	}
}

// checkSchemas fails when the registry holds no schema.
func (h *HealthHandler) checkSchemas(ctx context.Context) (map[string]interface{}, error) {
	names := h.server.Schemas.Names()
	if len(names) == 0 {
		return nil, fmt.Errorf("no validation schemas loaded")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"count": len(names),
		"names": names,
	}, nil
}

// CheckHealth returns system health status and the configured checks.
//
// Response includes:
// - overall status (healthy/unhealthy)
// - timestamp (UTC)
// - environment (from config)
// - checks map (e.g. schemas)
//
// It returns 200 when every check passes and 503 otherwise.
func (h *HealthHandler) CheckHealth(c echo.Context) error {
	start := time.Now()

	logger := middleware.GetLogger(c).With().
		Str("operation", "health_check").
		Logger()

	checks := make(map[string]interface{})
	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"environment": h.server.Config.Primary.Env,
		"checks":      checks,
	}

	cfg := h.server.Config.Observability.HealthChecks
	isHealthy := true

	if cfg.Enabled {
		ctx := c.Request().Context()
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		available := h.checks()
		for _, name := range cfg.Checks {
			check, ok := available[name]
			if !ok {
				logger.Warn().Str("check", name).Msg("unknown health check configured")
				continue
			}

			checkStart := time.Now()
			fields, err := check(ctx)

			result := map[string]interface{}{
				"status":        "healthy",
				"response_time": time.Since(checkStart).String(),
			}
			for k, v := range fields {
				result[k] = v
			}

			if err != nil {
				isHealthy = false
				result["status"] = "unhealthy"
				result["error"] = err.Error()

				logger.Error().
					Err(err).
					Str("check", name).
					Dur("response_time", time.Since(checkStart)).
					Msg("health check failed")

				if app := h.server.LoggerService.GetApplication(); app != nil {
					app.RecordCustomEvent("HealthCheckError", map[string]interface{}{
						"check_type":       name,
						"operation":        "health_check",
						"response_time_ms": time.Since(checkStart).Milliseconds(),
						"error_message":    err.Error(),
					})
				}
			}

			checks[name] = result
		}
	}

	if !isHealthy {
		response["status"] = "unhealthy"

		logger.Warn().
			Dur("total_duration", time.Since(start)).
			Msg("health check failed")

		return c.JSON(http.StatusServiceUnavailable, response)
	}

	logger.Debug().
		Dur("total_duration", time.Since(start)).
		Msg("health check passed")

	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write JSON response: %w", err)
	}

	return nil
}
