package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/deppfellow/reqvalid/internal/errs"
	"github.com/deppfellow/reqvalid/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles clients by IP using Echo's in-memory store
// and reports rejections to New Relic.
type RateLimitMiddleware struct {
	server *server.Server
}

func NewRateLimitMiddleware(s *server.Server) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		server: s,
	}
}

// Limit returns the rate limiting middleware, or a pass-through one when
// server.rate_limit is zero.
func (r *RateLimitMiddleware) Limit() echo.MiddlewareFunc {
	cfg := r.server.Config.Server
	if cfg.RateLimit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	// One token is refilled every 1/rate seconds; that is the soonest a
	// rejected client can succeed.
	retryAfter := strconv.Itoa(int(math.Ceil(1 / cfg.RateLimit)))

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:  rate.Limit(cfg.RateLimit),
		Burst: cfg.RateLimitBurst,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		// Clients are told apart by IP (X-Forwarded-For / X-Real-IP aware).
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			r.RecordRateLimitHit(c.Path())

			c.Response().Header().Set("Retry-After", retryAfter)
			rateErr := errs.New(http.StatusTooManyRequests, "")
			rateErr.Action = &errs.Action{
				Type:    errs.ActionTypeRetry,
				Message: "Too many requests, retry later",
				Value:   retryAfter,
			}
			return rateErr
		},
		// The identifier could not be extracted.
		ErrorHandler: func(c echo.Context, err error) error {
			return errs.New(http.StatusForbidden, "")
		},
	})
}

// RecordRateLimitHit sends a RateLimitHit custom event for endpoint.
func (r *RateLimitMiddleware) RecordRateLimitHit(endpoint string) {
	if app := r.server.LoggerService.GetApplication(); app != nil {
		app.RecordCustomEvent("RateLimitHit", map[string]interface{}{
			"endpoint": endpoint,
		})
	}
}
