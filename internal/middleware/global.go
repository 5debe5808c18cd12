package middleware

import (
	"net/http"

	"github.com/deppfellow/reqvalid/internal/errs"
	"github.com/deppfellow/reqvalid/internal/server"
	"github.com/deppfellow/reqvalid/internal/validation"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// GlobalMiddlewares groups “global” middleware and the global error handler.
//
// They read config values (CORS origins, body limit, env) from *server.Server.
type GlobalMiddlewares struct {
	server *server.Server
}

// NewGlobalMiddlewares constructs the middleware bundle.
func NewGlobalMiddlewares(s *server.Server) *GlobalMiddlewares {
	return &GlobalMiddlewares{
		server: s,
	}
}

// CORS returns Echo’s CORS middleware configured by your server config.
func (global *GlobalMiddlewares) CORS() echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: global.server.Config.Server.CORSAllowedOrigins,
	})
}

// BodyLimit rejects bodies larger than validation.body_limit with 413
// before anything tries to decode them.
func (global *GlobalMiddlewares) BodyLimit() echo.MiddlewareFunc {
	return middleware.BodyLimit(global.server.Config.Validation.BodyLimit)
}

// RequestLogger returns Echo’s request logger middleware, but with a custom LogValuesFunc.
//
// One "API" line per request, with severity based on the final status.
// Requests slower than logging.slow_request_threshold are logged at warn.
func (global *GlobalMiddlewares) RequestLogger() echo.MiddlewareFunc {
	slowThreshold := global.server.Config.Observability.Logging.SlowRequestThreshold

	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogError:   true,
		LogLatency: true,
		LogHost:    true,
		LogMethod:  true,
		LogURIPath: true,

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			statusCode := v.Status

			// When a handler returns an error the response is written later by
			// GlobalErrorHandler, so v.Status is not final yet; derive it.
			// Reference: https://github.com/labstack/echo/issues/2310#issuecomment-1288196898
			if v.Error != nil {
				statusCode = statusFromError(v.Error)
			}

			logger := GetLogger(c)

			// Pick severity from the final status; slow successes are
			// promoted to warn so they stand out.
			var e *zerolog.Event
			switch {
			case statusCode >= 500:
				e = logger.Error().Err(v.Error)
			case statusCode >= 400:
				e = logger.Warn()
			case slowThreshold > 0 && v.Latency > slowThreshold:
				e = logger.Warn().Bool("slow", true)
			default:
				e = logger.Info()
			}

			if requestID := GetRequestID(c); requestID != "" {
				e = e.Str("request_id", requestID)
			}

			e.
				Dur("latency", v.Latency).
				Int("status", statusCode).
				Str("method", v.Method).
				Str("uri", v.URI).
				Str("host", v.Host).
				Str("ip", c.RealIP()).
				Str("user_agent", c.Request().UserAgent()).
				Msg("API")

			return nil
		},
	})
}

// statusFromError returns the status GlobalErrorHandler will answer err with.
func statusFromError(err error) int {
	var httpErr *errs.HTTPError
	var echoErr *echo.HTTPError
	var validationErr *validation.Error

	switch {
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &httpErr):
		return httpErr.Status
	case errors.As(err, &echoErr):
		return echoErr.Code
	}
	return http.StatusInternalServerError
}

// Recover returns Echo’s panic recovery middleware.
// Panics become errors handled by GlobalErrorHandler (500).
func (global *GlobalMiddlewares) Recover() echo.MiddlewareFunc {
	return middleware.Recover()
}

// Secure returns Echo’s secure headers middleware.
func (global *GlobalMiddlewares) Secure() echo.MiddlewareFunc {
	return middleware.Secure()
}

// GlobalErrorHandler is the final error funnel for the entire HTTP server.
//
// Mapping:
//   - *validation.Error (handler-level validation): 422 with the issues,
//     the same body ValidateRequest writes
//   - *errs.HTTPError: as is
//   - *echo.HTTPError: 404 becomes "Route not found", others keep their status
//   - anything else, *validation.SectionError included: a generic 500
//
// The original error is always logged with the request logger.
func (global *GlobalMiddlewares) GlobalErrorHandler(err error, c echo.Context) {
	// Keep the original error for logging; `err` may be replaced below by
	// something safe to show the client.
	originalErr := err

	// Request-scoped logger (request_id, route, trace ids already attached).
	logger := *GetLogger(c)

	// Handler-level validation failed: answer exactly like ValidateRequest,
	// a 422 with the issue array instead of the error envelope.
	var validationErr *validation.Error
	if errors.As(err, &validationErr) {
		logger.Info().
			Int("issues", len(validationErr.Issues)).
			Msg("request validation failed")

		if !c.Response().Committed {
			issues := validationErr.Issues
			if issues == nil {
				issues = []validation.Issue{}
			}
			_ = c.JSON(http.StatusUnprocessableEntity, issues)
		}
		return
	}

	// If error is not already our custom HTTP error, attempt to convert it.
	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) {

		// Echo reports its own failures (unknown route, 413 from BodyLimit,
		// 415 from body decoding) as *echo.HTTPError.
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			if echoErr.Code == http.StatusNotFound {
				err = errs.NewNotFoundError("Route not found", false, nil)
			} else {
				// Message can be any type; errs.New falls back to the status text.
				message, _ := echoErr.Message.(string)
				err = errs.New(echoErr.Code, message)
			}
		}

		// Anything else (a *validation.SectionError included) stays as is
		// and falls through to the generic 500 below.
	}

	var status int
	var code string
	var message string
	var fieldErrors []errs.FieldError
	var action *errs.Action

	// Now map whichever error we ended up with into response fields.
	if errors.As(err, &httpErr) {
		// Our custom error already has the full response schema.
		status = httpErr.Status
		code = httpErr.Code
		message = httpErr.Message
		fieldErrors = httpErr.Errors
		action = httpErr.Action
	} else {
		// Absolute fallback: safe 500.
		internal := errs.NewInternalServerError()
		status = internal.Status
		code = internal.Code
		message = internal.Message
	}

	// Client errors are warnings; server errors get the stack.
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error().Stack()
	}

	// Say which request section was being validated when it broke.
	var sectionErr *validation.SectionError
	if errors.As(originalErr, &sectionErr) {
		event = event.Str("section", string(sectionErr.Section))
	}

	event.
		Err(originalErr).
		Int("status", status).
		Str("error_code", code).
		Msg(message)

	// Only write response if it hasn't already been written.
	if !c.Response().Committed {
		_ = c.JSON(status, errs.HTTPError{
			Code:     code,
			Message:  message,
			Status:   status,
			Override: httpErr != nil && httpErr.Override,
			Errors:   fieldErrors,
			Action:   action,
		})
	}
}
