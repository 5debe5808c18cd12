// Package router initializes the HTTP router (using Echo).
//
// It registers the middlewares and defines the API route groups,
// mapping specific paths to their corresponding handlers
package router

import (
	"net/http"

	"github.com/deppfellow/reqvalid/internal/handler"
	"github.com/deppfellow/reqvalid/internal/middleware"
	"github.com/deppfellow/reqvalid/internal/server"
	"github.com/deppfellow/reqvalid/internal/validation"
	"github.com/labstack/echo/v4"
)

// NewRouter builds the Echo instance: global middleware, the error handler,
// system routes and the versioned API.
func NewRouter(s *server.Server, h *handler.Handlers) *echo.Echo {
	middlewares := middleware.NewMiddlewares(s)

	router := echo.New()
	router.HideBanner = true
	router.HidePort = true

	router.HTTPErrorHandler = middlewares.Global.GlobalErrorHandler

	router.Use(
		middlewares.RateLimit.Limit(),
		middlewares.Global.CORS(),
		middlewares.Global.Secure(),
		middleware.RequestID(),
		middlewares.Tracing.NewRelicMiddleware(),
		middlewares.Tracing.EnhanceTracing(),
		middlewares.ContextEnhancer.EnhanceContext(),
		middlewares.Global.RequestLogger(),
		middlewares.Global.Recover(),
		middlewares.Global.BodyLimit(),
	)

	registerSystemRoutes(router, h)

	v1 := router.Group("/api/v1")
	registerUserRoutes(v1, s, h)

	return router
}

// registerUserRoutes mounts the user endpoints. Each route declares its
// section schemas with validation.ValidateRequest; handlers bind the
// validated values.
func registerUserRoutes(g *echo.Group, s *server.Server, h *handler.Handlers) {
	users := g.Group("/users")

	users.GET("",
		handler.Handle(h.Users.Handler, h.Users.ListUsers, http.StatusOK, &handler.ListUsersQuery{}),
		validation.ValidateRequest(validation.Validators{
			Query: validation.NewStructSchema[handler.ListUsersQuery](nil),
		}),
	)

	users.PUT("/:id/profile",
		handler.Handle(h.Users.Handler, h.Users.UpdateProfile, http.StatusOK, &handler.UpdateProfileRequest{}),
		validation.ValidateRequest(s.Schemas.Validators("profile")),
	)

	users.DELETE("/:id",
		handler.HandleNoContent(h.Users.Handler, h.Users.DeleteUser, http.StatusNoContent, &handler.DeleteUserParams{}),
		validation.ValidateRequest(validation.Validators{
			Params: validation.NewStructSchema[handler.DeleteUserParams](nil),
		}),
	)
}
