package handler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/deppfellow/reqvalid/internal/errs"
	"github.com/deppfellow/reqvalid/internal/server"
	"github.com/deppfellow/reqvalid/internal/validation"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var requestValidator = validation.NewValidator()

var errUserNotFound = errs.NewNotFoundError("User not found", true, nil)

// User is the public shape of a user.
type User struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Age    int       `json:"age"`
	Email  string    `json:"email,omitempty"`
	Tags   []string  `json:"tags"`
	Notify bool      `json:"notify"`
}

// seedUsers is the read-only directory served by the users endpoints.
var seedUsers = []User{
	{ID: uuid.MustParse("0b6f3c1e-5a4d-4f7e-9c2b-1d8e7a6f5b40"), Name: "Ada", Age: 36, Email: "ada@example.com", Tags: []string{"admin", "math"}},
	{ID: uuid.MustParse("3f2a9d84-6b1c-4e0a-8f57-2c9b1e4d7a63"), Name: "Grace", Age: 45, Email: "grace@example.com", Tags: []string{"navy", "compilers"}},
	{ID: uuid.MustParse("7c1e5b92-0d3f-4a86-b2e4-9f6a8c3d1e25"), Name: "Linus", Age: 28, Tags: []string{"kernel"}},
	{ID: uuid.MustParse("a94d2e61-8c7b-4f35-a0d9-6e1b3c5f8a17"), Name: "Margaret", Age: 52, Email: "margaret@example.com", Tags: []string{"apollo", "math"}},
	{ID: uuid.MustParse("e5b8c3f0-2a19-4d6e-b7c4-0f3d9a2e6b81"), Name: "Barbara", Age: 31, Tags: []string{"compilers", "admin"}},
}

// UserHandler serves the user endpoints. Requests reach it after the route's
// validation middleware, so bound values are already coerced and defaulted.
type UserHandler struct {
	Handler
	users []User
}

func NewUserHandler(s *server.Server) *UserHandler {
	return &UserHandler{
		Handler: NewHandler(s),
		users:   seedUsers,
	}
}

// UpdateProfileRequest merges the profile body, the :id parameter and the
// notify query flag.
type UpdateProfileRequest struct {
	ID     string `json:"id" validate:"required,uuid"`
	Name   string `json:"name" validate:"required,min=1,max=100"`
	Age    int    `json:"age" validate:"gte=0,lte=150"`
	Email  string `json:"email" validate:"omitempty,email"`
	Notify bool   `json:"notify"`
}

func (r *UpdateProfileRequest) Validate() error {
	return requestValidator.Struct(r)
}

// UpdateProfile echoes the updated profile of an existing user. The
// directory is read-only, so nothing is stored.
func (h *UserHandler) UpdateProfile(c echo.Context, req *UpdateProfileRequest) (User, error) {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return User{}, errs.NewBadRequestError("Invalid user id", false, nil, nil, nil)
	}

	user, ok := h.find(id)
	if !ok {
		return User{}, errUserNotFound
	}

	user.Name = req.Name
	user.Age = req.Age
	user.Email = req.Email
	user.Notify = req.Notify
	return user, nil
}

// ListUsersQuery is both the query schema of GET /users and its bound request.
type ListUsersQuery struct {
	Page  int      `json:"page" validate:"min=1"`
	Limit int      `json:"limit" validate:"min=1,max=100"`
	Tags  []string `json:"tags,omitempty" validate:"omitempty,max=5,dive,min=2,max=32"`
	Sort  string   `json:"sort" validate:"oneof=name -name age -age"`
}

func (q *ListUsersQuery) SetDefaults() {
	q.Page = 1
	q.Limit = 20
	q.Sort = "name"
}

func (q *ListUsersQuery) Validate() error {
	return requestValidator.Struct(q)
}

// UserPage is one page of users.
type UserPage struct {
	Data  []User `json:"data"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Total int    `json:"total"`
}

// ListUsers filters users by tag (any match), sorts and paginates them.
func (h *UserHandler) ListUsers(c echo.Context, q *ListUsersQuery) (UserPage, error) {
	matched := make([]User, 0, len(h.users))
	for _, u := range h.users {
		if len(q.Tags) == 0 || slices.ContainsFunc(q.Tags, func(tag string) bool {
			return slices.Contains(u.Tags, tag)
		}) {
			matched = append(matched, u)
		}
	}

	field, desc := strings.TrimPrefix(q.Sort, "-"), strings.HasPrefix(q.Sort, "-")
	slices.SortStableFunc(matched, func(a, b User) int {
		var cmp int
		switch field {
		case "age":
			cmp = a.Age - b.Age
		default:
			cmp = strings.Compare(a.Name, b.Name)
		}
		if desc {
			return -cmp
		}
		return cmp
	})

	page := UserPage{Data: []User{}, Page: q.Page, Limit: q.Limit, Total: len(matched)}
	start := (q.Page - 1) * q.Limit
	if start < len(matched) {
		page.Data = matched[start:min(start+q.Limit, len(matched))]
	}
	return page, nil
}

// DeleteUserParams is the :id path parameter of DELETE /users/:id.
type DeleteUserParams struct {
	ID string `json:"id" validate:"required,uuid"`
}

func (p *DeleteUserParams) Validate() error {
	return requestValidator.Struct(p)
}

// DeleteUser answers 204 for a known user and 404 otherwise. The directory
// is read-only, so the user stays listed.
func (h *UserHandler) DeleteUser(c echo.Context, p *DeleteUserParams) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return errs.NewBadRequestError("Invalid user id", false, nil, nil, nil)
	}

	if _, ok := h.find(id); !ok {
		return errUserNotFound.WithMessage(fmt.Sprintf("User %s not found", id))
	}
	return nil
}

func (h *UserHandler) find(id uuid.UUID) (User, bool) {
	for _, u := range h.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}
