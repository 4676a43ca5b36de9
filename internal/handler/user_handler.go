package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "librarian/internal/errors"
	"librarian/internal/model"
	"librarian/internal/service"
)

// UserHandler bundles the admin user management handlers.
type UserHandler struct {
	svc service.UserService
}

// NewUserHandler creates a handler layer.
func NewUserHandler(svc service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// UpdateUserRequest represents a partial user update.
type UpdateUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Role      *string `json:"role" validate:"omitempty,oneof=user admin"`
	Password  *string `json:"password" validate:"omitempty,min=6"`
	IsActive  *bool   `json:"isActive"`
}

// UserListResponse is one page of users.
type UserListResponse struct {
	Total int64        `json:"total"`
	Data  []model.User `json:"data"`
}

// ListUsers godoc
// @Summary List users
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size (default 10, max 100)"
// @Param role query string false "Filter by role" Enums(user, admin)
// @Param sortBy query string false "Sort column" Enums(email, role)
// @Param sortOrder query string false "Sort direction" Enums(asc, desc)
// @Success 200 {object} UserListResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /users [get]
func (h *UserHandler) ListUsers(c echo.Context) error {
	users, total, err := h.svc.List(c.Request().Context(), service.ListUsersInput{
		Role:      model.Role(c.QueryParam("role")),
		SortBy:    c.QueryParam("sortBy"),
		SortOrder: c.QueryParam("sortOrder"),
		Page:      queryInt(c, "page"),
		Limit:     queryInt(c, "limit"),
	})
	if err != nil {
		return apperrors.FromError(err)
	}
	if users == nil {
		users = []model.User{}
	}
	return c.JSON(http.StatusOK, UserListResponse{Total: total, Data: users})
}

// GetUser godoc
// @Summary Get user by id
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} model.User
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	user, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// SessionCountResponse reports how many sessions a user holds.
type SessionCountResponse struct {
	UserID         uuid.UUID `json:"userId"`
	ActiveSessions int       `json:"activeSessions"`
}

// Sessions godoc
// @Summary Count active sessions of a user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} SessionCountResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{id}/sessions [get]
func (h *UserHandler) Sessions(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	n, err := h.svc.ActiveSessions(c.Request().Context(), id)
	if err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusOK, SessionCountResponse{UserID: id, ActiveSessions: n})
}

// UpdateUser godoc
// @Summary Update user
// @Description Changing the email, role or password, or deactivating the account, signs the user out everywhere.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body UpdateUserRequest true "Fields to change"
// @Success 200 {object} model.User
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{id} [put]
func (h *UserHandler) UpdateUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req UpdateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	in := service.UpdateUserInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		IsActive:  req.IsActive,
	}
	if req.Role != nil {
		role := model.Role(*req.Role)
		in.Role = &role
	}

	user, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// DeleteUser godoc
// @Summary Delete user
// @Description Borrow records of the user are kept.
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{id} [delete]
func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}
