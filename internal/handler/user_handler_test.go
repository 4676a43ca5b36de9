package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "librarian/internal/errors"
	"librarian/internal/model"
	"librarian/internal/service"
)

func TestUserHandler_ListUsers(t *testing.T) {
	svc := new(MockUserService)
	svc.On("List", mock.Anything, service.ListUsersInput{
		Role: model.RoleAdmin, SortBy: "role", SortOrder: "desc", Page: 2, Limit: 5,
	}).Return([]model.User{{Email: "root@example.com", PasswordHash: "secret-hash"}}, int64(6), nil)

	c, rec := newTestContext(t, http.MethodGet, "/api/users?role=admin&sortBy=role&sortOrder=desc&page=2&limit=5", "")
	serve(c, NewUserHandler(svc).ListUsers)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp UserListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(6), resp.Total)
	assert.Len(t, resp.Data, 1)
	assert.NotContains(t, rec.Body.String(), "secret-hash")
}

func TestUserHandler_GetUser(t *testing.T) {
	id := uuid.New()
	svc := new(MockUserService)
	svc.On("Get", mock.Anything, id).Return(nil, apperrors.ErrUserNotFound)

	c, rec := newTestContext(t, http.MethodGet, "/api/users/"+id.String(), "")
	withID(c, id.String())
	serve(c, NewUserHandler(svc).GetUser)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", decodeError(t, rec.Body.Bytes()).Code)
}

func TestUserHandler_UpdateUser(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name         string
		payload      string
		setupMock    func(*MockUserService)
		expectedCode int
	}{
		{
			name:    "role change",
			payload: `{"role":"admin","firstName":"Grace"}`,
			setupMock: func(m *MockUserService) {
				m.On("Update", mock.Anything, id, mock.MatchedBy(func(in service.UpdateUserInput) bool {
					return in.Role != nil && *in.Role == model.RoleAdmin &&
						in.FirstName != nil && *in.FirstName == "Grace" && in.Password == nil
				})).Return(&model.User{ID: id, Role: model.RoleAdmin}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:    "deactivate",
			payload: `{"isActive":false}`,
			setupMock: func(m *MockUserService) {
				m.On("Update", mock.Anything, id, mock.MatchedBy(func(in service.UpdateUserInput) bool {
					return in.IsActive != nil && !*in.IsActive && in.Role == nil
				})).Return(&model.User{ID: id}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:         "unknown role",
			payload:      `{"role":"owner"}`,
			setupMock:    func(m *MockUserService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "short password",
			payload:      `{"password":"123"}`,
			setupMock:    func(m *MockUserService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:    "email taken",
			payload: `{"email":"taken@example.com"}`,
			setupMock: func(m *MockUserService) {
				m.On("Update", mock.Anything, id, mock.Anything).Return(nil, apperrors.ErrEmailTaken)
			},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockUserService)
			tt.setupMock(svc)

			c, rec := newTestContext(t, http.MethodPut, "/api/users/"+id.String(), tt.payload)
			withID(c, id.String())
			serve(c, NewUserHandler(svc).UpdateUser)

			assert.Equal(t, tt.expectedCode, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestUserHandler_DeleteUser(t *testing.T) {
	id := uuid.New()
	svc := new(MockUserService)
	svc.On("Delete", mock.Anything, id).Return(nil)

	c, rec := newTestContext(t, http.MethodDelete, "/api/users/"+id.String(), "")
	withID(c, id.String())
	serve(c, NewUserHandler(svc).DeleteUser)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"User deleted successfully"}`, rec.Body.String())

	c, rec = newTestContext(t, http.MethodDelete, "/api/users/abc", "")
	withID(c, "abc")
	serve(c, NewUserHandler(svc).DeleteUser)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserHandler_Sessions(t *testing.T) {
	id := uuid.New()
	svc := new(MockUserService)
	svc.On("ActiveSessions", mock.Anything, id).Return(2, nil)

	c, rec := newTestContext(t, http.MethodGet, "/api/users/"+id.String()+"/sessions", "")
	withID(c, id.String())
	serve(c, NewUserHandler(svc).Sessions)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionCountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.UserID)
	assert.Equal(t, 2, resp.ActiveSessions)
}

func TestHealthHandler_Ready(t *testing.T) {
	ok := Check{Name: "database", Probe: func(context.Context) error { return nil }}
	down := Check{Name: "redis", Probe: func(context.Context) error { return errors.New("connection refused") }}

	c, rec := newTestContext(t, http.MethodGet, "/readyz", "")
	serve(c, NewHealthHandler(ok).Ready)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newTestContext(t, http.MethodGet, "/readyz", "")
	serve(c, NewHealthHandler(ok, down).Ready)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
	assert.Equal(t, "connection refused", resp.Checks["redis"])
}
