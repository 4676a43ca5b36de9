package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"librarian/internal/auth"
	apperrors "librarian/internal/errors"
	"librarian/internal/model"
	"librarian/internal/service"
)

// newTestContext builds an echo context with the production validator and error handler.
func newTestContext(t *testing.T, method, path, payload string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = apperrors.HTTPErrorHandler(zerolog.Nop())

	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	if payload != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// serve runs h and renders a returned error the way the server does.
func serve(c echo.Context, h echo.HandlerFunc) {
	if err := h(c); err != nil {
		c.Echo().HTTPErrorHandler(err, c)
	}
}

func withID(c echo.Context, id string) {
	c.SetParamNames("id")
	c.SetParamValues(id)
}

func asUser(c echo.Context, userID uuid.UUID, role model.Role) {
	auth.WithIdentity(c, &auth.Identity{UserID: userID, Email: "reader@example.com", Role: role, TokenID: "jti"})
}

// MockAuthService is a mock implementation of service.AuthService.
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, in service.RegisterInput) (*model.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*model.User), args.Error(2)
}

func (m *MockAuthService) Logout(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockAuthService) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

// MockBookService is a mock implementation of service.BookService.
type MockBookService struct {
	mock.Mock
}

func (m *MockBookService) Create(ctx context.Context, in service.CreateBookInput) (*model.Book, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Book), args.Error(1)
}

func (m *MockBookService) Import(ctx context.Context, in []service.CreateBookInput) (int, error) {
	args := m.Called(ctx, in)
	return args.Int(0), args.Error(1)
}

func (m *MockBookService) Get(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Book), args.Error(1)
}

func (m *MockBookService) View(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Book), args.Error(1)
}

func (m *MockBookService) Update(ctx context.Context, id uuid.UUID, in service.UpdateBookInput) (*model.Book, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Book), args.Error(1)
}

func (m *MockBookService) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockBookService) List(ctx context.Context, page, perPage int) ([]model.Book, model.Pagination, error) {
	args := m.Called(ctx, page, perPage)
	if args.Get(0) == nil {
		return nil, model.Pagination{}, args.Error(2)
	}
	return args.Get(0).([]model.Book), args.Get(1).(model.Pagination), args.Error(2)
}

func (m *MockBookService) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookService) ISBNExists(ctx context.Context, isbn string, excludeID *uuid.UUID) (bool, error) {
	args := m.Called(ctx, isbn, excludeID)
	return args.Bool(0), args.Error(1)
}

// MockBorrowService is a mock implementation of service.BorrowService.
type MockBorrowService struct {
	mock.Mock
}

func (m *MockBorrowService) Borrow(ctx context.Context, userID, bookID uuid.UUID, in service.BorrowInput) (*model.BorrowRecord, error) {
	args := m.Called(ctx, userID, bookID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BorrowRecord), args.Error(1)
}

func (m *MockBorrowService) Return(ctx context.Context, userID, bookID uuid.UUID, comments *string) (*model.BorrowRecord, error) {
	args := m.Called(ctx, userID, bookID, comments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BorrowRecord), args.Error(1)
}

func (m *MockBorrowService) Status(ctx context.Context, userID, bookID uuid.UUID) (*model.BorrowRecord, error) {
	args := m.Called(ctx, userID, bookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BorrowRecord), args.Error(1)
}

func (m *MockBorrowService) History(ctx context.Context, bookID uuid.UUID, page, limit int) ([]model.BorrowHistoryEntry, model.Pagination, error) {
	args := m.Called(ctx, bookID, page, limit)
	if args.Get(0) == nil {
		return nil, model.Pagination{}, args.Error(2)
	}
	return args.Get(0).([]model.BorrowHistoryEntry), args.Get(1).(model.Pagination), args.Error(2)
}

func (m *MockBorrowService) UserBorrowings(ctx context.Context, userID uuid.UUID) ([]model.UserBorrowing, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.UserBorrowing), args.Error(1)
}

// MockUserService is a mock implementation of service.UserService.
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) List(ctx context.Context, in service.ListUsersInput) ([]model.User, int64, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]model.User), args.Get(1).(int64), args.Error(2)
}

func (m *MockUserService) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserService) Update(ctx context.Context, id uuid.UUID, in service.UpdateUserInput) (*model.User, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserService) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserService) ActiveSessions(ctx context.Context, id uuid.UUID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockUserService) EnsureAdmin(ctx context.Context, email, password string) (*model.User, bool, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.User), args.Bool(1), args.Error(2)
}
