package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "librarian/internal/errors"
	"librarian/internal/model"
	"librarian/internal/service"
)

func TestParseReturnDate(t *testing.T) {
	tests := []struct {
		raw     string
		want    *time.Time
		wantErr bool
	}{
		{raw: ""},
		{raw: "2026-11-01", want: ptrTime(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))},
		{raw: "2026-11-01T10:30:00Z", want: ptrTime(time.Date(2026, 11, 1, 10, 30, 0, 0, time.UTC))},
		{raw: "next tuesday", wantErr: true},
		{raw: "01/11/2026", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseReturnDate(tt.raw)
			if tt.wantErr {
				var validationErr *apperrors.ValidationError
				assert.ErrorAs(t, err, &validationErr)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.True(t, tt.want.Equal(*got))
		})
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestBorrowHandler_Borrow(t *testing.T) {
	userID := uuid.New()
	bookID := uuid.New()

	tests := []struct {
		name         string
		payload      string
		anonymous    bool
		setupMock    func(*MockBorrowService)
		expectedCode int
		errorCode    string
	}{
		{
			name:    "default due date",
			payload: "",
			setupMock: func(m *MockBorrowService) {
				m.On("Borrow", mock.Anything, userID, bookID, service.BorrowInput{}).
					Return(&model.BorrowRecord{ID: uuid.New(), UserID: userID, BookID: bookID, Status: model.BorrowStatusActive}, nil)
			},
			expectedCode: http.StatusCreated,
		},
		{
			name:    "requested due date and comments",
			payload: `{"returnDate":"2026-11-01","comments":"for the book club"}`,
			setupMock: func(m *MockBorrowService) {
				m.On("Borrow", mock.Anything, userID, bookID, mock.MatchedBy(func(in service.BorrowInput) bool {
					return in.DueDate != nil && in.DueDate.Equal(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)) &&
						in.Comments == "for the book club"
				})).Return(&model.BorrowRecord{ID: uuid.New()}, nil)
			},
			expectedCode: http.StatusCreated,
		},
		{
			name:         "unparsable due date",
			payload:      `{"returnDate":"soon"}`,
			setupMock:    func(m *MockBorrowService) {},
			expectedCode: http.StatusBadRequest,
			errorCode:    "VALIDATION_ERROR",
		},
		{
			name:    "already borrowed",
			payload: "",
			setupMock: func(m *MockBorrowService) {
				m.On("Borrow", mock.Anything, userID, bookID, mock.Anything).Return(nil, apperrors.ErrAlreadyBorrowed)
			},
			expectedCode: http.StatusBadRequest,
			errorCode:    "ALREADY_BORROWED",
		},
		{
			name:    "book missing",
			payload: "",
			setupMock: func(m *MockBorrowService) {
				m.On("Borrow", mock.Anything, userID, bookID, mock.Anything).Return(nil, apperrors.ErrBookNotFound)
			},
			expectedCode: http.StatusNotFound,
			errorCode:    "BOOK_NOT_FOUND",
		},
		{
			name:    "lock contention",
			payload: "",
			setupMock: func(m *MockBorrowService) {
				m.On("Borrow", mock.Anything, userID, bookID, mock.Anything).Return(nil, apperrors.ErrBorrowInProgress)
			},
			expectedCode: http.StatusConflict,
			errorCode:    "BORROW_IN_PROGRESS",
		},
		{
			name:         "anonymous",
			anonymous:    true,
			setupMock:    func(m *MockBorrowService) {},
			expectedCode: http.StatusUnauthorized,
			errorCode:    "NO_CREDENTIAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockBorrowService)
			tt.setupMock(svc)

			c, rec := newTestContext(t, http.MethodPost, "/api/books/"+bookID.String()+"/borrow", tt.payload)
			withID(c, bookID.String())
			if !tt.anonymous {
				asUser(c, userID, model.RoleUser)
			}
			serve(c, NewBorrowHandler(svc).Borrow)

			assert.Equal(t, tt.expectedCode, rec.Code)
			if tt.errorCode != "" {
				assert.Equal(t, tt.errorCode, decodeError(t, rec.Body.Bytes()).Code)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestBorrowHandler_Return(t *testing.T) {
	userID := uuid.New()
	bookID := uuid.New()

	t.Run("returned with comments", func(t *testing.T) {
		svc := new(MockBorrowService)
		svc.On("Return", mock.Anything, userID, bookID, mock.MatchedBy(func(c *string) bool {
			return c != nil && *c == "spine cracked"
		})).Return(&model.BorrowRecord{Status: model.BorrowStatusReturned}, nil)

		c, rec := newTestContext(t, http.MethodPost, "/api/books/"+bookID.String()+"/return", `{"comments":"spine cracked"}`)
		withID(c, bookID.String())
		asUser(c, userID, model.RoleUser)
		serve(c, NewBorrowHandler(svc).Return)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"returned"`)
	})

	t.Run("nothing to return", func(t *testing.T) {
		svc := new(MockBorrowService)
		svc.On("Return", mock.Anything, userID, bookID, (*string)(nil)).Return(nil, apperrors.ErrNoActiveBorrow)

		c, rec := newTestContext(t, http.MethodPost, "/api/books/"+bookID.String()+"/return", "")
		withID(c, bookID.String())
		asUser(c, userID, model.RoleUser)
		serve(c, NewBorrowHandler(svc).Return)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "NO_ACTIVE_BORROW", decodeError(t, rec.Body.Bytes()).Code)
	})
}

func TestBorrowHandler_Status(t *testing.T) {
	userID := uuid.New()
	bookID := uuid.New()
	svc := new(MockBorrowService)
	svc.On("Status", mock.Anything, userID, bookID).Return(nil, apperrors.ErrBorrowNotFound)

	c, rec := newTestContext(t, http.MethodGet, "/api/books/"+bookID.String()+"/borrow-status", "")
	withID(c, bookID.String())
	asUser(c, userID, model.RoleUser)
	serve(c, NewBorrowHandler(svc).Status)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBorrowHandler_History(t *testing.T) {
	bookID := uuid.New()
	svc := new(MockBorrowService)
	svc.On("History", mock.Anything, bookID, 1, 20).Return([]model.BorrowHistoryEntry{
		{UserName: "Ada Lovelace", Status: model.BorrowStatusActive},
		{UserName: "Unknown User", Status: model.BorrowStatusReturned},
	}, model.NewPagination(2, 1, 20), nil)

	c, rec := newTestContext(t, http.MethodGet, "/api/books/"+bookID.String()+"/borrow-history?page=1&limit=20", "")
	withID(c, bookID.String())
	asUser(c, uuid.New(), model.RoleAdmin)
	serve(c, NewBorrowHandler(svc).History)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp BorrowHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, "Unknown User", resp.Data[1].UserName)
	assert.Equal(t, 1, resp.Pagination.TotalPages)
}

func TestBorrowHandler_UserBorrowings(t *testing.T) {
	userID := uuid.New()
	svc := new(MockBorrowService)
	svc.On("UserBorrowings", mock.Anything, userID).Return([]model.UserBorrowing(nil), nil)

	c, rec := newTestContext(t, http.MethodGet, "/api/users/"+userID.String()+"/borrowings", "")
	withID(c, userID.String())
	serve(c, NewBorrowHandler(svc).UserBorrowings)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	c, rec = newTestContext(t, http.MethodGet, "/api/users/42/borrowings", "")
	withID(c, "42")
	serve(c, NewBorrowHandler(svc).UserBorrowings)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ID", decodeError(t, rec.Body.Bytes()).Code)
}
