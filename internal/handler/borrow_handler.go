package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "librarian/internal/errors"
	"librarian/internal/model"
	"librarian/internal/service"
)

// dateLayouts are the accepted formats of a requested return date.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// BorrowHandler handles the borrow/return lifecycle endpoints.
type BorrowHandler struct {
	borrowService service.BorrowService
}

// NewBorrowHandler creates a new borrow handler.
func NewBorrowHandler(borrowService service.BorrowService) *BorrowHandler {
	return &BorrowHandler{borrowService: borrowService}
}

// BorrowRequest represents a borrow request.
type BorrowRequest struct {
	ReturnDate string `json:"returnDate" example:"2026-11-01"`
	Comments   string `json:"comments"`
}

// ReturnRequest represents a return request.
type ReturnRequest struct {
	Comments *string `json:"comments"`
}

// BorrowHistoryResponse is one page of a book's ledger.
type BorrowHistoryResponse struct {
	Data       []model.BorrowHistoryEntry `json:"data"`
	Pagination model.Pagination           `json:"pagination"`
}

func parseReturnDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperrors.NewValidationError("returnDate must be a date (YYYY-MM-DD or RFC 3339)")
}

// Borrow godoc
// @Summary Borrow a book
// @Description Opens an active borrow for the caller. The due date defaults to the loan period.
// @Tags borrowing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param request body BorrowRequest false "Optional due date and comments"
// @Success 201 {object} model.BorrowRecord
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /books/{id}/borrow [post]
func (h *BorrowHandler) Borrow(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	bookID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req BorrowRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	dueDate, err := parseReturnDate(req.ReturnDate)
	if err != nil {
		return apperrors.FromError(err)
	}

	record, err := h.borrowService.Borrow(c.Request().Context(), identity.UserID, bookID, service.BorrowInput{
		DueDate:  dueDate,
		Comments: req.Comments,
	})
	if err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusCreated, record)
}

// Return godoc
// @Summary Return a borrowed book
// @Tags borrowing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param request body ReturnRequest false "Optional comments"
// @Success 200 {object} model.BorrowRecord
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /books/{id}/return [post]
func (h *BorrowHandler) Return(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	bookID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req ReturnRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	record, err := h.borrowService.Return(c.Request().Context(), identity.UserID, bookID, req.Comments)
	if err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusOK, record)
}

// Status godoc
// @Summary Active borrow of a book by the caller
// @Tags borrowing
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} model.BorrowRecord
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /books/{id}/borrow-status [get]
func (h *BorrowHandler) Status(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	bookID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	record, err := h.borrowService.Status(c.Request().Context(), identity.UserID, bookID)
	if err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusOK, record)
}

// History godoc
// @Summary Borrow history of a book
// @Tags borrowing
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size (default 10, max 100)"
// @Success 200 {object} BorrowHistoryResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /books/{id}/borrow-history [get]
func (h *BorrowHandler) History(c echo.Context) error {
	bookID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	entries, pagination, err := h.borrowService.History(c.Request().Context(), bookID, queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		return apperrors.FromError(err)
	}
	if entries == nil {
		entries = []model.BorrowHistoryEntry{}
	}
	return c.JSON(http.StatusOK, BorrowHistoryResponse{Data: entries, Pagination: pagination})
}

// UserBorrowings godoc
// @Summary Borrowings of a user
// @Tags borrowing
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {array} model.UserBorrowing
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /users/{id}/borrowings [get]
func (h *BorrowHandler) UserBorrowings(c echo.Context) error {
	userID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	borrowings, err := h.borrowService.UserBorrowings(c.Request().Context(), userID)
	if err != nil {
		return apperrors.FromError(err)
	}
	if borrowings == nil {
		borrowings = []model.UserBorrowing{}
	}
	return c.JSON(http.StatusOK, borrowings)
}
