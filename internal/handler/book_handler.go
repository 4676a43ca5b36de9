package handler

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "librarian/internal/errors"
	"librarian/internal/model"
	"librarian/internal/service"
)

// BookHandler handles catalog endpoints.
type BookHandler struct {
	bookService service.BookService
}

// NewBookHandler creates a new book handler.
func NewBookHandler(bookService service.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

// CreateBookRequest represents a new catalog record.
type CreateBookRequest struct {
	Title         string `json:"title" validate:"required"`
	Author        string `json:"author" validate:"required"`
	ISBN          string `json:"isbn"`
	Publisher     string `json:"publisher"`
	Year          string `json:"year"`
	Category      string `json:"category"`
	Location      string `json:"location"`
	Description   string `json:"description"`
	CoverImage    string `json:"coverImage"`
	IsHighlighted bool   `json:"isHighlighted"`
}

func (r CreateBookRequest) input() service.CreateBookInput {
	return service.CreateBookInput{
		Title:         r.Title,
		Author:        r.Author,
		ISBN:          r.ISBN,
		Publisher:     r.Publisher,
		Year:          r.Year,
		Category:      r.Category,
		Location:      r.Location,
		Description:   r.Description,
		CoverImage:    r.CoverImage,
		IsHighlighted: r.IsHighlighted,
	}
}

// UpdateBookRequest represents a partial update. Omitted fields are unchanged.
// An id in the body, if any, must match the path.
type UpdateBookRequest struct {
	ID            string  `json:"id"`
	LegacyID      string  `json:"_id"`
	Title         *string `json:"title"`
	Author        *string `json:"author"`
	ISBN          *string `json:"isbn"`
	Publisher     *string `json:"publisher"`
	Year          *string `json:"year"`
	Category      *string `json:"category"`
	Location      *string `json:"location"`
	Description   *string `json:"description"`
	CoverImage    *string `json:"coverImage"`
	IsHighlighted *bool   `json:"isHighlighted"`
}

// BookListResponse is one page of the catalog.
type BookListResponse struct {
	Data       []model.Book     `json:"data"`
	Pagination model.Pagination `json:"pagination"`
}

// ISBNCheckResponse reports whether an ISBN is taken.
type ISBNCheckResponse struct {
	Exists bool `json:"exists"`
}

// ImportBooksResponse reports the outcome of a bulk import.
type ImportBooksResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// ListBooks godoc
// @Summary List books
// @Description Highlighted books first, then newest.
// @Tags books
// @Produce json
// @Param page query int false "Page (default 1)"
// @Param perPage query int false "Page size (default 10, max 100)"
// @Success 200 {object} BookListResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /books [get]
func (h *BookHandler) ListBooks(c echo.Context) error {
	books, pagination, err := h.bookService.List(c.Request().Context(), queryInt(c, "page"), queryInt(c, "perPage"))
	if err != nil {
		return apperrors.FromError(err)
	}
	if books == nil {
		books = []model.Book{}
	}
	return c.JSON(http.StatusOK, BookListResponse{Data: books, Pagination: pagination})
}

// GetBook godoc
// @Summary Get book by id
// @Description Counts a view of the book.
// @Tags books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} model.Book
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /books/{id} [get]
func (h *BookHandler) GetBook(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	book, err := h.bookService.View(c.Request().Context(), id)
	if err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusOK, book)
}

// CreateBook godoc
// @Summary Create book
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateBookRequest true "Book payload"
// @Success 201 {object} model.Book
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /books [post]
func (h *BookHandler) CreateBook(c echo.Context) error {
	var req CreateBookRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	book, err := h.bookService.Create(c.Request().Context(), req.input())
	if err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

// UpdateBook godoc
// @Summary Update book
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param request body UpdateBookRequest true "Fields to change"
// @Success 200 {object} model.Book
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /books/{id} [put]
func (h *BookHandler) UpdateBook(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req UpdateBookRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	for _, bodyID := range []string{req.ID, req.LegacyID} {
		if bodyID != "" && bodyID != id.String() {
			return apperrors.FromError(apperrors.NewValidationError("book id in body does not match the path"))
		}
	}

	book, err := h.bookService.Update(c.Request().Context(), id, service.UpdateBookInput{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		Publisher:     req.Publisher,
		Year:          req.Year,
		Category:      req.Category,
		Location:      req.Location,
		Description:   req.Description,
		CoverImage:    req.CoverImage,
		IsHighlighted: req.IsHighlighted,
	})
	if err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusOK, book)
}

// DeleteBook godoc
// @Summary Delete book
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /books/{id} [delete]
func (h *BookHandler) DeleteBook(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := h.bookService.Delete(c.Request().Context(), id); err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Book deleted successfully"})
}

// CheckISBN godoc
// @Summary Check whether an ISBN is in use
// @Tags books
// @Produce json
// @Param isbn query string true "ISBN"
// @Param excludeId query string false "Book to ignore, e.g. the one being edited"
// @Success 200 {object} ISBNCheckResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /books/check-isbn [get]
func (h *BookHandler) CheckISBN(c echo.Context) error {
	var excludeID *uuid.UUID
	if raw := c.QueryParam("excludeId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperrors.FromError(apperrors.ErrInvalidID)
		}
		excludeID = &id
	}

	exists, err := h.bookService.ISBNExists(c.Request().Context(), c.QueryParam("isbn"), excludeID)
	if err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusOK, ISBNCheckResponse{Exists: exists})
}

// ImportBooks godoc
// @Summary Import books in bulk
// @Description Either every entry is stored or none is.
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body []CreateBookRequest true "Books"
// @Success 201 {object} ImportBooksResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /books/import [post]
func (h *BookHandler) ImportBooks(c echo.Context) error {
	var req []CreateBookRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return apperrors.FromError(apperrors.NewValidationError("invalid request body"))
	}
	if len(req) == 0 {
		return apperrors.FromError(apperrors.NewValidationError("no books provided"))
	}

	inputs := make([]service.CreateBookInput, 0, len(req))
	for i := range req {
		if err := c.Validate(&req[i]); err != nil {
			return apperrors.FromError(apperrors.NewValidationError(fmt.Sprintf("book %d: %v", i, err)))
		}
		inputs = append(inputs, req[i].input())
	}

	count, err := h.bookService.Import(c.Request().Context(), inputs)
	if err != nil {
		return apperrors.FromError(err)
	}
	return c.JSON(http.StatusCreated, ImportBooksResponse{
		Message: "Books imported successfully",
		Count:   count,
	})
}
