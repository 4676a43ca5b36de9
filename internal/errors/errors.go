package errors

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrBookNotFound is returned when a book is not found.
	ErrBookNotFound = errors.New("book not found")
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyBorrowed is returned when the user already holds an active borrow of the book.
	ErrAlreadyBorrowed = errors.New("you already have an active borrow for this book")
	// ErrNoActiveBorrow is returned when returning a book that is not borrowed.
	ErrNoActiveBorrow = errors.New("no active borrow found for this book")
	// ErrBorrowNotFound is returned by status lookups with no active record.
	ErrBorrowNotFound = errors.New("no active borrow record")
	// ErrBorrowInProgress is returned when a concurrent borrow of the same pair holds the lock too long.
	ErrBorrowInProgress = errors.New("another borrow of this book is in progress")
	// ErrInvalidDueDate is returned when the requested due date precedes the borrow date.
	ErrInvalidDueDate = errors.New("return date must not be before the borrow date")
	// ErrDuplicateISBN is returned when another book already uses the ISBN.
	ErrDuplicateISBN = errors.New("a book with this ISBN already exists")
	// ErrEmailTaken is returned when registering an email that exists.
	ErrEmailTaken = errors.New("email is already registered")
	// ErrInvalidCredentials is returned when email or password is incorrect.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNoCredential is returned when a request carries no bearer token.
	ErrNoCredential = errors.New("no credential provided")
	// ErrInvalidCredential is returned when a bearer token is unknown, revoked or expired.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrForbidden is returned when the identity lacks the required role.
	ErrForbidden = errors.New("forbidden: insufficient privileges")
	// ErrInvalidID is returned when a path id is not a valid identifier.
	ErrInvalidID = errors.New("invalid id")
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

// ErrorBody is the payload of an error response.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Message: e.Message,
			Code:    e.Code,
		},
	}
}

// NewErrorResponse builds a response body directly.
func NewErrorResponse(message, code string) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Message: message, Code: code}}
}

var mappings = []struct {
	err    error
	status int
	code   string
}{
	{ErrBookNotFound, http.StatusNotFound, "BOOK_NOT_FOUND"},
	{ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{ErrBorrowNotFound, http.StatusNotFound, "BORROW_NOT_FOUND"},
	{ErrAlreadyBorrowed, http.StatusBadRequest, "ALREADY_BORROWED"},
	{ErrNoActiveBorrow, http.StatusBadRequest, "NO_ACTIVE_BORROW"},
	{ErrBorrowInProgress, http.StatusConflict, "BORROW_IN_PROGRESS"},
	{ErrInvalidDueDate, http.StatusBadRequest, "INVALID_DUE_DATE"},
	{ErrDuplicateISBN, http.StatusBadRequest, "DUPLICATE_ISBN"},
	{ErrEmailTaken, http.StatusBadRequest, "EMAIL_TAKEN"},
	{ErrInvalidID, http.StatusBadRequest, "INVALID_ID"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{ErrNoCredential, http.StatusUnauthorized, "NO_CREDENTIAL"},
	{ErrInvalidCredential, http.StatusUnauthorized, "INVALID_CREDENTIAL"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
}

// MapErrorToHTTP maps domain errors to HTTP errors. Unknown errors become a
// generic 500 that leaks nothing about the cause.
func MapErrorToHTTP(err error) *HTTPError {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return NewHTTPError(m.status, m.err.Error(), m.code)
		}
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return NewHTTPError(http.StatusBadRequest, validationErr.Message, "VALIDATION_ERROR")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable, retry later", "SERVICE_TIMEOUT")
	}

	return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
}
