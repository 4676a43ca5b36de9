package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"librarian/internal/cache"
	apperrors "librarian/internal/errors"
	"librarian/internal/model"
	"librarian/internal/repository"
)

const (
	bookCacheTTL       = 5 * time.Minute
	defaultBookPerPage = 10
	maxBookPerPage     = 100
)

// CreateBookInput carries the fields of a new catalog record.
type CreateBookInput struct {
	Title         string
	Author        string
	ISBN          string
	Publisher     string
	Year          string
	Category      string
	Location      string
	Description   string
	CoverImage    string
	IsHighlighted bool
}

// UpdateBookInput carries a partial update. Nil fields are left unchanged.
type UpdateBookInput struct {
	Title         *string
	Author        *string
	ISBN          *string
	Publisher     *string
	Year          *string
	Category      *string
	Location      *string
	Description   *string
	CoverImage    *string
	IsHighlighted *bool
}

// BookService handles catalog operations.
type BookService interface {
	Create(ctx context.Context, in CreateBookInput) (*model.Book, error)
	Import(ctx context.Context, in []CreateBookInput) (int, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Book, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	View(ctx context.Context, id uuid.UUID) (*model.Book, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateBookInput) (*model.Book, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, page, perPage int) ([]model.Book, model.Pagination, error)
	ISBNExists(ctx context.Context, isbn string, excludeID *uuid.UUID) (bool, error)
}

type bookService struct {
	repo  repository.BookRepository
	cache *cache.Client
	log   zerolog.Logger
}

// NewBookService creates a new book service.
func NewBookService(repo repository.BookRepository, cache *cache.Client, log zerolog.Logger) BookService {
	return &bookService{
		repo:  repo,
		cache: cache,
		log:   log.With().Str("service", "book").Logger(),
	}
}

func (s *bookService) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("book:%s", id.String())
}

func (s *bookService) newBook(in CreateBookInput) (*model.Book, error) {
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	if title == "" || author == "" {
		return nil, apperrors.NewValidationError("title and author are required")
	}

	cover := in.CoverImage
	if cover == "" {
		cover = model.DefaultCoverImage
	}
	return &model.Book{
		Title:         title,
		Author:        author,
		ISBN:          model.ISBNOrNil(strings.TrimSpace(in.ISBN)),
		Publisher:     in.Publisher,
		Year:          in.Year,
		Category:      in.Category,
		Location:      in.Location,
		Description:   in.Description,
		CoverImage:    cover,
		IsHighlighted: in.IsHighlighted,
	}, nil
}

// Create adds a book to the catalog.
func (s *bookService) Create(ctx context.Context, in CreateBookInput) (*model.Book, error) {
	book, err := s.newBook(in)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, book); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrDuplicateISBN
		}
		return nil, fmt.Errorf("create book: %w", err)
	}

	s.log.Info().Str("book_id", book.ID.String()).Msg("book created")
	return book, nil
}

// Import creates books in bulk and returns how many were stored.
func (s *bookService) Import(ctx context.Context, in []CreateBookInput) (int, error) {
	books := make([]model.Book, 0, len(in))
	for i, item := range in {
		book, err := s.newBook(item)
		if err != nil {
			return 0, fmt.Errorf("book %d: %w", i, err)
		}
		books = append(books, *book)
	}

	if err := s.repo.CreateBatch(ctx, books); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, apperrors.ErrDuplicateISBN
		}
		return 0, fmt.Errorf("import books: %w", err)
	}
	return len(books), nil
}

// Get retrieves a book by ID with caching.
func (s *bookService) Get(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	if cached := s.load(ctx, id); cached != nil {
		return cached, nil
	}

	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBookNotFound
		}
		return nil, fmt.Errorf("find book: %w", err)
	}

	s.store(ctx, book)
	return book, nil
}

// Exists reports whether the book is in the catalog. It always reads the
// database so a stale cache entry cannot resurrect a deleted book.
func (s *bookService) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check book: %w", err)
	}
	return exists, nil
}

// View counts a read of the book. The counter comes from the database, the
// remaining fields may come from the cache.
func (s *bookService) View(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	count, err := s.repo.IncrementViewCount(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBookNotFound
		}
		return nil, fmt.Errorf("count view: %w", err)
	}

	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	book.ViewCount = count
	return book, nil
}

// Update applies the provided fields.
func (s *bookService) Update(ctx context.Context, id uuid.UUID, in UpdateBookInput) (*model.Book, error) {
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBookNotFound
		}
		return nil, fmt.Errorf("find book: %w", err)
	}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, apperrors.NewValidationError("title must not be empty")
		}
		book.Title = strings.TrimSpace(*in.Title)
	}
	if in.Author != nil {
		if strings.TrimSpace(*in.Author) == "" {
			return nil, apperrors.NewValidationError("author must not be empty")
		}
		book.Author = strings.TrimSpace(*in.Author)
	}
	if in.ISBN != nil {
		book.ISBN = model.ISBNOrNil(strings.TrimSpace(*in.ISBN))
	}
	if in.Publisher != nil {
		book.Publisher = *in.Publisher
	}
	if in.Year != nil {
		book.Year = *in.Year
	}
	if in.Category != nil {
		book.Category = *in.Category
	}
	if in.Location != nil {
		book.Location = *in.Location
	}
	if in.Description != nil {
		book.Description = *in.Description
	}
	if in.CoverImage != nil {
		book.CoverImage = *in.CoverImage
	}
	if in.IsHighlighted != nil {
		book.IsHighlighted = *in.IsHighlighted
	}

	if err := s.repo.Update(ctx, book); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrDuplicateISBN
		}
		return nil, fmt.Errorf("update book: %w", err)
	}

	s.evict(ctx, id)
	return book, nil
}

// Delete removes a book from the catalog.
func (s *bookService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrBookNotFound
		}
		return fmt.Errorf("delete book: %w", err)
	}

	s.evict(ctx, id)
	s.log.Info().Str("book_id", id.String()).Msg("book deleted")
	return nil
}

// List returns one page of the catalog.
func (s *bookService) List(ctx context.Context, page, perPage int) ([]model.Book, model.Pagination, error) {
	req := model.NormalizePage(page, perPage, defaultBookPerPage, maxBookPerPage)
	books, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("list books: %w", err)
	}
	return books, model.NewPagination(total, req.Page, req.Limit), nil
}

// ISBNExists reports whether a book other than excludeID uses isbn.
func (s *bookService) ISBNExists(ctx context.Context, isbn string, excludeID *uuid.UUID) (bool, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return false, apperrors.NewValidationError("isbn is required")
	}
	exists, err := s.repo.ExistsByISBN(ctx, isbn, excludeID)
	if err != nil {
		return false, fmt.Errorf("check isbn: %w", err)
	}
	return exists, nil
}

func (s *bookService) load(ctx context.Context, id uuid.UUID) *model.Book {
	data, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		s.log.Warn().Err(err).Str("book_id", id.String()).Msg("book cache read failed")
		return nil
	}
	if data == nil {
		return nil
	}
	var cached model.Book
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil
	}
	return &cached
}

func (s *bookService) store(ctx context.Context, book *model.Book) {
	payload, err := json.Marshal(book)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(book.ID), payload, bookCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("book_id", book.ID.String()).Msg("book cache write failed")
	}
}

func (s *bookService) evict(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.log.Warn().Err(err).Str("book_id", id.String()).Msg("book cache invalidation failed")
	}
}
