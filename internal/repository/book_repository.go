package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"librarian/internal/model"
)

// BookRepository defines catalog persistence operations.
type BookRepository interface {
	Create(ctx context.Context, book *model.Book) error
	CreateBatch(ctx context.Context, books []model.Book) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Book, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, book *model.Book) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, page model.PageRequest) ([]model.Book, int64, error)
	IncrementViewCount(ctx context.Context, id uuid.UUID) (int64, error)
	ExistsByISBN(ctx context.Context, isbn string, excludeID *uuid.UUID) (bool, error)
}

type bookRepository struct {
	db *gorm.DB
}

// NewBookRepository creates a new book repository.
func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

// Create creates a new book.
func (r *bookRepository) Create(ctx context.Context, book *model.Book) error {
	return r.db.WithContext(ctx).Create(book).Error
}

// CreateBatch inserts books in chunks of 100.
func (r *bookRepository) CreateBatch(ctx context.Context, books []model.Book) error {
	if len(books) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(books, 100).Error
}

// FindByID finds a book by ID.
func (r *bookRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	var book model.Book
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// Exists reports whether a book with id exists.
func (r *bookRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Book{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update saves every field of book.
func (r *bookRepository) Update(ctx context.Context, book *model.Book) error {
	return r.db.WithContext(ctx).Save(book).Error
}

// Delete removes a book. gorm.ErrRecordNotFound is returned when no row matched.
func (r *bookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Book{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns one page of the catalog, highlighted books first.
func (r *bookRepository) List(ctx context.Context, page model.PageRequest) ([]model.Book, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Book{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var books []model.Book
	if err := r.db.WithContext(ctx).
		Order("is_highlighted DESC").
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&books).Error; err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// IncrementViewCount bumps view_count in a single statement and returns the
// new value.
func (r *bookRepository) IncrementViewCount(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Book{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&model.Book{}).
		Select("view_count").
		Where("id = ?", id).
		Row().
		Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, gorm.ErrRecordNotFound
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ExistsByISBN reports whether a book other than excludeID uses isbn.
func (r *bookRepository) ExistsByISBN(ctx context.Context, isbn string, excludeID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&model.Book{}).Where("isbn = ?", isbn)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
