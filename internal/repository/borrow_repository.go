package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"librarian/internal/model"
)

// UnknownUserName is shown for ledger entries whose borrower no longer exists.
const UnknownUserName = "Unknown User"

// BorrowRepository defines borrow ledger persistence operations.
type BorrowRepository interface {
	// Create inserts an active record. A second active record for the same
	// pair fails with gorm.ErrDuplicatedKey.
	Create(ctx context.Context, record *model.BorrowRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.BorrowRecord, error)
	FindActive(ctx context.Context, userID, bookID uuid.UUID) (*model.BorrowRecord, error)
	// MarkReturned moves an active record to returned. It reports false when
	// the record was no longer active.
	MarkReturned(ctx context.Context, id uuid.UUID, returnedAt time.Time, comments *string) (bool, error)
	HistoryByBook(ctx context.Context, bookID uuid.UUID, page model.PageRequest) ([]model.BorrowHistoryEntry, int64, error)
	ByUser(ctx context.Context, userID uuid.UUID) ([]model.UserBorrowing, error)
}

type borrowRepository struct {
	db *gorm.DB
}

// NewBorrowRepository creates a new borrow repository.
func NewBorrowRepository(db *gorm.DB) BorrowRepository {
	return &borrowRepository{db: db}
}

func (r *borrowRepository) Create(ctx context.Context, record *model.BorrowRecord) error {
	key := model.ActiveBorrowKey(record.UserID, record.BookID)
	record.ActiveKey = &key
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *borrowRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.BorrowRecord, error) {
	var record model.BorrowRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *borrowRepository) FindActive(ctx context.Context, userID, bookID uuid.UUID) (*model.BorrowRecord, error) {
	var record model.BorrowRecord
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND book_id = ? AND status = ?", userID, bookID, model.BorrowStatusActive).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *borrowRepository) MarkReturned(ctx context.Context, id uuid.UUID, returnedAt time.Time, comments *string) (bool, error) {
	updates := map[string]interface{}{
		"status":      model.BorrowStatusReturned,
		"return_date": returnedAt,
		"active_key":  nil,
	}
	if comments != nil {
		updates["comments"] = *comments
	}

	result := r.db.WithContext(ctx).Model(&model.BorrowRecord{}).
		Where("id = ? AND status = ?", id, model.BorrowStatusActive).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

type historyRow struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	BorrowDate time.Time
	DueDate    time.Time
	ReturnDate *time.Time
	Status     model.BorrowStatus
	Comments   string
	FirstName  *string
	LastName   *string
	Email      *string
}

// HistoryByBook lists the ledger of one book, newest first, joined with the
// borrower. Rows whose user is gone are kept with UnknownUserName.
func (r *borrowRepository) HistoryByBook(ctx context.Context, bookID uuid.UUID, page model.PageRequest) ([]model.BorrowHistoryEntry, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.BorrowRecord{}).
		Where("book_id = ?", bookID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []historyRow
	if err := r.db.WithContext(ctx).
		Table("borrow_records AS b").
		Select("b.id, b.user_id, b.borrow_date, b.due_date, b.return_date, b.status, b.comments, " +
			"u.first_name, u.last_name, u.email").
		Joins("LEFT JOIN users u ON u.id = b.user_id").
		Where("b.book_id = ?", bookID).
		Order("b.borrow_date DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Scan(&rows).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]model.BorrowHistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry := model.BorrowHistoryEntry{
			ID:         row.ID,
			UserID:     row.UserID,
			BorrowDate: row.BorrowDate,
			DueDate:    row.DueDate,
			ReturnDate: row.ReturnDate,
			Status:     row.Status,
			Comments:   row.Comments,
			UserName:   UnknownUserName,
		}
		if row.Email != nil {
			user := model.User{FirstName: deref(row.FirstName), LastName: deref(row.LastName)}
			entry.UserEmail = *row.Email
			if name := user.DisplayName(); name != "" {
				entry.UserName = name
			} else {
				entry.UserName = *row.Email
			}
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

type userBorrowingRow struct {
	ID         uuid.UUID
	BookID     uuid.UUID
	BorrowDate time.Time
	DueDate    time.Time
	ReturnDate *time.Time
	Status     model.BorrowStatus
	Title      *string
}

// ByUser lists every ledger entry of one user, newest first, with the book title.
func (r *borrowRepository) ByUser(ctx context.Context, userID uuid.UUID) ([]model.UserBorrowing, error) {
	var rows []userBorrowingRow
	if err := r.db.WithContext(ctx).
		Table("borrow_records AS b").
		Select("b.id, b.book_id, b.borrow_date, b.due_date, b.return_date, b.status, bk.title").
		Joins("LEFT JOIN books bk ON bk.id = b.book_id").
		Where("b.user_id = ?", userID).
		Order("b.borrow_date DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	borrowings := make([]model.UserBorrowing, 0, len(rows))
	for _, row := range rows {
		borrowings = append(borrowings, model.UserBorrowing{
			ID:         row.ID,
			BookID:     row.BookID,
			BorrowDate: row.BorrowDate,
			DueDate:    row.DueDate,
			ReturnDate: row.ReturnDate,
			Status:     row.Status,
			BookTitle:  deref(row.Title),
		})
	}
	return borrowings, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
