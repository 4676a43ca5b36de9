package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	apperrors "librarian/internal/errors"
	"librarian/internal/lock"
	"librarian/internal/metrics"
	"librarian/internal/model"
	"librarian/internal/repository"
)

const (
	// DefaultLoanPeriod applies when the borrower does not ask for a due date.
	DefaultLoanPeriod = 14 * 24 * time.Hour

	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// Catalog is the read-only view of books the borrow workflow needs.
// Exists must consult the system of record, not a cache.
type Catalog interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// BorrowConfig tunes the borrow workflow.
type BorrowConfig struct {
	LoanPeriod time.Duration
	LockTTL    time.Duration
	LockWait   time.Duration
}

// BorrowInput carries the optional fields of a borrow request.
type BorrowInput struct {
	DueDate  *time.Time
	Comments string
}

// BorrowService implements the borrow/return lifecycle.
type BorrowService interface {
	Borrow(ctx context.Context, userID, bookID uuid.UUID, in BorrowInput) (*model.BorrowRecord, error)
	Return(ctx context.Context, userID, bookID uuid.UUID, comments *string) (*model.BorrowRecord, error)
	Status(ctx context.Context, userID, bookID uuid.UUID) (*model.BorrowRecord, error)
	History(ctx context.Context, bookID uuid.UUID, page, limit int) ([]model.BorrowHistoryEntry, model.Pagination, error)
	UserBorrowings(ctx context.Context, userID uuid.UUID) ([]model.UserBorrowing, error)
}

type borrowService struct {
	catalog Catalog
	repo    repository.BorrowRepository
	locker  lock.Locker
	cfg     BorrowConfig
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewBorrowService creates a new borrow service.
func NewBorrowService(
	catalog Catalog,
	repo repository.BorrowRepository,
	locker lock.Locker,
	cfg BorrowConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) BorrowService {
	if cfg.LoanPeriod <= 0 {
		cfg.LoanPeriod = DefaultLoanPeriod
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 3 * time.Second
	}
	return &borrowService{
		catalog: catalog,
		repo:    repo,
		locker:  locker,
		cfg:     cfg,
		metrics: m,
		log:     log.With().Str("service", "borrow").Logger(),
		now:     time.Now,
	}
}

// Borrow opens an active borrow of bookID for userID.
//
// The check for an existing active record and the insert run under a lock
// scoped to the (user, book) pair. The unique active_key index backs this up
// if the lock is lost, so a duplicate insert is reported the same way.
func (s *borrowService) Borrow(ctx context.Context, userID, bookID uuid.UUID, in BorrowInput) (*model.BorrowRecord, error) {
	exists, err := s.catalog.Exists(ctx, bookID)
	if err != nil {
		s.metrics.Borrow(metrics.OutcomeError)
		return nil, err
	}
	if !exists {
		s.metrics.Borrow(outcomeFor(apperrors.ErrBookNotFound))
		return nil, apperrors.ErrBookNotFound
	}

	key := lock.Keys.Borrow(userID, bookID)
	token, err := lock.AcquireWithWait(ctx, s.locker, key, s.cfg.LockTTL, s.cfg.LockWait)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.metrics.Borrow(metrics.OutcomeConflict)
			return nil, apperrors.ErrBorrowInProgress
		}
		s.metrics.Borrow(metrics.OutcomeError)
		return nil, fmt.Errorf("acquire borrow lock: %w", err)
	}
	defer func() {
		if _, err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("release borrow lock")
		}
	}()

	record, err := s.borrowLocked(ctx, userID, bookID, in)
	s.metrics.Borrow(outcomeFor(err))
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("borrow_id", record.ID.String()).
		Str("user_id", userID.String()).
		Str("book_id", bookID.String()).
		Time("due_date", record.DueDate).
		Msg("book borrowed")
	return record, nil
}

func (s *borrowService) borrowLocked(ctx context.Context, userID, bookID uuid.UUID, in BorrowInput) (*model.BorrowRecord, error) {
	_, err := s.repo.FindActive(ctx, userID, bookID)
	if err == nil {
		return nil, apperrors.ErrAlreadyBorrowed
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find active borrow: %w", err)
	}

	now := s.now().UTC()
	dueDate := now.Add(s.cfg.LoanPeriod)
	if in.DueDate != nil {
		// Date-only values are midnight of the day, so compare against the
		// start of the borrow day.
		if in.DueDate.UTC().Before(now.Truncate(24 * time.Hour)) {
			return nil, apperrors.ErrInvalidDueDate
		}
		dueDate = in.DueDate.UTC()
	}

	record := &model.BorrowRecord{
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: now,
		DueDate:    dueDate,
		Status:     model.BorrowStatusActive,
		Comments:   in.Comments,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrAlreadyBorrowed
		}
		return nil, fmt.Errorf("create borrow: %w", err)
	}
	return record, nil
}

// Return closes the active borrow of bookID by userID. Empty comments keep
// the ones given at borrow time.
func (s *borrowService) Return(ctx context.Context, userID, bookID uuid.UUID, comments *string) (*model.BorrowRecord, error) {
	record, err := s.returnActive(ctx, userID, bookID, comments)
	s.metrics.Return(outcomeFor(err))
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("borrow_id", record.ID.String()).
		Str("user_id", userID.String()).
		Str("book_id", bookID.String()).
		Msg("book returned")
	return record, nil
}

func (s *borrowService) returnActive(ctx context.Context, userID, bookID uuid.UUID, comments *string) (*model.BorrowRecord, error) {
	active, err := s.repo.FindActive(ctx, userID, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNoActiveBorrow
		}
		return nil, fmt.Errorf("find active borrow: %w", err)
	}

	if comments != nil && *comments == "" {
		comments = nil
	}
	// A concurrent return may have won since FindActive.
	ok, err := s.repo.MarkReturned(ctx, active.ID, s.now().UTC(), comments)
	if err != nil {
		return nil, fmt.Errorf("mark returned: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrNoActiveBorrow
	}

	record, err := s.repo.FindByID(ctx, active.ID)
	if err != nil {
		return nil, fmt.Errorf("reload borrow: %w", err)
	}
	return record, nil
}

// Status returns the active borrow of bookID by userID.
func (s *borrowService) Status(ctx context.Context, userID, bookID uuid.UUID) (*model.BorrowRecord, error) {
	record, err := s.repo.FindActive(ctx, userID, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBorrowNotFound
		}
		return nil, fmt.Errorf("find active borrow: %w", err)
	}
	return record, nil
}

// History returns one page of the ledger of bookID, newest first.
func (s *borrowService) History(ctx context.Context, bookID uuid.UUID, page, limit int) ([]model.BorrowHistoryEntry, model.Pagination, error) {
	req := model.NormalizePage(page, limit, defaultHistoryLimit, maxHistoryLimit)
	entries, total, err := s.repo.HistoryByBook(ctx, bookID, req)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("borrow history: %w", err)
	}
	return entries, model.NewPagination(total, req.Page, req.Limit), nil
}

// UserBorrowings returns every ledger entry of userID, newest first.
func (s *borrowService) UserBorrowings(ctx context.Context, userID uuid.UUID) ([]model.UserBorrowing, error) {
	borrowings, err := s.repo.ByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user borrowings: %w", err)
	}
	return borrowings, nil
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, apperrors.ErrAlreadyBorrowed), errors.Is(err, apperrors.ErrNoActiveBorrow):
		return metrics.OutcomeConflict
	case errors.Is(err, apperrors.ErrBookNotFound), errors.Is(err, apperrors.ErrInvalidDueDate):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
