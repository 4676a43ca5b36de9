package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BorrowStatus represents the state of a ledger entry.
type BorrowStatus string

const (
	BorrowStatusActive   BorrowStatus = "active"
	BorrowStatusReturned BorrowStatus = "returned"
)

// BorrowRecord is one borrow/return event in the ledger.
// ActiveKey holds "<userId>:<bookId>" while the record is active and NULL once
// returned; its unique index allows at most one active record per pair.
type BorrowRecord struct {
	ID         uuid.UUID    `json:"id" gorm:"type:char(36);primaryKey"`
	UserID     uuid.UUID    `json:"userId" gorm:"type:char(36);not null;index"`
	BookID     uuid.UUID    `json:"bookId" gorm:"type:char(36);not null;index"`
	BorrowDate time.Time    `json:"borrowDate" gorm:"not null;index"`
	DueDate    time.Time    `json:"dueDate" gorm:"not null"`
	ReturnDate *time.Time   `json:"returnDate"`
	Status     BorrowStatus `json:"status" gorm:"type:varchar(20);not null;default:'active';index"`
	Comments   string       `json:"comments" gorm:"type:text"`
	ActiveKey  *string      `json:"-" gorm:"size:80;uniqueIndex"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// BeforeCreate sets UUID before creating the record.
func (r *BorrowRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ActiveBorrowKey is the value of ActiveKey for an active borrow of bookID by userID.
func ActiveBorrowKey(userID, bookID uuid.UUID) string {
	return userID.String() + ":" + bookID.String()
}

// BorrowHistoryEntry is a ledger entry of one book joined with its borrower.
type BorrowHistoryEntry struct {
	ID         uuid.UUID    `json:"id"`
	UserID     uuid.UUID    `json:"userId"`
	BorrowDate time.Time    `json:"borrowDate"`
	DueDate    time.Time    `json:"dueDate"`
	ReturnDate *time.Time   `json:"returnDate"`
	Status     BorrowStatus `json:"status"`
	Comments   string       `json:"comments"`
	UserName   string       `json:"userName"`
	UserEmail  string       `json:"userEmail,omitempty"`
}

// UserBorrowing is a ledger entry of one user joined with the book title.
type UserBorrowing struct {
	ID         uuid.UUID    `json:"id"`
	BookID     uuid.UUID    `json:"bookId"`
	BorrowDate time.Time    `json:"borrowDate"`
	DueDate    time.Time    `json:"dueDate"`
	ReturnDate *time.Time   `json:"returnDate"`
	Status     BorrowStatus `json:"status"`
	BookTitle  string       `json:"bookTitle,omitempty"`
}
