package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultCoverImage is used when a book is created without a cover reference.
const DefaultCoverImage = "https://picsum.photos/id/237/200/300"

// Book is a catalog record. Availability is not stored here: whether a user
// holds the book is a fact of the borrow ledger.
type Book struct {
	ID            uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Title         string    `json:"title" gorm:"size:255;not null;index"`
	Author        string    `json:"author" gorm:"size:255;not null;index"`
	ISBN          *string   `json:"isbn,omitempty" gorm:"column:isbn;size:32;uniqueIndex"` // NULL when unknown
	Publisher     string    `json:"publisher" gorm:"size:255"`
	Year          string    `json:"year" gorm:"size:16"`
	Category      string    `json:"category" gorm:"size:100;index"`
	Location      string    `json:"location" gorm:"size:100"`
	Description   string    `json:"description" gorm:"type:text"`
	CoverImage    string    `json:"coverImage" gorm:"size:512"`
	IsHighlighted bool      `json:"isHighlighted" gorm:"default:false;index"`
	ViewCount     int64     `json:"viewCount" gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// BeforeCreate sets UUID before creating the record.
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// ISBNOrNil maps an empty ISBN to NULL so the unique index ignores it.
func ISBNOrNil(isbn string) *string {
	if isbn == "" {
		return nil
	}
	return &isbn
}
