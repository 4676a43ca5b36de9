package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"librarian/internal/model"
)

// UserFilter narrows and orders a user listing. SortBy is "email" (default)
// or "role".
type UserFilter struct {
	Role   model.Role
	SortBy string
	Desc   bool
	Page   model.PageRequest
}

// UserRepository defines persistence operations.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context, filter UserFilter) ([]model.User, int64, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns one page of users and the total matching count.
func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]model.User, int64, error) {
	byRole := func(db *gorm.DB) *gorm.DB {
		if filter.Role != "" {
			return db.Where("role = ?", filter.Role)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Scopes(byRole).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []model.User
	if err := r.db.WithContext(ctx).Scopes(byRole).
		Order(clause.OrderByColumn{Column: clause.Column{Name: sortColumn(filter.SortBy)}, Desc: filter.Desc}).
		Offset(filter.Page.Offset()).
		Limit(filter.Page.Limit).
		Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// Delete removes the user. gorm.ErrRecordNotFound is returned when no row matched.
func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func sortColumn(sortBy string) string {
	if sortBy == "role" {
		return "role"
	}
	return "email"
}
