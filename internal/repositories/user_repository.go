package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

// UserRepository is the persisted user directory
type UserRepository interface {
	Create(ctx context.Context, tx *gorm.DB, user *models.User) error

	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.User, error)

	List(ctx context.Context, tx *gorm.DB, filters UserFilters) ([]*models.User, int64, error)

	UpdateStatus(ctx context.Context, tx *gorm.DB, id string, status models.UserStatus, at time.Time) error
	UpdateRole(ctx context.Context, tx *gorm.DB, id string, role models.UserRole, at time.Time) error

	// Delete reports whether a row existed.
	Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error)
}
