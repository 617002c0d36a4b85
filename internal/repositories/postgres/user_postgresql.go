package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-platform-service/internal/cache"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
)

type UserPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewUserPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.UserRepository {
	return &UserPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cacheManager,
	}
}

func (u *UserPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return u.db
}

func (u *UserPostgreSQL) Create(ctx context.Context, tx *gorm.DB, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)

	if err := u.getDB(tx).WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("user %s: %w", user.ID, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	cache.InvalidateUserCache(ctx, u.cacheManager, user.ID)
	return nil
}

// GetByID reads through the user cache unless a transaction is supplied
func (u *UserPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	fetch := func() (interface{}, error) {
		var user models.User
		if err := u.getDB(tx).WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
			return nil, notFound("user", id, err)
		}
		return &user, nil
	}

	if tx != nil {
		value, err := fetch()
		if err != nil {
			return nil, err
		}
		return value.(*models.User), nil
	}

	var user models.User
	if err := u.cacheManager.User.CacheOrExecute(ctx, "id:"+id, &user, fetch); err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *UserPostgreSQL) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)

	var user models.User
	if err := u.getDB(tx).WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound("user", email, err)
	}
	return &user, nil
}

// GetByIDs returns the users that exist; missing ids are skipped
func (u *UserPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return []*models.User{}, nil
	}

	var users []*models.User
	if err := u.getDB(tx).WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}

func (u *UserPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.UserFilters) ([]*models.User, int64, error) {
	query := u.helpers.ApplyUserFilters(u.getDB(tx).WithContext(ctx).Model(&models.User{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query = query.Order("name ASC").Order("id ASC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var users []*models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func (u *UserPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, status models.UserStatus, at time.Time) error {
	return u.updateColumns(ctx, tx, id, map[string]interface{}{"status": status, "updated_at": at})
}

func (u *UserPostgreSQL) UpdateRole(ctx context.Context, tx *gorm.DB, id string, role models.UserRole, at time.Time) error {
	return u.updateColumns(ctx, tx, id, map[string]interface{}{"role": role, "updated_at": at})
}

func (u *UserPostgreSQL) updateColumns(ctx context.Context, tx *gorm.DB, id string, columns map[string]interface{}) error {
	res := u.getDB(tx).WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(columns)
	if res.Error != nil {
		return fmt.Errorf("failed to update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}

	cache.InvalidateUserCache(ctx, u.cacheManager, id)
	return nil
}

func (u *UserPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	res := u.getDB(tx).WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete user: %w", res.Error)
	}

	cache.InvalidateUserCache(ctx, u.cacheManager, id)
	return res.RowsAffected > 0, nil
}
