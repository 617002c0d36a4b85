package casdoor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/SAP-F-2025/learning-platform-service/internal/config"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

// IdentityCasdoor verifies access tokens and mirrors directory changes to Casdoor
type IdentityCasdoor struct {
	client *casdoorsdk.Client
	logger *slog.Logger
}

func NewIdentityCasdoor(cfg config.CasdoorConfig, logger *slog.Logger) *IdentityCasdoor {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Organization,
		cfg.Application,
	)

	return &IdentityCasdoor{
		client: client,
		logger: logger,
	}
}

// ParseToken validates a bearer token and maps its claims to a directory user
func (i *IdentityCasdoor) ParseToken(token string) (*models.User, error) {
	claims, err := i.client.ParseJwtToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	user := UserFromClaims(claims)
	if user == nil {
		return nil, fmt.Errorf("invalid user ID in token")
	}
	return user, nil
}

// SetAccountDisabled forbids or re-allows sign-in for the account
func (i *IdentityCasdoor) SetAccountDisabled(ctx context.Context, userID string, disabled bool) error {
	account, err := i.client.GetUserByUserId(userID)
	if err != nil {
		return fmt.Errorf("failed to get user from Casdoor: %w", err)
	}
	if account == nil {
		i.logger.WarnContext(ctx, "Casdoor account not found, skipping status sync", "user_id", userID)
		return nil
	}
	if account.IsForbidden == disabled {
		return nil
	}

	account.IsForbidden = disabled
	if _, err := i.client.UpdateUserForColumns(account, []string{"isForbidden"}); err != nil {
		return fmt.Errorf("failed to update Casdoor account: %w", err)
	}

	i.logger.InfoContext(ctx, "Casdoor account updated", "user_id", userID, "forbidden", disabled)
	return nil
}

// DeleteAccount removes the account; an account that no longer exists counts as deleted
func (i *IdentityCasdoor) DeleteAccount(ctx context.Context, userID string) error {
	account, err := i.client.GetUserByUserId(userID)
	if err != nil {
		return fmt.Errorf("failed to get user from Casdoor: %w", err)
	}
	if account == nil {
		return nil
	}

	if _, err := i.client.DeleteUser(account); err != nil {
		return fmt.Errorf("failed to delete Casdoor account: %w", err)
	}

	i.logger.InfoContext(ctx, "Casdoor account deleted", "user_id", userID)
	return nil
}

// ===== CONVERSION =====

// UserFromClaims builds the directory record for a first-time caller
func UserFromClaims(claims *casdoorsdk.Claims) *models.User {
	if claims == nil || claims.Id == "" {
		return nil
	}

	name := strings.TrimSpace(claims.User.DisplayName)
	if name == "" {
		name = claims.User.Name
	}

	now := time.Now().UTC()
	return &models.User{
		ID:        claims.Id,
		Email:     models.NormalizeEmail(claims.User.Email),
		Name:      name,
		Role:      RoleFromUser(&claims.User),
		Status:    models.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RoleFromUser picks the most privileged role assigned to the account
func RoleFromUser(account *casdoorsdk.User) models.UserRole {
	if account.IsAdmin {
		return models.RoleAdmin
	}

	var roles []models.UserRole
	for _, role := range account.Roles {
		if role == nil {
			continue
		}
		mapped := MapRole(role.Name)
		if !slices.Contains(roles, mapped) {
			roles = append(roles, mapped)
		}
	}
	roles = append(roles, MapRole(account.Type))

	switch {
	case slices.Contains(roles, models.RoleAdmin):
		return models.RoleAdmin
	case slices.Contains(roles, models.RoleLecturer):
		return models.RoleLecturer
	default:
		return models.RoleStudent
	}
}

// MapRole maps a Casdoor role or user type name to a platform role
func MapRole(name string) models.UserRole {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "admin", "administrator":
		return models.RoleAdmin
	case "lecturer", "teacher", "instructor", "educator":
		return models.RoleLecturer
	default:
		return models.RoleStudent
	}
}
