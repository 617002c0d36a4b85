package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/services"
	"github.com/SAP-F-2025/learning-platform-service/internal/utils"
)

// TokenVerifier turns a bearer token into the identity it was issued for.
// casdoor.IdentityCasdoor is the production implementation.
type TokenVerifier interface {
	ParseToken(token string) (*models.User, error)
}

// CasdoorAuthMiddleware authenticates requests and resolves the caller
// against the user directory
type CasdoorAuthMiddleware struct {
	verifier TokenVerifier
	users    services.UserService
	logger   utils.Logger
}

func NewCasdoorAuthMiddleware(verifier TokenVerifier, users services.UserService, logger utils.Logger) *CasdoorAuthMiddleware {
	return &CasdoorAuthMiddleware{
		verifier: verifier,
		users:    users,
		logger:   logger,
	}
}

// AuthMiddleware returns a Gin middleware function for Casdoor authentication
func (cam *CasdoorAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": err.Error(),
			})
			c.Abort()
			return
		}

		identity, err := cam.verifier.ParseToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": fmt.Sprintf("invalid token: %v", err),
			})
			c.Abort()
			return
		}

		// the directory record is authoritative for role and status
		user, err := cam.users.EnsureUser(c.Request.Context(), identity)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, services.ErrDependencyUnavailable) {
				status = http.StatusServiceUnavailable
			}
			utils.FromContext(c, cam.logger).Warn("Failed to resolve authenticated user", "user_id", identity.ID, "error", err)
			c.JSON(status, gin.H{
				"error":   "unauthorized",
				"message": fmt.Sprintf("failed to resolve user: %v", err),
			})
			c.Abort()
			return
		}

		if !user.IsActive() {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "account is suspended",
			})
			c.Abort()
			return
		}

		c.Set("user_id", user.ID)
		c.Set("user", user)
		c.Set("user_role", user.Role)
		c.Set("user_email", user.Email)
		c.Set("actor", models.Actor{ID: user.ID, Role: user.Role})

		c.Next()
	}
}

// RequireRoleMiddleware checks if user has required role. Admins always pass.
func (cam *CasdoorAuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := GetUserRoleFromContext(c)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": err.Error(),
			})
			c.Abort()
			return
		}

		if role != models.RoleAdmin && !slices.Contains(requiredRoles, role) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on an
// EventSource, so the access_token query parameter is accepted as a fallback.
func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("access_token"); token != "" {
			return token, nil
		}
		return "", errors.New("authorization header missing")
	}

	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" || tokenParts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return tokenParts[1], nil
}

// DevTokenVerifier accepts tokens of the form "id:role[:email]". It exists for
// local development without an identity provider and must not be used in production.
type DevTokenVerifier struct{}

func (DevTokenVerifier) ParseToken(token string) (*models.User, error) {
	parts := strings.Split(token, ":")
	if len(parts) < 2 || parts[0] == "" {
		return nil, errors.New("expected id:role[:email]")
	}

	role := models.UserRole(strings.ToLower(parts[1]))
	if !role.IsValid() {
		return nil, fmt.Errorf("unknown role %q", parts[1])
	}

	email := parts[0] + "@dev.local"
	if len(parts) > 2 && parts[2] != "" {
		email = parts[2]
	}

	return &models.User{
		ID:    parts[0],
		Email: email,
		Name:  parts[0],
		Role:  role,
	}, nil
}

// GetUserFromContext extracts user from Gin context
func GetUserFromContext(c *gin.Context) (*models.User, error) {
	user, exists := c.Get("user")
	if !exists {
		return nil, fmt.Errorf("user not found in context")
	}

	userModel, ok := user.(*models.User)
	if !ok {
		return nil, fmt.Errorf("invalid user type in context")
	}

	return userModel, nil
}

// GetActorFromContext returns the authenticated caller
func GetActorFromContext(c *gin.Context) (models.Actor, error) {
	actor, exists := c.Get("actor")
	if !exists {
		return models.Actor{}, fmt.Errorf("actor not found in context")
	}

	a, ok := actor.(models.Actor)
	if !ok {
		return models.Actor{}, fmt.Errorf("invalid actor type in context")
	}

	return a, nil
}

// GetUserRoleFromContext extracts user role from Gin context
func GetUserRoleFromContext(c *gin.Context) (models.UserRole, error) {
	userRole, exists := c.Get("user_role")
	if !exists {
		return "", fmt.Errorf("user role not found in context")
	}

	role, ok := userRole.(models.UserRole)
	if !ok {
		return "", fmt.Errorf("invalid user role type in context")
	}

	return role, nil
}
