package casdoor

import (
	"testing"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

func TestMapRole(t *testing.T) {
	tests := []struct {
		in   string
		want models.UserRole
	}{
		{"admin", models.RoleAdmin},
		{"Administrator", models.RoleAdmin},
		{"teacher", models.RoleLecturer},
		{" Instructor ", models.RoleLecturer},
		{"lecturer", models.RoleLecturer},
		{"student", models.RoleStudent},
		{"", models.RoleStudent},
		{"proctor", models.RoleStudent},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MapRole(tt.in))
		})
	}
}

func TestRoleFromUser(t *testing.T) {
	assert.Equal(t, models.RoleAdmin, RoleFromUser(&casdoorsdk.User{IsAdmin: true}))

	withRoles := &casdoorsdk.User{
		Type:  "normal-user",
		Roles: []*casdoorsdk.Role{{Name: "student"}, nil, {Name: "teacher"}},
	}
	assert.Equal(t, models.RoleLecturer, RoleFromUser(withRoles))

	assert.Equal(t, models.RoleStudent, RoleFromUser(&casdoorsdk.User{Type: "normal-user"}))
}

func TestUserFromClaims(t *testing.T) {
	assert.Nil(t, UserFromClaims(nil))
	assert.Nil(t, UserFromClaims(&casdoorsdk.Claims{}))

	claims := &casdoorsdk.Claims{
		User: casdoorsdk.User{
			Id:          "u-1",
			Name:        "jdoe",
			DisplayName: "Jane Doe",
			Email:       " Jane@Example.com",
			Type:        "instructor",
		},
	}

	user := UserFromClaims(claims)
	require.NotNil(t, user)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, "Jane Doe", user.Name)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.Equal(t, models.RoleLecturer, user.Role)
	assert.Equal(t, models.UserStatusActive, user.Status)

	claims.User.DisplayName = ""
	assert.Equal(t, "jdoe", UserFromClaims(claims).Name)
}
