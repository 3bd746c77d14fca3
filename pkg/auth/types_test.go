package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"sales", RoleSales, false},
		{"builder", RoleBuilder, false},
		{"admin", RoleAdmin, false},
		{"dual", RoleDual, false},
		{"super_admin", RoleSuperAdmin, false},
		{" Admin ", RoleAdmin, false},
		{"", RoleNone, false},
		{"superadmin", RoleNone, true},
		{"root", RoleNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRole)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasAdministrativeOverride(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleAdmin, true},
		{RoleSuperAdmin, true},
		{RoleSales, false},
		{RoleBuilder, false},
		{RoleDual, false},
		{RoleNone, false},
		{Role("Admin"), false},
		{Role("administrator"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, HasAdministrativeOverride(tt.role))
		})
	}
}

func TestRole_SelfAssignable(t *testing.T) {
	assert.True(t, RoleSales.SelfAssignable())
	assert.True(t, RoleBuilder.SelfAssignable())
	assert.True(t, RoleDual.SelfAssignable())
	assert.False(t, RoleAdmin.SelfAssignable())
	assert.False(t, RoleSuperAdmin.SelfAssignable())
	assert.False(t, RoleNone.SelfAssignable())
}

func TestUserProfile_HasEntitlement(t *testing.T) {
	profile := &UserProfile{Entitlements: []string{EntitlementLeadsView, EntitlementAnalytics}}

	assert.True(t, profile.HasEntitlement(EntitlementLeadsView))
	assert.False(t, profile.HasEntitlement(EntitlementLeadsPurchase))
	assert.False(t, (&UserProfile{}).HasEntitlement(EntitlementLeadsView))
}

func TestUser_Principal(t *testing.T) {
	id := uuid.New()
	user := &User{ID: id, Role: RoleBuilder}

	p := user.Principal()
	assert.Equal(t, id.String(), p.ID)
	assert.Equal(t, RoleBuilder, p.Role)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@x.com", NormalizeEmail("  User@X.com \n"))
	assert.Equal(t, "", NormalizeEmail("   "))
}
