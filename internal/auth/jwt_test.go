package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 8*time.Hour, time.Hour)
}

func TestGenerateAndValidateStaffToken(t *testing.T) {
	mgr := newTestJWTManager()
	staffID := uuid.New()

	token, err := mgr.GenerateToken(RealmStaff, staffID, "compliance@betlink.io", RoleCompliance)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateTokenForRealm(token, RealmStaff)
	require.NoError(t, err)
	assert.Equal(t, staffID.String(), claims.Subject)
	assert.Equal(t, RealmStaff, claims.Realm)
	assert.Equal(t, "compliance@betlink.io", claims.Email)
	assert.Equal(t, RoleCompliance, claims.Role)
}

func TestGenerateAndValidateServiceToken(t *testing.T) {
	mgr := newTestJWTManager()
	serviceID := uuid.New()

	token, err := mgr.GenerateToken(RealmService, serviceID, "", "")
	require.NoError(t, err)

	claims, err := mgr.ValidateTokenForRealm(token, RealmService)
	require.NoError(t, err)
	assert.Equal(t, RealmService, claims.Realm)
}

func TestRealmMismatchRejected(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(RealmService, uuid.New(), "", "")
	require.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(token, RealmStaff)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expected realm staff")
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", 8*time.Hour, time.Hour)
	mgr2 := NewJWTManager("secret-2", 8*time.Hour, time.Hour)

	token, err := mgr1.GenerateToken(RealmStaff, uuid.New(), "", RoleViewer)
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewJWTManager("secret", 1*time.Millisecond, 1*time.Millisecond)

	token, err := mgr.GenerateToken(RealmStaff, uuid.New(), "", RoleViewer)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestUnknownRealmRejected(t *testing.T) {
	mgr := newTestJWTManager()
	_, err := mgr.GenerateToken(Realm("player"), uuid.New(), "", "")
	assert.Error(t, err)
}
