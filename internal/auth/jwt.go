// Package auth issues and validates the internal JWTs protecting the staff
// surface: AML review, partner administration and audit queries. Partner
// traffic never uses JWTs; it authenticates with API keys in admission.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Realm identifies the JWT authentication realm.
type Realm string

const (
	// RealmStaff is for humans on the compliance and admin consoles.
	RealmStaff Realm = "staff"
	// RealmService is for internal service-to-service calls.
	RealmService Realm = "service"
)

// Claims holds the custom JWT claims for both realms.
type Claims struct {
	jwt.RegisteredClaims
	Realm Realm  `json:"realm"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"` // staff realm: viewer, compliance, admin
}

// JWTManager handles token generation and validation.
type JWTManager struct {
	secret        []byte
	staffExpiry   time.Duration
	serviceExpiry time.Duration
}

// NewJWTManager creates a JWT manager with realm-specific expiry durations.
func NewJWTManager(secret string, staffExpiry, serviceExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		staffExpiry:   staffExpiry,
		serviceExpiry: serviceExpiry,
	}
}

// GenerateToken creates a signed JWT for the given realm and subject.
func (m *JWTManager) GenerateToken(realm Realm, subjectID uuid.UUID, email, role string) (string, error) {
	var expiry time.Duration
	switch realm {
	case RealmStaff:
		expiry = m.staffExpiry
	case RealmService:
		expiry = m.serviceExpiry
	default:
		return "", fmt.Errorf("unknown realm: %s", realm)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			ID:        uuid.New().String(),
		},
		Realm: realm,
		Email: email,
		Role:  role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken parses and validates a JWT, returning claims if valid.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// ValidateTokenForRealm validates a token and ensures it belongs to the expected realm.
func (m *JWTManager) ValidateTokenForRealm(tokenString string, expectedRealm Realm) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Realm != expectedRealm {
		return nil, fmt.Errorf("expected realm %s, got %s", expectedRealm, claims.Realm)
	}
	return claims, nil
}
