package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleClinician is the only role allowed to drive consultations
const RoleClinician = "clinician"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidRole  = errors.New("token role is not allowed")
)

// JWTClaims represents the claims in a clinician session token
type JWTClaims struct {
	ClinicianID string `json:"clinician_id"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Validator signs and validates HS256 session tokens
type Validator struct {
	secret []byte
}

// NewValidator creates a validator for the given shared secret
func NewValidator(secret string) (*Validator, error) {
	if len(secret) < 16 {
		return nil, errors.New("JWT secret must be at least 16 characters")
	}
	return &Validator{secret: []byte(secret)}, nil
}

// GenerateClinicianToken generates a JWT token for a clinician session
func (v *Validator) GenerateClinicianToken(clinicianID string, ttl time.Duration) (string, error) {
	claims := &JWTClaims{
		ClinicianID: clinicianID,
		Role:        RoleClinician,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clinicianID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (v *Validator) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Role != RoleClinician {
		return nil, ErrInvalidRole
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}
