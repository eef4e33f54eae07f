package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// BusinessClaims represents the JWT claims carried by authenticated requests.
// The upstream auth layer resolves the owning business and stamps it here;
// the middleware copies it into the tenant context.
type BusinessClaims struct {
	Email      string `json:"email"`
	BusinessID uint   `json:"business_id"`
	jwt.RegisteredClaims
}

// JWTUtil is a utility for JWT token operations
type JWTUtil struct {
	config *JWTConfig
}

// NewJWTUtil creates a new JWT utility with the given configuration
func NewJWTUtil(config *JWTConfig) *JWTUtil {
	return &JWTUtil{
		config: config,
	}
}

// GenerateToken creates a JWT token scoped to a business
func (j *JWTUtil) GenerateToken(email string, businessID uint) (string, error) {
	if j.config == nil {
		return "", errors.New("JWT configuration not provided")
	}

	signingKey := j.config.SigningKey
	expirationHours := j.config.ExpirationHours

	claims := BusinessClaims{
		Email:      email,
		BusinessID: businessID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(expirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(signingKey))
}

// ValidateToken validates and parses the JWT token
func (j *JWTUtil) ValidateToken(tokenString string) (*BusinessClaims, error) {
	if j.config == nil {
		return nil, errors.New("JWT configuration not provided")
	}

	signingKey := j.config.SigningKey

	token, err := jwt.ParseWithClaims(
		tokenString,
		&BusinessClaims{},
		func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(signingKey), nil
		},
	)

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*BusinessClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
