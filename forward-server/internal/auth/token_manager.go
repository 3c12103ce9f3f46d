package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

type jwtTokenManager struct {
	secret []byte
	now    func() time.Time
}

// NewJWTTokenManager creates a new HS256 JWT token manager.
func NewJWTTokenManager(secret string) TokenManager {
	return &jwtTokenManager{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (j *jwtTokenManager) GenerateToken(operatorID string) (string, error) {
	now := j.now()
	claims := jwt.MapClaims{
		"operator_id": operatorID,
		"exp":         now.Add(tokenTTL).Unix(),
		"iat":         now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

func (j *jwtTokenManager) ValidateToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	id, ok := claims["operator_id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: missing operator_id", ErrInvalidToken)
	}
	return id, nil
}
