package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/fastplat/auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID  string      `json:"user_id"`
	Email   string      `json:"email"`
	Role    domain.Role `json:"role"`
	Premium bool        `json:"premium"`
	jwt.RegisteredClaims
}

type TokenManager interface {
	// Issue signs a token for user. The returned expiry is nil when the manager
	// was built with a zero ttl.
	Issue(user *domain.User) (string, *time.Time, error)
	Parse(token string) (*Claims, error)
}

type jwtManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) (TokenManager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &jwtManager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (m *jwtManager) Issue(user *domain.User) (string, *time.Time, error) {
	now := m.now()

	claims := Claims{
		UserID:  user.ID,
		Email:   user.Email,
		Role:    user.Role,
		Premium: user.IsPremium,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.ID,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.New().String(),
		},
	}

	var expiresAt *time.Time
	if m.ttl > 0 {
		exp := now.Add(m.ttl)
		expiresAt = &exp
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("error signing token: %w", err)
	}

	return signed, expiresAt, nil
}

func (m *jwtManager) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
