package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/iurnickita/digimart/internal/token/config"
)

var (
	ErrNoSecret     = errors.New("jwt secret is not configured")
	ErrInvalidToken = errors.New("invalid user token")
)

// Claims — утверждения пользовательского токена
type Claims struct {
	jwt.RegisteredClaims
	UserCode string `json:"user_code"`
}

type Tokenizer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenizer(cfg config.Config) (*Tokenizer, error) {
	if cfg.SecretKey == "" {
		return nil, ErrNoSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokenizer{secret: []byte(cfg.SecretKey), ttl: ttl, now: time.Now}, nil
}

// BuildJWTString создаёт токен для пользователя и возвращает его в виде строки.
func (t *Tokenizer) BuildJWTString(userCode string) (string, error) {
	if userCode == "" {
		return "", ErrInvalidToken
	}
	now := t.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userCode,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		UserCode: userCode,
	})

	tokenString, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign user token: %w", err)
	}
	return tokenString, nil
}

// GetUserCode проверяет токен и возвращает код пользователя.
func (t *Tokenizer) GetUserCode(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.UserCode == "" || claims.ExpiresAt == nil {
		return "", ErrInvalidToken
	}
	return claims.UserCode, nil
}
