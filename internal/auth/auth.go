package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type Auth interface {
	Middleware(h http.Handler) http.Handler
}

// UserCoder извлекает код пользователя из подписанного токена.
type UserCoder interface {
	GetUserCode(tokenString string) (string, error)
}

type ctxKey struct{}

const cookieUserToken = "digimartUserToken"

var ErrNoToken = errors.New("user token is missing")

type auth struct {
	tokens UserCoder
}

func NewAuth(tokens UserCoder) Auth {
	return &auth{tokens: tokens}
}

func (a *auth) Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// получение id пользователя
		userCode, err := a.getUserCode(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// передаём управление хендлеру
		h.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userCode)))
	})
}

func (a *auth) getUserCode(r *http.Request) (string, error) {
	tokenString := bearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		// куки пользователя
		tokenCookie, err := r.Cookie(cookieUserToken)
		if err != nil {
			return "", ErrNoToken
		}
		tokenString = tokenCookie.Value
	}
	return a.tokens.GetUserCode(tokenString)
}

func bearer(header string) string {
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

func WithUser(ctx context.Context, userCode string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userCode)
}

// UserFromContext возвращает код пользователя, записанный Middleware.
func UserFromContext(ctx context.Context) (string, bool) {
	userCode, ok := ctx.Value(ctxKey{}).(string)
	return userCode, ok && userCode != ""
}
