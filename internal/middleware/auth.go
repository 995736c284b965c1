// Package middleware содержит HTTP middleware для сервиса FlySure.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/flysure/internal/model"
)

type contextKey string

const callerKey contextKey = "caller"

const (
	authCookieName = "auth_token"
	authCookieTTL  = 30 * 24 * time.Hour
)

// AuthMiddleware определяет адрес вызывающего по подписанному cookie.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
// При пустом секрете генерируется случайный ключ, и cookie живут до перезапуска.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie авторизации и добавляет адрес вызывающего в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		caller, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// SetAuthCookie устанавливает cookie авторизации для указанного адреса.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, caller model.Address) {
	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    a.sign(caller.String()),
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) sign(value string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(value))
	return value + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (model.Address, bool) {
	value, signature, found := strings.Cut(cookieValue, ".")
	if !found {
		return "", false
	}

	_, expected, _ := strings.Cut(a.sign(value), ".")
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}

	caller, err := model.ParseAddress(value)
	if err != nil || caller.IsZero() {
		return "", false
	}
	return caller, true
}

// WithCaller возвращает контекст с адресом вызывающего.
func WithCaller(ctx context.Context, caller model.Address) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// GetCallerFromContext извлекает адрес вызывающего из контекста запроса.
func GetCallerFromContext(ctx context.Context) (model.Address, bool) {
	caller, ok := ctx.Value(callerKey).(model.Address)
	return caller, ok
}
