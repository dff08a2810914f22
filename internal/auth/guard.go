// Пакет auth — Session Guard админки.
// Авторизация — наличие session cookie, значение которого совпадает
// с фиксированным маркером, выставленным при успешном входе.
// Идентичности пользователя и серверного срока действия нет:
// время жизни ограничено Max-Age cookie.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"
)

// Config — параметры Session Guard.
type Config struct {
	// CookieName — имя session cookie
	CookieName string
	// Sentinel — значение cookie после успешного входа
	Sentinel string
	// MaxAge — время жизни cookie
	MaxAge time.Duration
	// Secure — Secure flag для cookie (true для HTTPS)
	Secure bool
	// Username и Password — учётные данные администратора
	Username string
	Password string
}

// Guard проверяет session cookie и выдаёт её при входе.
type Guard struct {
	cfg Config
}

// NewGuard создаёт Guard. Пустые имя cookie и маркер недопустимы.
func NewGuard(cfg Config) (*Guard, error) {
	if cfg.CookieName == "" {
		return nil, errors.New("имя session cookie не задано")
	}
	if cfg.Sentinel == "" {
		return nil, errors.New("значение session cookie не задано")
	}
	return &Guard{cfg: cfg}, nil
}

// CookieName возвращает имя session cookie.
func (g *Guard) CookieName() string {
	return g.cfg.CookieName
}

// IsAuthorized сообщает, является ли token действующей сессией.
func (g *Guard) IsAuthorized(token string) bool {
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(g.cfg.Sentinel)) == 1
}

// Authorized проверяет session cookie запроса.
func (g *Guard) Authorized(r *http.Request) bool {
	cookie, err := r.Cookie(g.cfg.CookieName)
	if err != nil {
		return false
	}
	return g.IsAuthorized(cookie.Value)
}

// CheckCredentials сравнивает учётные данные с настроенными.
// Оба сравнения выполняются всегда.
func (g *Guard) CheckCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.cfg.Username))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(g.cfg.Password))
	return userOK&passOK == 1 && username != "" && password != ""
}

// SetSessionCookie устанавливает session cookie в ответ (login).
func (g *Guard) SetSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    g.cfg.Sentinel,
		Path:     "/",
		MaxAge:   int(g.cfg.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   g.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie удаляет session cookie из ответа (logout).
func (g *Guard) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
