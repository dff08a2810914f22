package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/portfolio/internal/auth"
)

func newTestGuard(t *testing.T) *auth.Guard {
	t.Helper()
	guard, err := auth.NewGuard(auth.Config{
		CookieName: "admin_session",
		Sentinel:   "authenticated",
		MaxAge:     7 * 24 * time.Hour,
		Username:   "admin",
		Password:   "secret",
	})
	if err != nil {
		t.Fatalf("ошибка создания Guard: %v", err)
	}
	return guard
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCookie bool
	}{
		{"верные данные", `{"username":"admin","password":"secret"}`, http.StatusOK, true},
		{"неверный пароль", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized, false},
		{"пустые данные", `{}`, http.StatusUnauthorized, false},
		{"некорректный JSON", `{`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(newTestGuard(t), testLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Login(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидалось %d", rec.Code, tt.wantStatus)
			}
			var session *http.Cookie
			for _, c := range rec.Result().Cookies() {
				if c.Name == "admin_session" {
					session = c
				}
			}
			if tt.wantCookie != (session != nil) {
				t.Fatalf("cookie выставлена: %v, ожидалось %v", session != nil, tt.wantCookie)
			}
			if session != nil && (session.Value != "authenticated" || !session.HttpOnly) {
				t.Errorf("некорректная cookie: %+v", session)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if resp := decodeBody(t, rec.Body); resp["message"] != "Invalid credentials" {
					t.Errorf("message = %v", resp["message"])
				}
			}
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	h := NewAuthHandler(newTestGuard(t), testLogger())
	rec := httptest.NewRecorder()
	h.Logout(rec, httptest.NewRequest(http.MethodDelete, "/api/auth", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("cookie должна быть удалена: %+v", cookies)
	}
}
