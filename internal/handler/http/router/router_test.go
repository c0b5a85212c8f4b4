package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestNewRouter(t *testing.T) {
	handler := NewRouter(Options{JWTSecret: "secret", PixAppID: "app", AllowedOrigins: []string{"https://dizimo.example"}}, Services{}, zap.NewNop())

	t.Run("Given the service When probing health Then 200", func(t *testing.T) {
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("Given no token When calling a protected route Then 401", func(t *testing.T) {
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dizimo_payment/2024", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("Given an allowed origin When preflighting Then CORS headers are sent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/dizimo_payment", nil)
		req.Header.Set("Origin", "https://dizimo.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dizimo.example" {
			t.Errorf("allow origin = %q", got)
		}
	})
}
