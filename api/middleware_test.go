package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("OPTIONS", "/v1/leads", nil)
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS headers: %v", rec.Header())
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	env := newEnv(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "op@talentflow.test",
		"exp":   time.Now().Add(-time.Hour).Unix(),
	})
	expired, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/leads", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token status = %d, want 401", rec.Code)
	}
}

func TestTokenSignedWithWrongSecretRejected(t *testing.T) {
	env := newEnv(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "op@talentflow.test",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	forged, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/leads", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged token status = %d, want 401", rec.Code)
	}
}
