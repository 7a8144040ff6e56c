package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatapi/internal/api/v1/dto"

	"github.com/dgrijalva/jwt-go"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwt.StandardClaims{
		Subject:   subject,
		ExpiresAt: expiresAt.Unix(),
	})
	s, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func authRequest(t *testing.T, authHeader string) (*httptest.ResponseRecorder, *string) {
	t.Helper()
	var gotUser *string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid, ok := r.Context().Value(UserContextKey).(string); ok {
			gotUser = &uid
		}
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	AuthMiddleware(testSecret)(next).ServeHTTP(rr, req)
	return rr, gotUser
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	return resp
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	rr, _ := authRequest(t, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != dto.CodeNoToken {
		t.Errorf("code = %q, want %q", resp.Code, dto.CodeNoToken)
	}
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	rr, _ := authRequest(t, "Basic dXNlcjpwYXNz")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != dto.CodeInvalidToken {
		t.Errorf("code = %q, want %q", resp.Code, dto.CodeInvalidToken)
	}
}

func TestAuthMiddlewareGarbageToken(t *testing.T) {
	rr, _ := authRequest(t, "Bearer not.a.jwt")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != dto.CodeInvalidToken {
		t.Errorf("code = %q, want %q", resp.Code, dto.CodeInvalidToken)
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	token := signedToken(t, "user-1", time.Now().Add(-time.Hour))
	rr, _ := authRequest(t, "Bearer "+token)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	token := signedToken(t, "user-1", time.Now().Add(time.Hour))
	rr, gotUser := authRequest(t, "Bearer "+token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if gotUser == nil || *gotUser != "user-1" {
		t.Fatalf("handler did not receive the subject: %v", gotUser)
	}
}
