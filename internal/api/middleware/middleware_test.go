package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func newAuthRouter(guards ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{JWTAuth()}, guards...)
	chain = append(chain, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "role": c.GetString("role")})
	})
	r.GET("/me", chain...)
	return r
}

func get(r http.Handler, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	t.Setenv("SUPABASE_JWT_SECRET", testSecret)
	t.Setenv("SUPABASE_JWT_ISSUER", "portal")
	t.Setenv("SUPABASE_JWT_AUDIENCE", "authenticated")
	exp := time.Now().Add(time.Hour).Unix()

	valid := jwt.MapClaims{"sub": "R1", "iss": "portal", "aud": "authenticated", "exp": exp,
		"app_metadata": map[string]any{"role": "Recruiter"}}

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"valid", sign(t, jwt.SigningMethodHS256, valid), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong alg", sign(t, jwt.SigningMethodHS384, valid), http.StatusUnauthorized},
		{"expired", sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "R1", "iss": "portal", "aud": "authenticated", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"wrong issuer", sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "R1", "iss": "other", "aud": "authenticated", "exp": exp}), http.StatusUnauthorized},
		{"wrong audience", sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "R1", "iss": "portal", "aud": "anon", "exp": exp}), http.StatusUnauthorized},
		{"no subject", sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"iss": "portal", "aud": "authenticated", "exp": exp}), http.StatusUnauthorized},
	}

	r := newAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.bearer)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestJWTAuth_MissingSecret(t *testing.T) {
	t.Setenv("SUPABASE_JWT_SECRET", "")
	w := get(newAuthRouter(), "anything")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	t.Setenv("SUPABASE_JWT_SECRET", testSecret)
	t.Setenv("SUPABASE_JWT_ISSUER", "")
	t.Setenv("SUPABASE_JWT_AUDIENCE", "")
	exp := time.Now().Add(time.Hour).Unix()

	candidate := sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "C1", "exp": exp})
	recruiter := sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "R1", "exp": exp, "app_metadata": map[string]any{"role": "recruiter"}})
	admin := sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "A1", "exp": exp, "app_metadata": map[string]any{"role": "admin"}})

	tests := []struct {
		name  string
		guard gin.HandlerFunc
		token string
		want  int
	}{
		{"candidate on recruiter route", RequireRecruiter(), candidate, http.StatusForbidden},
		{"recruiter on recruiter route", RequireRecruiter(), recruiter, http.StatusOK},
		{"admin on recruiter route", RequireRecruiter(), admin, http.StatusOK},
		{"recruiter on admin route", RequireAdmin(), recruiter, http.StatusForbidden},
		{"admin on admin route", RequireAdmin(), admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(newAuthRouter(tt.guard), tt.token)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestPortalClaims_DefaultRole(t *testing.T) {
	c := &portalClaims{}
	if got := c.appRole(); got != "candidate" {
		t.Errorf("appRole() = %q, want candidate", got)
	}
	c.AppMetadata = map[string]any{"role": "ADMIN"}
	if got := c.appRole(); got != "admin" {
		t.Errorf("appRole() = %q, want admin", got)
	}
}
