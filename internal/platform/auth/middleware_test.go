package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testJWTConfig = JWTConfig{
	Issuer:     "carelink-test",
	Audience:   "carelink-api",
	SigningKey: []byte("test-signing-key-at-least-32-bytes!!"),
}

func signToken(t *testing.T, cfg JWTConfig, mutate func(*Claims)) string {
	t.Helper()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles:        []string{"physician"},
		DepartmentID: uuid.New().String(),
		DisplayName:  "Dr. Test",
	}
	if mutate != nil {
		mutate(claims)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func invokeJWT(t *testing.T, req *http.Request) (echo.Context, error) {
	t.Helper()

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := JWTMiddleware(testJWTConfig)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return c, handler(c)
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	userID := uuid.New()
	deptID := uuid.New()
	token := signToken(t, testJWTConfig, func(claims *Claims) {
		claims.Subject = userID.String()
		claims.DepartmentID = deptID.String()
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/consults", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	c, err := invokeJWT(t, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gotUser, ok := CurrentUserID(c)
	if !ok || gotUser != userID {
		t.Errorf("expected user %s, got %s (ok=%v)", userID, gotUser, ok)
	}
	if got := CurrentDepartmentID(c); got != deptID {
		t.Errorf("expected department %s, got %s", deptID, got)
	}
	if roles := CurrentRoles(c); len(roles) != 1 || roles[0] != "physician" {
		t.Errorf("unexpected roles %v", roles)
	}
}

func TestJWTMiddleware_TokenAsQueryParam(t *testing.T) {
	// Browser WebSocket clients cannot set the Authorization header on
	// the upgrade request.
	token := signToken(t, testJWTConfig, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws?token="+token, nil)

	c, err := invokeJWT(t, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := CurrentUserID(c); !ok {
		t.Error("expected identity from query token")
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	otherKey := JWTConfig{Issuer: testJWTConfig.Issuer, Audience: testJWTConfig.Audience,
		SigningKey: []byte("a-completely-different-signing-key!!")}

	tests := []struct {
		name  string
		setup func(req *http.Request)
	}{
		{"missing header", func(req *http.Request) {}},
		{"not a bearer token", func(req *http.Request) {
			req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		}},
		{"garbage token", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer not.a.jwt")
		}},
		{"wrong signing key", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+signToken(t, otherKey, nil))
		}},
		{"wrong issuer", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+signToken(t, testJWTConfig, func(claims *Claims) {
				claims.Issuer = "someone-else"
			}))
		}},
		{"wrong audience", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+signToken(t, testJWTConfig, func(claims *Claims) {
				claims.Audience = jwt.ClaimStrings{"other-api"}
			}))
		}},
		{"expired", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+signToken(t, testJWTConfig, func(claims *Claims) {
				claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
			}))
		}},
		{"subject not a uuid", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+signToken(t, testJWTConfig, func(claims *Claims) {
				claims.Subject = "alice"
			}))
		}},
		{"department not a uuid", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+signToken(t, testJWTConfig, func(claims *Claims) {
				claims.DepartmentID = "cardiology"
			}))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/consults", nil)
			tt.setup(req)

			_, err := invokeJWT(t, req)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %v", err)
			}
			if httpErr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", httpErr.Code)
			}
		})
	}
}

func TestJWTMiddleware_NoDepartmentClaim(t *testing.T) {
	token := signToken(t, testJWTConfig, func(claims *Claims) {
		claims.DepartmentID = ""
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/consults", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	c, err := invokeJWT(t, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := CurrentDepartmentID(c); got != uuid.Nil {
		t.Errorf("expected nil department, got %s", got)
	}
}

func TestDevAuthMiddleware_DefaultIdentity(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	handler := DevAuthMiddleware()(func(c echo.Context) error { return nil })
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	userID, ok := CurrentUserID(c)
	if !ok || userID != uuid.MustParse("00000000-0000-0000-0000-000000000001") {
		t.Errorf("unexpected dev user %s", userID)
	}
	roles := CurrentRoles(c)
	if len(roles) != 2 || roles[0] != "admin" {
		t.Errorf("unexpected dev roles %v", roles)
	}
}

func TestDevAuthMiddleware_DebugOverrides(t *testing.T) {
	userID := uuid.New()
	deptID := uuid.New()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Debug-User", userID.String())
	req.Header.Set("X-Debug-Department", deptID.String())
	c := e.NewContext(req, httptest.NewRecorder())

	handler := DevAuthMiddleware()(func(c echo.Context) error { return nil })
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, _ := CurrentUserID(c); got != userID {
		t.Errorf("expected override user %s, got %s", userID, got)
	}
	if got := CurrentDepartmentID(c); got != deptID {
		t.Errorf("expected override department %s, got %s", deptID, got)
	}
}

func TestCurrentUserID_Unset(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	if _, ok := CurrentUserID(c); ok {
		t.Error("expected no identity on a bare context")
	}
	if got := CurrentDepartmentID(c); got != uuid.Nil {
		t.Errorf("expected nil department, got %s", got)
	}
	if roles := CurrentRoles(c); roles != nil {
		t.Errorf("expected no roles, got %v", roles)
	}
}
