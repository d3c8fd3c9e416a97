package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Xalid7/oshxona/internal/account"
	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store/memory"
	"github.com/Xalid7/oshxona/pkg/config"
	"github.com/Xalid7/oshxona/pkg/jwtutil"
	"github.com/Xalid7/oshxona/pkg/logger"
	"github.com/Xalid7/oshxona/prometheus"

	"github.com/labstack/echo/v4"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"
)

type authFixture struct {
	e        *echo.Echo
	accounts *account.Service
	tokens   *jwtutil.JWTUtil
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	tokens := jwtutil.NewJWTUtil(&config.JWTConfig{SigningKey: "test", ExpirationHours: 1})
	accounts := account.NewService(memory.New(), tokens, nil, account.WithHashCost(bcrypt.MinCost))

	e := echo.New()
	e.Use(RequestIDMiddleware)
	api := e.Group("/api", AuthMiddleware(tokens, accounts))
	api.GET("/me", func(c echo.Context) error {
		id, _ := GetUserIDFromContext(c)
		return c.JSON(http.StatusOK, echo.Map{"user_id": id, "role": c.Get(ContextUserRole)})
	})
	api.DELETE("/things", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, RequireRole(model.RoleAdmin, model.RoleManager))

	return &authFixture{e: e, accounts: accounts, tokens: tokens}
}

func (f *authFixture) user(t *testing.T, username, role string) (*model.User, string) {
	t.Helper()
	u, err := f.accounts.CreateUser(context.Background(), account.UserInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret1",
		Role:     role,
	})
	if err != nil {
		t.Fatal(err)
	}
	token, err := f.tokens.GenerateToken(u.ID, u.Username, u.Role)
	if err != nil {
		t.Fatal(err)
	}
	return u, token
}

func (f *authFixture) do(method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	f := newAuthFixture(t)
	_, cookToken := f.user(t, "oshpaz", model.RoleCook)
	_, adminToken := f.user(t, "admin", model.RoleAdmin)
	inactive, inactiveToken := f.user(t, "former", model.RoleCook)
	if _, err := f.accounts.ToggleActive(context.Background(), inactive.ID); err != nil {
		t.Fatal(err)
	}
	ghostToken, err := f.tokens.GenerateToken(99, "ghost", model.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		auth       string
		wantStatus int
	}{
		{name: "missing header", method: http.MethodGet, path: "/api/me", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", method: http.MethodGet, path: "/api/me", auth: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/api/me", auth: "Bearer abc", wantStatus: http.StatusUnauthorized},
		{name: "unknown user", method: http.MethodGet, path: "/api/me", auth: "Bearer " + ghostToken, wantStatus: http.StatusUnauthorized},
		{name: "deactivated user", method: http.MethodGet, path: "/api/me", auth: "Bearer " + inactiveToken, wantStatus: http.StatusForbidden},
		{name: "cook reads", method: http.MethodGet, path: "/api/me", auth: "Bearer " + cookToken, wantStatus: http.StatusOK},
		{name: "cook cannot delete", method: http.MethodDelete, path: "/api/things", auth: "Bearer " + cookToken, wantStatus: http.StatusForbidden},
		{name: "admin deletes", method: http.MethodDelete, path: "/api/things", auth: "bearer " + adminToken, wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, tt.auth)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(RequestIDMiddleware)
	e.GET("/", func(c echo.Context) error {
		if _, ok := logger.Lookup(c.Request().Context()); !ok {
			t.Error("request context has no logger")
		}
		return c.String(http.StatusOK, GetRequestID(c))
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	id := rec.Header().Get(HeaderRequestID)
	if id == "" || rec.Body.String() != id {
		t.Errorf("request id header %q body %q", id, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "abc-123" {
		t.Errorf("request id = %q, want caller's id", got)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := prometheus.New(prom.NewRegistry(), "test")
	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/meals/:id", func(c echo.Context) error {
		if c.Param("id") == "0" {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return c.NoContent(http.StatusOK)
	})

	for _, path := range []string{"/api/meals/1", "/api/meals/2", "/api/meals/0"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.HttpRequestsTotal.WithLabelValues(http.MethodGet, "/api/meals/:id", "200")); got != 2 {
		t.Errorf("200 requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HttpRequestsTotal.WithLabelValues(http.MethodGet, "/api/meals/:id", "404")); got != 1 {
		t.Errorf("404 requests = %v, want 1", got)
	}
}
