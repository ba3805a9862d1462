package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/jackmusick/bifrost-api-sub005/internal/config"
	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

func newScopeTestRouter(handler gin.HandlerFunc, middlewares ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middlewares...)
	r.GET("/probe", handler)
	return r
}

func TestScopeContext(t *testing.T) {
	var gotScope, gotActor string
	r := newScopeTestRouter(func(c *gin.Context) {
		gotScope = ScopeFrom(c)
		gotActor = ActorFrom(c)
		c.Status(http.StatusOK)
	}, ScopeContext())

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Org-ID", "org-1")
	req.Header.Set("X-User-ID", "alice")
	r.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "org-1", gotScope)
	require.Equal(t, "alice", gotActor)
}

func TestScopeContextDefaults(t *testing.T) {
	var gotScope, gotActor string
	r := newScopeTestRouter(func(c *gin.Context) {
		gotScope = ScopeFrom(c)
		gotActor = ActorFrom(c)
		c.Status(http.StatusOK)
	}, ScopeContext())

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, domain.ScopeGlobal, gotScope)
	require.Equal(t, "system", gotActor)
}

func TestAuthRequireAdmin(t *testing.T) {
	auth := NewAuth(config.Config{AdminAPIToken: "admin-token", ServiceAPIToken: "service-token"})
	r := newScopeTestRouter(func(c *gin.Context) {
		c.Status(http.StatusOK)
	}, auth.RequireAdmin)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"admin token", "Bearer admin-token", http.StatusOK},
		{"service token rejected", "Bearer service-token", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic admin-token", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, tc.want, rec.Code, tc.name)
	}
}

func TestAuthRequireAuthenticated(t *testing.T) {
	auth := NewAuth(config.Config{AdminAPIToken: "admin-token", ServiceAPIToken: "service-token"})
	r := newScopeTestRouter(func(c *gin.Context) {
		c.Status(http.StatusOK)
	}, auth.RequireAuthenticated)

	for header, want := range map[string]int{
		"Bearer admin-token":   http.StatusOK,
		"Bearer service-token": http.StatusOK,
		"Bearer other":         http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, header)
	}
}
