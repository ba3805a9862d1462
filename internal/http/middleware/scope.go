package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jackmusick/bifrost-api-sub005/internal/config"
	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

const (
	ginScopeKey = "scope"
	ginActorKey = "actor"
)

// ScopeContext derives the caller's scope from the X-Org-ID header (absent
// means GLOBAL) and the acting user from X-User-ID. The surrounding
// platform's request-authentication layer normally populates these; this
// middleware is the narrow boundary it hands scope through.
func ScopeContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := domain.NormalizeScope(c.Request.Header.Get("X-Org-ID"))
		actor := strings.TrimSpace(c.Request.Header.Get("X-User-ID"))
		if actor == "" {
			actor = "system"
		}
		c.Set(ginScopeKey, scope)
		c.Set(ginActorKey, actor)
		c.Next()
	}
}

// ScopeFrom returns the request scope set by ScopeContext.
func ScopeFrom(c *gin.Context) string {
	if value, ok := c.Get(ginScopeKey); ok {
		if scope, ok := value.(string); ok {
			return scope
		}
	}
	return domain.ScopeGlobal
}

// ActorFrom returns the acting user for audit fields.
func ActorFrom(c *gin.Context) string {
	if value, ok := c.Get(ginActorKey); ok {
		if actor, ok := value.(string); ok && actor != "" {
			return actor
		}
	}
	return "system"
}

// Auth enforces static bearer tokens. Admin endpoints require the admin
// token; consumer endpoints accept either token.
type Auth struct {
	adminToken   string
	serviceToken string
}

func NewAuth(cfg config.Config) *Auth {
	return &Auth{adminToken: cfg.AdminAPIToken, serviceToken: cfg.ServiceAPIToken}
}

// RequireAdmin aborts unless the request carries the admin bearer token.
func (a *Auth) RequireAdmin(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok || !tokenEqual(token, a.adminToken) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Admin token required.",
		})
		return
	}
	c.Next()
}

// RequireAuthenticated accepts the admin or the service token.
func (a *Auth) RequireAuthenticated(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok || (!tokenEqual(token, a.adminToken) && !tokenEqual(token, a.serviceToken)) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Bearer token required.",
		})
		return
	}
	c.Next()
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func tokenEqual(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
