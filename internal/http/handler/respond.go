package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

// writeError maps domain failures to the stable error taxonomy. Anything
// outside the taxonomy is an internal error.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	if domainErr, ok := domain.AsError(err); ok {
		if domainErr.Status >= 500 && logger != nil {
			logger.Error("request failed", zap.String("code", domainErr.Code), zap.Error(err))
		}
		c.JSON(domainErr.Status, gin.H{
			"error":   domainErr.Code,
			"message": domainErr.Message,
		})
		return
	}
	if logger != nil {
		logger.Error("request failed", zap.Error(err))
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Unexpected server error.",
	})
}

// requestBaseURL reconstructs the caller's base origin, honoring proxy
// headers the way the redirecting UI sees them.
func requestBaseURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host
}
