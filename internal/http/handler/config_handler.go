package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
	"github.com/jackmusick/bifrost-api-sub005/internal/http/middleware"
	"github.com/jackmusick/bifrost-api-sub005/internal/service"
)

// ConfigHandler exposes the admin config surface. secret_ref entries always
// travel as their vault name; the literal secret never leaves the resolver.
type ConfigHandler struct {
	Configs *service.ConfigService
	logger  *zap.Logger
}

func NewConfigHandler(configs *service.ConfigService, logger *zap.Logger) *ConfigHandler {
	return &ConfigHandler{Configs: configs, logger: logger}
}

// List handles GET /config.
func (h *ConfigHandler) List(c *gin.Context) {
	entries, err := h.Configs.List(c.Request.Context(), middleware.ScopeFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.ConfigEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Get handles GET /config/:key. ?fallback=false disables the GLOBAL
// fallback read.
func (h *ConfigHandler) Get(c *gin.Context) {
	key := c.Param("key")
	fallback := c.DefaultQuery("fallback", "true") != "false"

	entry, err := h.Configs.Get(c.Request.Context(), middleware.ScopeFrom(c), key, fallback)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if entry == nil {
		writeError(c, h.logger, domain.NotFound("config key %s not found", key))
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Set handles PUT /config/:key.
func (h *ConfigHandler) Set(c *gin.Context) {
	var req struct {
		Value       string                 `json:"value" binding:"required"`
		Type        domain.ConfigValueType `json:"type"`
		Description string                 `json:"description"`
		Reference   bool                   `json:"reference"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, domain.Validation("invalid request body: %v", err))
		return
	}

	entry, err := h.Configs.Set(c.Request.Context(), service.SetConfigInput{
		Scope:       middleware.ScopeFrom(c),
		Key:         c.Param("key"),
		Value:       req.Value,
		Type:        req.Type,
		Description: req.Description,
		Reference:   req.Reference,
		Actor:       middleware.ActorFrom(c),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Delete handles DELETE /config/:key. Deleting an absent key is not an
// error; keys referenced by a connection answer 409.
func (h *ConfigHandler) Delete(c *gin.Context) {
	if _, err := h.Configs.Delete(c.Request.Context(), middleware.ScopeFrom(c), c.Param("key")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
