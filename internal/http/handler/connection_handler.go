package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
	"github.com/jackmusick/bifrost-api-sub005/internal/http/middleware"
	"github.com/jackmusick/bifrost-api-sub005/internal/service"
)

const maskedValue = "***"

// ConnectionHandler exposes the OAuth connection lifecycle endpoints.
type ConnectionHandler struct {
	Connections *service.ConnectionService
	Flow        *service.FlowService
	Refresh     *service.RefreshService
	Credentials *service.CredentialService
	logger      *zap.Logger
}

func NewConnectionHandler(
	connections *service.ConnectionService,
	flow *service.FlowService,
	refresh *service.RefreshService,
	credentials *service.CredentialService,
	logger *zap.Logger,
) *ConnectionHandler {
	return &ConnectionHandler{
		Connections: connections,
		Flow:        flow,
		Refresh:     refresh,
		Credentials: credentials,
		logger:      logger,
	}
}

// connectionResponse is the wire shape of a connection with secret
// references masked.
type connectionResponse struct {
	Scope            string                  `json:"scope"`
	Name             string                  `json:"name"`
	ClientID         string                  `json:"client_id"`
	ClientSecretRef  string                  `json:"client_secret_ref,omitempty"`
	AuthorizationURL string                  `json:"authorization_url,omitempty"`
	TokenURL         string                  `json:"token_url"`
	RedirectURI      string                  `json:"redirect_uri,omitempty"`
	Scopes           string                  `json:"scopes,omitempty"`
	TestURL          string                  `json:"test_url,omitempty"`
	OAuthFlowType    domain.OAuthFlowType    `json:"oauth_flow_type"`
	Status           domain.ConnectionStatus `json:"status"`
	StatusMessage    string                  `json:"status_message,omitempty"`
	OAuthResponseRef string                  `json:"oauth_response_ref,omitempty"`
	ExpiresAt        *time.Time              `json:"expires_at,omitempty"`
	LastRefreshAt    *time.Time              `json:"last_refresh_at,omitempty"`
	CreatedBy        string                  `json:"created_by,omitempty"`
	UpdatedBy        string                  `json:"updated_by,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func maskConnection(conn *domain.OAuthConnection) connectionResponse {
	resp := connectionResponse{
		Scope:            conn.Scope,
		Name:             conn.Name,
		ClientID:         conn.ClientID,
		AuthorizationURL: conn.AuthorizationURL,
		TokenURL:         conn.TokenURL,
		RedirectURI:      conn.RedirectURI,
		Scopes:           conn.Scopes,
		TestURL:          conn.TestURL,
		OAuthFlowType:    conn.OAuthFlowType,
		Status:           conn.Status,
		StatusMessage:    conn.StatusMessage,
		ExpiresAt:        conn.ExpiresAt,
		LastRefreshAt:    conn.LastRefreshAt,
		CreatedBy:        conn.CreatedBy,
		UpdatedBy:        conn.UpdatedBy,
		CreatedAt:        conn.CreatedAt,
		UpdatedAt:        conn.UpdatedAt,
	}
	if conn.ClientSecretRef != "" {
		resp.ClientSecretRef = maskedValue
	}
	if conn.OAuthResponseRef != "" {
		resp.OAuthResponseRef = maskedValue
	}
	return resp
}

// Create handles POST /oauth/connections.
func (h *ConnectionHandler) Create(c *gin.Context) {
	var req service.CreateConnectionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, domain.Validation("invalid request body: %v", err))
		return
	}

	conn, err := h.Connections.Create(c.Request.Context(), middleware.ScopeFrom(c), req, middleware.ActorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, maskConnection(conn))
}

// List handles GET /oauth/connections.
func (h *ConnectionHandler) List(c *gin.Context) {
	includeGlobal := c.DefaultQuery("include_global", "true") != "false"
	conns, err := h.Connections.List(c.Request.Context(), middleware.ScopeFrom(c), includeGlobal)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	responses := make([]connectionResponse, 0, len(conns))
	for i := range conns {
		responses = append(responses, maskConnection(&conns[i]))
	}
	c.JSON(http.StatusOK, gin.H{"connections": responses})
}

// Get handles GET /oauth/connections/:name.
func (h *ConnectionHandler) Get(c *gin.Context) {
	conn, err := h.Connections.Get(c.Request.Context(), middleware.ScopeFrom(c), c.Param("name"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, maskConnection(conn))
}

// Update handles PUT /oauth/connections/:name.
func (h *ConnectionHandler) Update(c *gin.Context) {
	var patch domain.ConnectionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, h.logger, domain.Validation("invalid request body: %v", err))
		return
	}

	conn, err := h.Connections.Update(c.Request.Context(), middleware.ScopeFrom(c), c.Param("name"), patch, middleware.ActorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, maskConnection(conn))
}

// Delete handles DELETE /oauth/connections/:name. Idempotent: absent
// connections still answer 204.
func (h *ConnectionHandler) Delete(c *gin.Context) {
	if _, err := h.Connections.Delete(c.Request.Context(), middleware.ScopeFrom(c), c.Param("name")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Authorize handles POST /oauth/connections/:name/authorize.
func (h *ConnectionHandler) Authorize(c *gin.Context) {
	result, err := h.Flow.Authorize(c.Request.Context(), middleware.ScopeFrom(c), c.Param("name"), requestBaseURL(c.Request))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Cancel handles POST /oauth/connections/:name/cancel.
func (h *ConnectionHandler) Cancel(c *gin.Context) {
	if err := h.Flow.Cancel(c.Request.Context(), middleware.ScopeFrom(c), c.Param("name")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshOne handles POST /oauth/connections/:name/refresh.
func (h *ConnectionHandler) RefreshOne(c *gin.Context) {
	conn, err := h.Refresh.RefreshOne(c.Request.Context(), middleware.ScopeFrom(c), c.Param("name"), middleware.ActorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, maskConnection(conn))
}

// Callback handles POST /oauth/callback/:name. Public endpoint: the
// provider's browser redirect lands on a UI page that forwards code and
// state here. Domain failures from the exchange come back as HTTP 200 with
// success=false so the UI can render them; only infrastructure errors 5xx.
func (h *ConnectionHandler) Callback(c *gin.Context) {
	var req struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, domain.Validation("invalid request body: %v", err))
		return
	}

	result, err := h.Flow.Callback(c.Request.Context(), c.Param("name"), req.Code, req.State)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetCredentials handles GET /oauth/credentials/:name.
func (h *ConnectionHandler) GetCredentials(c *gin.Context) {
	resp, err := h.Credentials.GetCredentials(c.Request.Context(), middleware.ScopeFrom(c), c.Param("name"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// JobStatus handles GET /oauth/refresh_job_status.
func (h *ConnectionHandler) JobStatus(c *gin.Context) {
	status, err := h.Refresh.LastJobStatus(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if status == nil {
		c.JSON(http.StatusOK, gin.H{"message": "No refresh job runs yet"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// TriggerJob handles POST /oauth/refresh_job, the operator-invoked batch run.
func (h *ConnectionHandler) TriggerJob(c *gin.Context) {
	var req struct {
		ThresholdMinutes int `json:"threshold_minutes"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, h.logger, domain.Validation("invalid request body: %v", err))
			return
		}
	}

	status, err := h.Refresh.RunBatchJob(c.Request.Context(), domain.TriggerManual, middleware.ActorFrom(c),
		time.Duration(req.ThresholdMinutes)*time.Minute)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
