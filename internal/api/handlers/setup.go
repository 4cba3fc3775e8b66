// Package handlers provides HTTP request handlers for the visa tracker API.
// It includes handlers for setup, authentication, and visa application
// management, implementing RESTful endpoints with request validation.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/visatrack/visatrack/internal/config"
	"github.com/visatrack/visatrack/internal/csrf"
	"github.com/visatrack/visatrack/internal/service"
	"go.uber.org/zap"
)

// SetupHandler handles setup operations
type SetupHandler struct {
	identityService *service.IdentityService
	csrfStore       *csrf.Store
	cfg             *config.Config
	logger          *zap.Logger
}

// NewSetupHandler creates a new setup handler
func NewSetupHandler(identityService *service.IdentityService, csrfStore *csrf.Store, cfg *config.Config, logger *zap.Logger) *SetupHandler {
	return &SetupHandler{
		identityService: identityService,
		csrfStore:       csrfStore,
		cfg:             cfg,
		logger:          logger,
	}
}

// GetStatus checks if initial setup has been completed.
// @Summary Check setup status
// @Description Check if initial setup has been completed
// @Success 200 {object} map[string]bool
// @Router /api/v1/setup/status [get]
func (h *SetupHandler) GetStatus(c *gin.Context) {
	isComplete, err := h.identityService.IsSetupComplete()
	if err != nil {
		h.logger.Error("Failed to check setup status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check setup status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"setup_complete": isComplete,
	})
}

// SetupRequest represents initial setup request
type SetupRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=8"`
}

// PerformSetup handles initial setup
// @Summary Perform initial setup
// @Description Create the first admin account
// @Accept json
// @Produce json
// @Param request body SetupRequest true "Setup request"
// @Success 200 {object} map[string]string
// @Router /api/v1/setup [post]
func (h *SetupHandler) PerformSetup(c *gin.Context) {
	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.identityService.PerformInitialSetup(&service.SetupRequest{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrSetupComplete) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Setup failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Initial setup completed", zap.String("username", req.Username))

	// The setup response starts a session, so it needs a CSRF token just
	// like a login response
	csrfToken, err := h.csrfStore.Issue(result.Identity.ID)
	if err != nil {
		h.logger.Error("Failed to issue CSRF token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "setup failed"})
		return
	}
	maxAge := int(h.cfg.CSRF.TokenTTL.Seconds())
	c.SetCookie("XSRF-TOKEN", csrfToken, maxAge, "/", "", false, false)

	c.JSON(http.StatusOK, gin.H{
		"message":    "Setup completed successfully",
		"token":      result.Token,
		"csrf_token": csrfToken,
		"username":   result.Identity.NaturalKey,
	})
}
