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

// AuthHandler handles authentication operations
type AuthHandler struct {
	identityService *service.IdentityService
	csrfStore       *csrf.Store
	cfg             *config.Config
	logger          *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(identityService *service.IdentityService, csrfStore *csrf.Store, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		identityService: identityService,
		csrfStore:       csrfStore,
		cfg:             cfg,
		logger:          logger,
	}
}

// ApplicantLoginRequest represents an applicant login request
type ApplicantLoginRequest struct {
	PassportNumber string `json:"passport_number" binding:"required"`
	UniqueCode     string `json:"unique_code" binding:"required"`
}

// AdminLoginRequest represents an admin login request
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ApplicantLogin authenticates an applicant by passport number and unique code
// @Summary Applicant login
// @Description Authenticate applicant and return JWT token
// @Accept json
// @Produce json
// @Param request body ApplicantLoginRequest true "Login credentials"
// @Success 200 {object} map[string]string
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) ApplicantLogin(c *gin.Context) {
	var req ApplicantLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.identityService.ApplicantLogin(req.PassportNumber, req.UniqueCode)
	if err != nil {
		h.loginFailed(c, "applicant", err)
		return
	}

	h.logger.Info("Applicant logged in", zap.String("identity_id", result.Identity.ID))
	h.loginSucceeded(c, result)
}

// AdminLogin authenticates an administrator by username and password
// @Summary Admin login
// @Description Authenticate administrator and return JWT token
// @Accept json
// @Produce json
// @Param request body AdminLoginRequest true "Login credentials"
// @Success 200 {object} map[string]string
// @Router /api/v1/auth/admin/login [post]
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.identityService.AdminLogin(req.Username, req.Password)
	if err != nil {
		h.loginFailed(c, "admin", err)
		return
	}

	h.logger.Info("Admin logged in", zap.String("username", req.Username))
	h.loginSucceeded(c, result)
}

// loginFailed maps login errors to responses. The locked message is distinct;
// everything else collapses to invalid credentials so nothing about the
// account leaks.
func (h *AuthHandler) loginFailed(c *gin.Context, kind string, err error) {
	if errors.Is(err, service.ErrAccountLocked) {
		h.logger.Warn("Login attempt on locked account", zap.String("kind", kind))
		c.JSON(http.StatusLocked, gin.H{"error": service.ErrAccountLocked.Error()})
		return
	}
	if errors.Is(err, service.ErrInvalidCredentials) {
		h.logger.Warn("Login failed", zap.String("kind", kind))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	h.logger.Error("Login error", zap.String("kind", kind), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
}

// loginSucceeded issues a CSRF token alongside the session token. The token
// rides back both in the body and the XSRF-TOKEN cookie so browser and
// non-browser clients can echo it.
func (h *AuthHandler) loginSucceeded(c *gin.Context, result *service.LoginResult) {
	csrfToken, err := h.csrfStore.Issue(result.Identity.ID)
	if err != nil {
		h.logger.Error("Failed to issue CSRF token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	maxAge := int(h.cfg.CSRF.TokenTTL.Seconds())
	c.SetCookie("XSRF-TOKEN", csrfToken, maxAge, "/", "", false, false)

	c.JSON(http.StatusOK, gin.H{
		"token":      result.Token,
		"csrf_token": csrfToken,
		"identity": gin.H{
			"id":   result.Identity.ID,
			"role": result.Identity.Role,
		},
	})
}

// GetCurrentIdentity returns the currently authenticated identity
// @Summary Get current identity
// @Description Get information about the currently authenticated identity
// @Success 200 {object} map[string]string
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) GetCurrentIdentity(c *gin.Context) {
	identityID, _ := c.Get("identity_id")
	naturalKey, _ := c.Get("natural_key")
	role, _ := c.Get("role")

	c.JSON(http.StatusOK, gin.H{
		"identity_id": identityID,
		"natural_key": naturalKey,
		"role":        role,
	})
}

// Logout revokes the identity's CSRF token and clears the cookie. The JWT
// itself stays valid until expiry; clients drop it.
// @Summary Logout
// @Success 200 {object} map[string]string
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	identityID := c.GetString("identity_id")
	h.csrfStore.Purge(identityID)
	c.SetCookie("XSRF-TOKEN", "", -1, "/", "", false, false)

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
