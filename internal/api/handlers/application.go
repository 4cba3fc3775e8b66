package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/visatrack/visatrack/internal/database"
	"github.com/visatrack/visatrack/internal/service"
	"go.uber.org/zap"
)

// ApplicationHandler handles visa application operations
type ApplicationHandler struct {
	applicationService *service.ApplicationService
	logger             *zap.Logger
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(applicationService *service.ApplicationService, logger *zap.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		applicationService: applicationService,
		logger:             logger,
	}
}

// SubmitApplicationRequest represents a new visa application
type SubmitApplicationRequest struct {
	FullName           string `json:"full_name" binding:"required"`
	Gender             string `json:"gender"`
	PassportNumber     string `json:"passport_number" binding:"required"`
	PassportIssueDate  string `json:"passport_issue_date"`
	PassportExpiryDate string `json:"passport_expiry_date"`
	DateOfBirth        string `json:"date_of_birth" binding:"required"`
	Nationality        string `json:"nationality" binding:"required"`

	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`

	VisaType             string `json:"visa_type" binding:"required"`
	PurposeOfVisit       string `json:"purpose_of_visit"`
	PlannedArrivalDate   string `json:"planned_arrival_date"`
	PlannedDepartureDate string `json:"planned_departure_date"`
	PreviousVisits       bool   `json:"previous_visits"`
	PreviousVisitDetails string `json:"previous_visit_details"`

	ContactEmail string `json:"contact_email" binding:"required,email"`
	ContactPhone string `json:"contact_phone"`

	EmergencyContactName         string `json:"emergency_contact_name"`
	EmergencyContactPhone        string `json:"emergency_contact_phone"`
	EmergencyContactRelationship string `json:"emergency_contact_relationship"`

	HealthDeclaration bool `json:"health_declaration"`
	TermsAccepted     bool `json:"terms_accepted"`
}

// Submit handles a new visa application. This endpoint is public; submitting
// is how an applicant first gets an account.
// @Summary Submit visa application
// @Accept json
// @Produce json
// @Param request body SubmitApplicationRequest true "Application"
// @Success 201 {object} map[string]string
// @Router /api/v1/applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	var req SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.applicationService.Submit(&service.SubmitRequest{
		FullName:           req.FullName,
		Gender:             req.Gender,
		PassportNumber:     req.PassportNumber,
		PassportIssueDate:  req.PassportIssueDate,
		PassportExpiryDate: req.PassportExpiryDate,
		DateOfBirth:        req.DateOfBirth,
		Nationality:        req.Nationality,

		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		Country:      req.Country,

		VisaType:             req.VisaType,
		PurposeOfVisit:       req.PurposeOfVisit,
		PlannedArrivalDate:   req.PlannedArrivalDate,
		PlannedDepartureDate: req.PlannedDepartureDate,
		PreviousVisits:       req.PreviousVisits,
		PreviousVisitDetails: req.PreviousVisitDetails,

		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,

		EmergencyContactName:         req.EmergencyContactName,
		EmergencyContactPhone:        req.EmergencyContactPhone,
		EmergencyContactRelationship: req.EmergencyContactRelationship,

		HealthDeclaration: req.HealthDeclaration,
		TermsAccepted:     req.TermsAccepted,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to submit application", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit application"})
		return
	}

	h.logger.Info("Application submitted",
		zap.String("application_id", result.Application.ID),
		zap.String("reference_code", result.ReferenceCode),
	)

	response := gin.H{
		"application_id": result.Application.ID,
		"reference_code": result.ReferenceCode,
		"status":         result.Application.CurrentStatus,
	}
	// Only present on first-time submissions; it is shown exactly once
	if result.UniqueCode != "" {
		response["unique_code"] = result.UniqueCode
	}

	c.JSON(http.StatusCreated, response)
}

// ListMine returns the authenticated applicant's applications
// @Summary List own applications
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/applications [get]
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	identityID := c.GetString("identity_id")

	apps, err := h.applicationService.ListForIdentity(identityID)
	if err != nil {
		h.logger.Error("Failed to list applications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list applications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

// Get returns a single application with its status history. Applicants can
// only read their own; admins can read any.
// @Summary Get application
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	identityID := c.GetString("identity_id")
	role := c.GetString("role")

	detail, err := h.applicationService.Get(c.Param("id"), identityID, role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		default:
			h.logger.Error("Failed to get application", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get application"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"application": detail.Application,
		"history":     detail.History,
	})
}

// AdminList returns a filtered, paginated listing of all applications
// @Summary List all applications
// @Param status query string false "Filter by status"
// @Param search query string false "Search reference code or passport number"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/applications [get]
func (h *ApplicationHandler) AdminList(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	result, err := h.applicationService.AdminList(database.ApplicationFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to list applications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list applications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"applications":  result.Applications,
		"total":         result.Total,
		"page":          result.Page,
		"limit":         result.Limit,
		"status_counts": result.StatusCounts,
	})
}

// UpdateStatusRequest represents a status update
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

// UpdateStatus appends a status change to an application
// @Summary Update application status
// @Accept json
// @Produce json
// @Param request body UpdateStatusRequest true "Status update"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/applications/{id}/status [put]
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updatedBy := c.GetString("identity_id")

	detail, err := h.applicationService.UpdateStatus(c.Param("id"), req.Status, req.Notes, updatedBy)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
		default:
			h.logger.Error("Failed to update status", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
		}
		return
	}

	h.logger.Info("Application status updated",
		zap.String("application_id", detail.Application.ID),
		zap.String("status", req.Status),
		zap.String("updated_by", updatedBy),
	)

	c.JSON(http.StatusOK, gin.H{
		"application": detail.Application,
		"history":     detail.History,
	})
}
