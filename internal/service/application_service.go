package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/visatrack/visatrack/internal/auth"
	"github.com/visatrack/visatrack/internal/config"
	"github.com/visatrack/visatrack/internal/database"
	"github.com/visatrack/visatrack/internal/database/models"
	"github.com/visatrack/visatrack/internal/notify"
)

const (
	// UniqueCodeLength is the length of the login code issued to applicants
	UniqueCodeLength = 10
	// ReferenceCodeLength is the length of an application's public reference
	ReferenceCodeLength = 12
	// referenceCodeRetries bounds the collision retry loop on submission
	referenceCodeRetries = 5
)

// Validation errors for application submission and status updates
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidStatus = errors.New("invalid status")
)

// ApplicationService handles visa application operations
type ApplicationService struct {
	db       *database.Database
	cfg      *config.Config
	notifier notify.Notifier
}

// NewApplicationService creates a new application service
func NewApplicationService(db *database.Database, cfg *config.Config, notifier notify.Notifier) *ApplicationService {
	return &ApplicationService{
		db:       db,
		cfg:      cfg,
		notifier: notifier,
	}
}

// SubmitRequest carries the applicant-provided fields of a new application
type SubmitRequest struct {
	FullName           string
	Gender             string
	PassportNumber     string
	PassportIssueDate  string
	PassportExpiryDate string
	DateOfBirth        string
	Nationality        string

	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	PostalCode   string
	Country      string

	VisaType             string
	PurposeOfVisit       string
	PlannedArrivalDate   string
	PlannedDepartureDate string
	PreviousVisits       bool
	PreviousVisitDetails string

	ContactEmail string
	ContactPhone string

	EmergencyContactName         string
	EmergencyContactPhone        string
	EmergencyContactRelationship string

	HealthDeclaration bool
	TermsAccepted     bool
}

// SubmitResult contains the created application plus the credentials the
// applicant needs to track it. UniqueCode is only set when a new account was
// created; repeat applicants keep their existing code.
type SubmitResult struct {
	Application   *models.Application
	ReferenceCode string
	UniqueCode    string
}

func (r *SubmitRequest) validate() error {
	required := map[string]string{
		"full_name":       r.FullName,
		"passport_number": r.PassportNumber,
		"date_of_birth":   r.DateOfBirth,
		"nationality":     r.Nationality,
		"visa_type":       r.VisaType,
		"contact_email":   r.ContactEmail,
	}
	var missing []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	if !r.TermsAccepted {
		return fmt.Errorf("%w: terms and conditions must be accepted", ErrInvalidInput)
	}
	return nil
}

// Submit validates and stores a new application. A first-time applicant gets
// an account keyed by passport number with a freshly generated unique code;
// subsequent applications attach to the existing account. The application,
// any new account, and the initial status entry commit in one transaction.
func (s *ApplicationService) Submit(req *SubmitRequest) (*SubmitResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	passportNumber := strings.ToUpper(strings.TrimSpace(req.PassportNumber))

	var newIdentity *models.Identity
	var uniqueCode string

	identity, err := s.db.GetIdentityByNaturalKey(models.RoleApplicant, passportNumber)
	identityID := ""
	switch {
	case err == nil:
		identityID = identity.ID
	case errors.Is(err, sql.ErrNoRows):
		uniqueCode, err = auth.GenerateCode(UniqueCodeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate unique code: %w", err)
		}
		secretHash, err := auth.HashSecret(uniqueCode)
		if err != nil {
			return nil, fmt.Errorf("failed to hash unique code: %w", err)
		}
		newIdentity = &models.Identity{
			ID:         uuid.New().String(),
			Role:       models.RoleApplicant,
			NaturalKey: passportNumber,
			SecretHash: secretHash,
			CreatedAt:  time.Now(),
		}
		identityID = newIdentity.ID
	default:
		return nil, fmt.Errorf("failed to look up applicant: %w", err)
	}

	referenceCode, err := s.generateReferenceCode()
	if err != nil {
		return nil, err
	}

	app := &models.Application{
		ID:            uuid.New().String(),
		IdentityID:    identityID,
		ReferenceCode: referenceCode,
		CurrentStatus: models.StatusSubmitted,

		FullName:           req.FullName,
		Gender:             req.Gender,
		PassportNumber:     passportNumber,
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

		CreatedAt: time.Now(),
	}

	if err := s.db.SubmitApplication(newIdentity, app, "Application received"); err != nil {
		return nil, fmt.Errorf("failed to submit application: %w", err)
	}

	return &SubmitResult{
		Application:   app,
		ReferenceCode: referenceCode,
		UniqueCode:    uniqueCode,
	}, nil
}

// generateReferenceCode produces a reference code not already in use. The
// space is large enough that collisions are vanishingly rare, but the insert
// has a unique constraint as the final arbiter.
func (s *ApplicationService) generateReferenceCode() (string, error) {
	for i := 0; i < referenceCodeRetries; i++ {
		code, err := auth.GenerateCode(ReferenceCodeLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate reference code: %w", err)
		}
		exists, err := s.db.ReferenceCodeExists(code)
		if err != nil {
			return "", fmt.Errorf("failed to check reference code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique reference code")
}

// ApplicationDetail bundles an application with its status history,
// newest entry first.
type ApplicationDetail struct {
	Application *models.Application
	History     []*models.StatusEntry
}

// Get returns an application with history, enforcing that applicants only see
// their own records. Admins can read any application.
func (s *ApplicationService) Get(applicationID, requesterID, requesterRole string) (*ApplicationDetail, error) {
	app, err := s.db.GetApplication(applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	if requesterRole != models.RoleAdmin && app.IdentityID != requesterID {
		return nil, ErrForbidden
	}

	history, err := s.db.GetStatusHistory(applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}

	return &ApplicationDetail{Application: app, History: history}, nil
}

// ListForIdentity returns all applications owned by an identity, newest first
func (s *ApplicationService) ListForIdentity(identityID string) ([]*models.Application, error) {
	apps, err := s.db.ListApplicationsByIdentity(identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

// AdminListResult is one page of applications with the overall status counts
type AdminListResult struct {
	Applications []*models.Application
	Total        int
	Page         int
	Limit        int
	StatusCounts map[string]int
}

// AdminList returns a filtered, paginated page of all applications
func (s *ApplicationService) AdminList(filter database.ApplicationFilter) (*AdminListResult, error) {
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, filter.Status)
	}

	apps, total, err := s.db.ListApplications(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	counts, err := s.db.CountApplicationsByStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = database.DefaultPageSize
	}

	return &AdminListResult{
		Applications: apps,
		Total:        total,
		Page:         page,
		Limit:        limit,
		StatusCounts: counts,
	}, nil
}

// UpdateStatus appends a status entry and notifies the applicant. updatedBy
// is the id of the acting identity; the history row references it. The
// notification is dispatched on its own goroutine and never blocks or fails
// the update.
func (s *ApplicationService) UpdateStatus(applicationID, status, notes, updatedBy string) (*ApplicationDetail, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	previous, err := s.db.AppendStatus(applicationID, status, notes, updatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	app, err := s.db.GetApplication(applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	history, err := s.db.GetStatusHistory(applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}

	if s.notifier != nil && previous != status {
		go s.notifier.StatusChanged(app, previous, status)
	}

	return &ApplicationDetail{Application: app, History: history}, nil
}
