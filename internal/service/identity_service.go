// Package service implements the application's business logic on top of the
// database adapter: login and lockout handling, application submission and
// retrieval, and administrative status updates.
package service

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/visatrack/visatrack/internal/auth"
	"github.com/visatrack/visatrack/internal/config"
	"github.com/visatrack/visatrack/internal/database"
	"github.com/visatrack/visatrack/internal/database/models"
)

// Sentinel errors returned by the service layer. Handlers map these to HTTP
// status codes; anything else is an internal error.
var (
	// ErrInvalidCredentials is returned for any credential failure, including
	// unknown accounts, so responses never reveal which part was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned when an account is under a lockout window.
	ErrAccountLocked = errors.New("account temporarily locked due to too many failed login attempts")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller may not access the record.
	ErrForbidden = errors.New("forbidden")
	// ErrSetupComplete is returned when initial setup was already performed.
	ErrSetupComplete = errors.New("setup already complete")
)

// IdentityService handles authentication and account management
type IdentityService struct {
	db  *database.Database
	cfg *config.Config
}

// NewIdentityService creates a new identity service
func NewIdentityService(db *database.Database, cfg *config.Config) *IdentityService {
	return &IdentityService{
		db:  db,
		cfg: cfg,
	}
}

// LoginResult contains the outcome of a successful login
type LoginResult struct {
	Token    string
	Identity *models.Identity
}

// ApplicantLogin authenticates an applicant by passport number and unique code
func (s *IdentityService) ApplicantLogin(passportNumber, uniqueCode string) (*LoginResult, error) {
	return s.login(models.RoleApplicant, passportNumber, uniqueCode)
}

// AdminLogin authenticates an administrator by username and password
func (s *IdentityService) AdminLogin(username, password string) (*LoginResult, error) {
	return s.login(models.RoleAdmin, username, password)
}

// login runs the shared credential check. The lockout state is consulted
// before the secret so a locked account cannot be probed, and every failure
// other than an active lockout collapses into ErrInvalidCredentials.
func (s *IdentityService) login(role, naturalKey, secret string) (*LoginResult, error) {
	identity, err := s.db.GetIdentityForLogin(role, naturalKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	now := time.Now()
	lock := auth.Lockout{Attempts: identity.LoginAttempts}
	if identity.LockUntil.Valid {
		until := identity.LockUntil.Time
		lock.LockUntil = &until
	}
	if lock.Locked(now) {
		return nil, ErrAccountLocked
	}

	if err := auth.VerifySecret(secret, identity.SecretHash); err != nil {
		lockUntil := now.Add(s.cfg.Lockout.Duration)
		if _, err := s.db.RecordFailedLogin(identity.ID, s.cfg.Lockout.Threshold, lockUntil); err != nil {
			return nil, fmt.Errorf("failed to record login attempt: %w", err)
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.db.ResetLoginAttempts(identity.ID); err != nil {
		return nil, fmt.Errorf("failed to reset login attempts: %w", err)
	}

	token, err := auth.GenerateToken(
		identity.ID,
		identity.NaturalKey,
		identity.Role,
		s.cfg.JWT.Secret,
		s.cfg.JWT.Issuer,
		s.cfg.JWT.Expiration,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResult{Token: token, Identity: identity}, nil
}

// GetIdentity returns an identity without its secret hash
func (s *IdentityService) GetIdentity(id string) (*models.Identity, error) {
	identity, err := s.db.GetIdentityByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

// IsSetupComplete reports whether at least one admin account exists
func (s *IdentityService) IsSetupComplete() (bool, error) {
	count, err := s.db.CountAdmins()
	if err != nil {
		return false, fmt.Errorf("failed to count admins: %w", err)
	}
	return count > 0, nil
}

// SetupRequest represents the initial setup request
type SetupRequest struct {
	Username string
	Password string
}

// SetupResponse contains the created admin and a session token
type SetupResponse struct {
	Identity *models.Identity
	Token    string
}

// PerformInitialSetup creates the first admin account. It refuses to run once
// any admin exists.
func (s *IdentityService) PerformInitialSetup(req *SetupRequest) (*SetupResponse, error) {
	complete, err := s.IsSetupComplete()
	if err != nil {
		return nil, err
	}
	if complete {
		return nil, ErrSetupComplete
	}

	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		return nil, fmt.Errorf("weak password: %w", err)
	}

	secretHash, err := auth.HashSecret(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	identity := &models.Identity{
		ID:         uuid.New().String(),
		Role:       models.RoleAdmin,
		NaturalKey: req.Username,
		SecretHash: secretHash,
		CreatedAt:  time.Now(),
	}
	if err := s.db.CreateIdentity(identity); err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	token, err := auth.GenerateToken(
		identity.ID,
		identity.NaturalKey,
		identity.Role,
		s.cfg.JWT.Secret,
		s.cfg.JWT.Issuer,
		s.cfg.JWT.Expiration,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &SetupResponse{Identity: identity, Token: token}, nil
}
