// Package models defines the data structures for database entities in the
// visa tracker: login identities, visa applications, and the append-only
// status history.
package models

import (
	"database/sql"
	"time"
)

// Identity roles
const (
	RoleApplicant = "applicant"
	RoleAdmin     = "admin"
)

// Application statuses
const (
	StatusSubmitted    = "Submitted"
	StatusUnderReview  = "Under Review"
	StatusDocsRequired = "Additional Documents Required"
	StatusApproved     = "Approved"
	StatusRejected     = "Rejected"
	StatusOnHold       = "On Hold"
)

// Statuses lists every valid application status. The enumeration is fixed and
// carries no inherent ordering; any transition between members is permitted.
var Statuses = []string{
	StatusSubmitted,
	StatusUnderReview,
	StatusDocsRequired,
	StatusApproved,
	StatusRejected,
	StatusOnHold,
}

// ValidStatus reports whether s is a member of the status enumeration.
func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Identity represents a login-capable principal, either an applicant or an
// administrator. The natural key is the passport number for applicants and
// the username for admins; it is unique within the role's namespace. The
// secret hash is only loaded by queries that explicitly request it.
type Identity struct {
	ID            string       `db:"id"`
	Role          string       `db:"role"`
	NaturalKey    string       `db:"natural_key"`
	SecretHash    string       `db:"secret_hash"`
	LoginAttempts int          `db:"login_attempts"`
	LockUntil     sql.NullTime `db:"lock_until"`
	CreatedAt     time.Time    `db:"created_at"`
}

// Application represents one visa request tied to exactly one Identity.
// The sensitive fields are stored encrypted; the database adapter encrypts
// on write and decrypts on read so in-memory values are always plaintext.
type Application struct {
	ID            string `db:"id" json:"id"`
	IdentityID    string `db:"identity_id" json:"identity_id"`
	ReferenceCode string `db:"reference_code" json:"reference_code"`
	CurrentStatus string `db:"current_status" json:"current_status"`

	FullName           string `db:"full_name" json:"full_name"`
	Gender             string `db:"gender" json:"gender"`
	PassportNumber     string `db:"passport_number" json:"passport_number"`
	PassportIssueDate  string `db:"passport_issue_date" json:"passport_issue_date"`
	PassportExpiryDate string `db:"passport_expiry_date" json:"passport_expiry_date"`
	DateOfBirth        string `db:"date_of_birth" json:"date_of_birth"`
	Nationality        string `db:"nationality" json:"nationality"`

	AddressLine1 string `db:"address_line1" json:"address_line1"`
	AddressLine2 string `db:"address_line2" json:"address_line2"`
	City         string `db:"city" json:"city"`
	State        string `db:"state" json:"state"`
	PostalCode   string `db:"postal_code" json:"postal_code"`
	Country      string `db:"country" json:"country"`

	VisaType             string `db:"visa_type" json:"visa_type"`
	PurposeOfVisit       string `db:"purpose_of_visit" json:"purpose_of_visit"`
	PlannedArrivalDate   string `db:"planned_arrival_date" json:"planned_arrival_date"`
	PlannedDepartureDate string `db:"planned_departure_date" json:"planned_departure_date"`
	PreviousVisits       bool   `db:"previous_visits" json:"previous_visits"`
	PreviousVisitDetails string `db:"previous_visit_details" json:"previous_visit_details"`

	ContactEmail string `db:"contact_email" json:"contact_email"`
	ContactPhone string `db:"contact_phone" json:"contact_phone"`

	EmergencyContactName         string `db:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactPhone        string `db:"emergency_contact_phone" json:"emergency_contact_phone"`
	EmergencyContactRelationship string `db:"emergency_contact_relationship" json:"emergency_contact_relationship"`

	HealthDeclaration bool `db:"health_declaration" json:"health_declaration"`
	TermsAccepted     bool `db:"terms_accepted" json:"terms_accepted"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StatusEntry is one record in an application's permanent audit log. Entries
// are only ever appended, never rewritten or removed.
type StatusEntry struct {
	ID            int64          `db:"id" json:"id"`
	ApplicationID string         `db:"application_id" json:"application_id"`
	Status        string         `db:"status" json:"status"`
	Notes         string         `db:"notes" json:"notes"`
	UpdatedBy     sql.NullString `db:"updated_by" json:"updated_by"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}
