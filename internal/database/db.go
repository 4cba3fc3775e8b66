// Package database provides database connection management, migrations, and
// data access for the visa tracker. It is also the encryption boundary for
// applicant PII: sensitive application fields are encrypted when written and
// decrypted when read, so encryption stays visible at the storage edge
// instead of being hidden behind field accessors.
package database

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/visatrack/visatrack/internal/config"
	"github.com/visatrack/visatrack/internal/crypto"
	"github.com/visatrack/visatrack/internal/database/models"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Database represents the database connection and operations
type Database struct {
	db     *sql.DB
	dbType string
	cipher *crypto.FieldCipher
}

// New creates a new database connection. The field cipher is applied to
// sensitive application columns on every write and read.
func New(cfg *config.Config, cipher *crypto.FieldCipher) (*Database, error) {
	var db *sql.DB
	var err error

	switch cfg.Database.Type {
	case "sqlite":
		db, err = sql.Open("sqlite3", cfg.Database.SQLite.Path+"?_foreign_keys=on")
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		// SQLite only allows one writer at a time
		db.SetMaxOpenConns(1)
	case "postgres":
		db, err = sql.Open("postgres", cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{
		db:     db,
		dbType: cfg.Database.Type,
		cipher: cipher,
	}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	var migrationFiles []string
	if d.dbType == "postgres" {
		migrationFiles = []string{
			"migrations/000001_init_schema.postgres.up.sql",
		}
	} else {
		migrationFiles = []string{
			"migrations/000001_init_schema.up.sql",
		}
	}

	for _, migrationFile := range migrationFiles {
		content, err := migrationsFS.ReadFile(migrationFile)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", migrationFile, err)
		}

		// Remove comments and split into statements
		var statements []string
		var currentStmt strings.Builder

		for _, line := range strings.Split(string(content), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "--") || line == "" {
				continue
			}

			currentStmt.WriteString(line)
			currentStmt.WriteString("\n")

			if strings.HasSuffix(line, ";") {
				stmt := strings.TrimSpace(currentStmt.String())
				if stmt != "" {
					statements = append(statements, stmt)
				}
				currentStmt.Reset()
			}
		}

		for _, stmt := range statements {
			if _, err := d.db.Exec(stmt); err != nil {
				if !strings.Contains(err.Error(), "already exists") {
					return fmt.Errorf("migration %s failed: %w\nStatement: %s", migrationFile, err, stmt)
				}
			}
		}
	}

	return nil
}

// DB returns the underlying database connection for direct queries
func (d *Database) DB() *sql.DB {
	return d.db
}

// Identity operations

// CreateIdentity creates a new identity
func (d *Database) CreateIdentity(identity *models.Identity) error {
	query := `INSERT INTO identities (id, role, natural_key, secret_hash, login_attempts, lock_until, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	if d.dbType == "postgres" {
		query = `INSERT INTO identities (id, role, natural_key, secret_hash, login_attempts, lock_until, created_at)
		         VALUES ($1, $2, $3, $4, $5, $6, $7)`
	}

	_, err := d.db.Exec(query,
		identity.ID, identity.Role, identity.NaturalKey, identity.SecretHash,
		identity.LoginAttempts, identity.LockUntil, identity.CreatedAt,
	)
	return err
}

// GetIdentityByID retrieves an identity by ID. The secret hash is not
// selected; it is only available through GetIdentityForLogin.
func (d *Database) GetIdentityByID(id string) (*models.Identity, error) {
	query := `SELECT id, role, natural_key, login_attempts, lock_until, created_at
	          FROM identities WHERE id = ?`
	if d.dbType == "postgres" {
		query = `SELECT id, role, natural_key, login_attempts, lock_until, created_at
		         FROM identities WHERE id = $1`
	}

	var identity models.Identity
	err := d.db.QueryRow(query, id).Scan(
		&identity.ID, &identity.Role, &identity.NaturalKey,
		&identity.LoginAttempts, &identity.LockUntil, &identity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// GetIdentityByNaturalKey retrieves an identity by role and natural key
// without the secret hash.
func (d *Database) GetIdentityByNaturalKey(role, naturalKey string) (*models.Identity, error) {
	query := `SELECT id, role, natural_key, login_attempts, lock_until, created_at
	          FROM identities WHERE role = ? AND natural_key = ?`
	if d.dbType == "postgres" {
		query = `SELECT id, role, natural_key, login_attempts, lock_until, created_at
		         FROM identities WHERE role = $1 AND natural_key = $2`
	}

	var identity models.Identity
	err := d.db.QueryRow(query, role, naturalKey).Scan(
		&identity.ID, &identity.Role, &identity.NaturalKey,
		&identity.LoginAttempts, &identity.LockUntil, &identity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// GetIdentityForLogin retrieves an identity by role and natural key,
// including the secret hash needed for credential verification.
func (d *Database) GetIdentityForLogin(role, naturalKey string) (*models.Identity, error) {
	query := `SELECT id, role, natural_key, secret_hash, login_attempts, lock_until, created_at
	          FROM identities WHERE role = ? AND natural_key = ?`
	if d.dbType == "postgres" {
		query = `SELECT id, role, natural_key, secret_hash, login_attempts, lock_until, created_at
		         FROM identities WHERE role = $1 AND natural_key = $2`
	}

	var identity models.Identity
	err := d.db.QueryRow(query, role, naturalKey).Scan(
		&identity.ID, &identity.Role, &identity.NaturalKey, &identity.SecretHash,
		&identity.LoginAttempts, &identity.LockUntil, &identity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// RecordFailedLogin increments an identity's failed-attempt counter and sets
// the lock expiry once the threshold is reached. The increment happens in a
// single UPDATE so concurrent failures for the same identity cannot lose
// updates and race past the threshold. It returns the counter after the
// increment.
func (d *Database) RecordFailedLogin(id string, threshold int, lockUntil time.Time) (int, error) {
	query := `UPDATE identities
	          SET login_attempts = login_attempts + 1,
	              lock_until = CASE WHEN login_attempts + 1 >= ? THEN ? ELSE lock_until END
	          WHERE id = ?
	          RETURNING login_attempts`
	if d.dbType == "postgres" {
		query = `UPDATE identities
		         SET login_attempts = login_attempts + 1,
		             lock_until = CASE WHEN login_attempts + 1 >= $1 THEN $2 ELSE lock_until END
		         WHERE id = $3
		         RETURNING login_attempts`
	}

	var attempts int
	err := d.db.QueryRow(query, threshold, lockUntil, id).Scan(&attempts)
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

// ResetLoginAttempts clears an identity's failed-attempt counter and lock
// after a successful authentication.
func (d *Database) ResetLoginAttempts(id string) error {
	query := `UPDATE identities SET login_attempts = 0, lock_until = NULL WHERE id = ?`
	if d.dbType == "postgres" {
		query = `UPDATE identities SET login_attempts = 0, lock_until = NULL WHERE id = $1`
	}

	_, err := d.db.Exec(query, id)
	return err
}

// CountAdmins returns the number of admin identities
func (d *Database) CountAdmins() (int, error) {
	query := `SELECT COUNT(*) FROM identities WHERE role = ?`
	if d.dbType == "postgres" {
		query = `SELECT COUNT(*) FROM identities WHERE role = $1`
	}

	var count int
	err := d.db.QueryRow(query, models.RoleAdmin).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Application operations

const applicationColumns = `id, identity_id, reference_code, current_status,
	full_name, gender, passport_number, passport_issue_date, passport_expiry_date,
	date_of_birth, nationality,
	address_line1, address_line2, city, state, postal_code, country,
	visa_type, purpose_of_visit, planned_arrival_date, planned_departure_date,
	previous_visits, previous_visit_details,
	contact_email, contact_phone,
	emergency_contact_name, emergency_contact_phone, emergency_contact_relationship,
	health_declaration, terms_accepted, created_at`

// SubmitApplication stores a new application, its owning identity (when the
// identity is created by this submission), and the initial status entry in a
// single transaction. A failure anywhere leaves no partial state behind.
func (d *Database) SubmitApplication(newIdentity *models.Identity, app *models.Application, initialNote string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if newIdentity != nil {
		query := `INSERT INTO identities (id, role, natural_key, secret_hash, login_attempts, lock_until, created_at)
		          VALUES (?, ?, ?, ?, ?, ?, ?)`
		if d.dbType == "postgres" {
			query = `INSERT INTO identities (id, role, natural_key, secret_hash, login_attempts, lock_until, created_at)
			         VALUES ($1, $2, $3, $4, $5, $6, $7)`
		}
		if _, err := tx.Exec(query,
			newIdentity.ID, newIdentity.Role, newIdentity.NaturalKey, newIdentity.SecretHash,
			newIdentity.LoginAttempts, newIdentity.LockUntil, newIdentity.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create identity: %w", err)
		}
	}

	enc, err := d.encryptApplication(app)
	if err != nil {
		return err
	}

	query := `INSERT INTO applications (` + applicationColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if d.dbType == "postgres" {
		query = `INSERT INTO applications (` + applicationColumns + `)
		         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		                 $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`
	}
	if _, err := tx.Exec(query,
		enc.ID, enc.IdentityID, enc.ReferenceCode, enc.CurrentStatus,
		enc.FullName, enc.Gender, enc.PassportNumber, enc.PassportIssueDate, enc.PassportExpiryDate,
		enc.DateOfBirth, enc.Nationality,
		enc.AddressLine1, enc.AddressLine2, enc.City, enc.State, enc.PostalCode, enc.Country,
		enc.VisaType, enc.PurposeOfVisit, enc.PlannedArrivalDate, enc.PlannedDepartureDate,
		enc.PreviousVisits, enc.PreviousVisitDetails,
		enc.ContactEmail, enc.ContactPhone,
		enc.EmergencyContactName, enc.EmergencyContactPhone, enc.EmergencyContactRelationship,
		enc.HealthDeclaration, enc.TermsAccepted, enc.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if err := d.insertStatusEntry(tx, app.ID, app.CurrentStatus, initialNote, sql.NullString{}); err != nil {
		return err
	}

	return tx.Commit()
}

// GetApplication retrieves an application by ID with PII decrypted
func (d *Database) GetApplication(id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = ?`
	if d.dbType == "postgres" {
		query = `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	}

	app, err := d.scanApplication(d.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}
	return app, nil
}

// GetApplicationByReference retrieves an application by its public reference code
func (d *Database) GetApplicationByReference(referenceCode string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE reference_code = ?`
	if d.dbType == "postgres" {
		query = `SELECT ` + applicationColumns + ` FROM applications WHERE reference_code = $1`
	}

	app, err := d.scanApplication(d.db.QueryRow(query, referenceCode))
	if err != nil {
		return nil, err
	}
	return app, nil
}

// ReferenceCodeExists reports whether a reference code is already taken
func (d *Database) ReferenceCodeExists(referenceCode string) (bool, error) {
	query := `SELECT COUNT(*) FROM applications WHERE reference_code = ?`
	if d.dbType == "postgres" {
		query = `SELECT COUNT(*) FROM applications WHERE reference_code = $1`
	}

	var count int
	if err := d.db.QueryRow(query, referenceCode).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListApplicationsByIdentity retrieves all applications owned by an identity,
// newest first.
func (d *Database) ListApplicationsByIdentity(identityID string) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE identity_id = ? ORDER BY created_at DESC`
	if d.dbType == "postgres" {
		query = `SELECT ` + applicationColumns + ` FROM applications WHERE identity_id = $1 ORDER BY created_at DESC`
	}

	rows, err := d.db.Query(query, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return d.scanApplications(rows)
}

// ApplicationFilter narrows and pages the admin application listing. Search
// matches the public reference code or the owner's passport number; encrypted
// columns cannot be matched directly.
type ApplicationFilter struct {
	Status string
	Search string
	Page   int
	Limit  int
}

// DefaultPageSize is the listing page size when none is requested
const DefaultPageSize = 10

// ListApplications retrieves applications for the admin dashboard with
// filtering and pagination, newest first. It returns the page of results and
// the total count matching the filter.
func (d *Database) ListApplications(filter ApplicationFilter) ([]*models.Application, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = DefaultPageSize
	}

	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "a.current_status = ?")
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(a.reference_code LIKE ? OR i.natural_key LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := `SELECT COUNT(*) FROM applications a JOIN identities i ON i.id = a.identity_id` + where

	var total int
	if err := d.db.QueryRow(d.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + qualifyApplicationColumns("a") + ` FROM applications a JOIN identities i ON i.id = a.identity_id` +
		where + ` ORDER BY a.created_at DESC LIMIT ? OFFSET ?`
	listArgs := append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := d.db.Query(d.rebind(listQuery), listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	apps, err := d.scanApplications(rows)
	if err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

// CountApplicationsByStatus returns the number of applications per current status
func (d *Database) CountApplicationsByStatus() (map[string]int, error) {
	rows, err := d.db.Query(`SELECT current_status, COUNT(*) FROM applications GROUP BY current_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Status history operations

// AppendStatus appends a new entry to an application's status history and
// updates the denormalized current status, in one transaction. The history is
// append-only; existing entries are never modified. It returns the previous
// status.
func (d *Database) AppendStatus(applicationID, status, notes string, updatedBy string) (string, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := `SELECT current_status FROM applications WHERE id = ?`
	updateQuery := `UPDATE applications SET current_status = ? WHERE id = ?`
	if d.dbType == "postgres" {
		selectQuery = `SELECT current_status FROM applications WHERE id = $1`
		updateQuery = `UPDATE applications SET current_status = $1 WHERE id = $2`
	}

	var previous string
	if err := tx.QueryRow(selectQuery, applicationID).Scan(&previous); err != nil {
		return "", err
	}

	if _, err := tx.Exec(updateQuery, status, applicationID); err != nil {
		return "", fmt.Errorf("failed to update status: %w", err)
	}

	actor := sql.NullString{String: updatedBy, Valid: updatedBy != ""}
	if err := d.insertStatusEntry(tx, applicationID, status, notes, actor); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return previous, nil
}

// GetStatusHistory retrieves an application's status history, newest first
func (d *Database) GetStatusHistory(applicationID string) ([]*models.StatusEntry, error) {
	query := `SELECT id, application_id, status, notes, updated_by, created_at
	          FROM status_history WHERE application_id = ?
	          ORDER BY created_at DESC, id DESC`
	if d.dbType == "postgres" {
		query = `SELECT id, application_id, status, notes, updated_by, created_at
		         FROM status_history WHERE application_id = $1
		         ORDER BY created_at DESC, id DESC`
	}

	rows, err := d.db.Query(query, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.StatusEntry
	for rows.Next() {
		var entry models.StatusEntry
		if err := rows.Scan(
			&entry.ID, &entry.ApplicationID, &entry.Status,
			&entry.Notes, &entry.UpdatedBy, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (d *Database) insertStatusEntry(tx *sql.Tx, applicationID, status, notes string, updatedBy sql.NullString) error {
	query := `INSERT INTO status_history (application_id, status, notes, updated_by, created_at)
	          VALUES (?, ?, ?, ?, ?)`
	if d.dbType == "postgres" {
		query = `INSERT INTO status_history (application_id, status, notes, updated_by, created_at)
		         VALUES ($1, $2, $3, $4, $5)`
	}

	if _, err := tx.Exec(query, applicationID, status, notes, updatedBy, time.Now()); err != nil {
		return fmt.Errorf("failed to append status entry: %w", err)
	}
	return nil
}

// qualifyApplicationColumns prefixes every application column with a table
// alias so joined queries stay unambiguous.
func qualifyApplicationColumns(alias string) string {
	parts := strings.Split(applicationColumns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// rebind converts ?-style placeholders to $n for postgres
func (d *Database) rebind(query string) string {
	if d.dbType != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PII boundary

// encryptedFields returns pointers to the application fields that are stored
// encrypted. Matches the sensitive subset: identity documents, dates,
// address, contacts, and free-text travel details. Enumeration values
// (gender, nationality, country, visa type, purpose) stay queryable.
func encryptedFields(app *models.Application) []*string {
	return []*string{
		&app.FullName,
		&app.PassportNumber,
		&app.PassportIssueDate,
		&app.PassportExpiryDate,
		&app.DateOfBirth,
		&app.AddressLine1,
		&app.AddressLine2,
		&app.City,
		&app.State,
		&app.PostalCode,
		&app.PlannedArrivalDate,
		&app.PlannedDepartureDate,
		&app.PreviousVisitDetails,
		&app.ContactEmail,
		&app.ContactPhone,
		&app.EmergencyContactName,
		&app.EmergencyContactPhone,
		&app.EmergencyContactRelationship,
	}
}

func (d *Database) encryptApplication(app *models.Application) (*models.Application, error) {
	enc := *app
	for _, field := range encryptedFields(&enc) {
		envelope, err := d.cipher.Encrypt(*field)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt application field: %w", err)
		}
		*field = envelope
	}
	return &enc, nil
}

func (d *Database) decryptApplication(app *models.Application) {
	for _, field := range encryptedFields(app) {
		*field = d.cipher.Decrypt(*field)
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanApplication(row rowScanner) (*models.Application, error) {
	var app models.Application
	err := row.Scan(
		&app.ID, &app.IdentityID, &app.ReferenceCode, &app.CurrentStatus,
		&app.FullName, &app.Gender, &app.PassportNumber, &app.PassportIssueDate, &app.PassportExpiryDate,
		&app.DateOfBirth, &app.Nationality,
		&app.AddressLine1, &app.AddressLine2, &app.City, &app.State, &app.PostalCode, &app.Country,
		&app.VisaType, &app.PurposeOfVisit, &app.PlannedArrivalDate, &app.PlannedDepartureDate,
		&app.PreviousVisits, &app.PreviousVisitDetails,
		&app.ContactEmail, &app.ContactPhone,
		&app.EmergencyContactName, &app.EmergencyContactPhone, &app.EmergencyContactRelationship,
		&app.HealthDeclaration, &app.TermsAccepted, &app.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.decryptApplication(&app)
	return &app, nil
}

func (d *Database) scanApplications(rows *sql.Rows) ([]*models.Application, error) {
	var apps []*models.Application
	for rows.Next() {
		app, err := d.scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
