package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visatrack/visatrack/internal/database"
	"github.com/visatrack/visatrack/internal/database/models"
)

// recordingNotifier captures status-change notifications for assertions
type recordingNotifier struct {
	calls chan notification
}

type notification struct {
	referenceCode  string
	previousStatus string
	newStatus      string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{calls: make(chan notification, 10)}
}

func (n *recordingNotifier) StatusChanged(app *models.Application, previousStatus, newStatus string) {
	n.calls <- notification{
		referenceCode:  app.ReferenceCode,
		previousStatus: previousStatus,
		newStatus:      newStatus,
	}
}

func validSubmitRequest(passportNumber string) *SubmitRequest {
	return &SubmitRequest{
		FullName:       "Jane Traveler",
		Gender:         "female",
		PassportNumber: passportNumber,
		DateOfBirth:    "1990-04-12",
		Nationality:    "Estonian",
		AddressLine1:   "12 Harbor Street",
		City:           "Tallinn",
		Country:        "Estonia",
		VisaType:       "tourist",
		PurposeOfVisit: "Vacation",
		ContactEmail:   "jane@example.com",
		ContactPhone:   "+372 5555 5555",
		TermsAccepted:  true,
	}
}

func TestApplicationService_Submit(t *testing.T) {
	db, cfg := setupTestDB(t)
	svc := NewApplicationService(db, cfg, nil)

	t.Run("First application creates an account", func(t *testing.T) {
		result, err := svc.Submit(validSubmitRequest("P1111111"))
		require.NoError(t, err)

		assert.Len(t, result.UniqueCode, UniqueCodeLength)
		assert.Len(t, result.ReferenceCode, ReferenceCodeLength)
		assert.Equal(t, models.StatusSubmitted, result.Application.CurrentStatus)
		assert.NotEmpty(t, result.Application.ID)
		assert.NotEmpty(t, result.Application.IdentityID)

		// The issued code logs in
		idSvc := NewIdentityService(db, cfg)
		login, err := idSvc.ApplicantLogin("P1111111", result.UniqueCode)
		require.NoError(t, err)
		assert.Equal(t, result.Application.IdentityID, login.Identity.ID)

		// Submission seeds the status history
		history, err := db.GetStatusHistory(result.Application.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.StatusSubmitted, history[0].Status)
	})

	t.Run("Repeat applicant reuses the account", func(t *testing.T) {
		first, err := svc.Submit(validSubmitRequest("P2222222"))
		require.NoError(t, err)
		require.NotEmpty(t, first.UniqueCode)

		second, err := svc.Submit(validSubmitRequest("P2222222"))
		require.NoError(t, err)

		assert.Empty(t, second.UniqueCode, "No new code for an existing account")
		assert.Equal(t, first.Application.IdentityID, second.Application.IdentityID)
		assert.NotEqual(t, first.ReferenceCode, second.ReferenceCode)
	})

	t.Run("Passport number is normalized", func(t *testing.T) {
		result, err := svc.Submit(validSubmitRequest("  p3333333 "))
		require.NoError(t, err)
		assert.Equal(t, "P3333333", result.Application.PassportNumber)

		idSvc := NewIdentityService(db, cfg)
		_, err = idSvc.ApplicantLogin("P3333333", result.UniqueCode)
		assert.NoError(t, err)
	})

	t.Run("Missing required fields rejected", func(t *testing.T) {
		req := validSubmitRequest("P4444444")
		req.FullName = ""
		req.ContactEmail = ""

		_, err := svc.Submit(req)
		require.ErrorIs(t, err, ErrInvalidInput)
		assert.Contains(t, err.Error(), "full_name")
		assert.Contains(t, err.Error(), "contact_email")
	})

	t.Run("Terms must be accepted", func(t *testing.T) {
		req := validSubmitRequest("P5555555")
		req.TermsAccepted = false

		_, err := svc.Submit(req)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestApplicationService_Get(t *testing.T) {
	db, cfg := setupTestDB(t)
	svc := NewApplicationService(db, cfg, nil)

	owner, err := svc.Submit(validSubmitRequest("P1010101"))
	require.NoError(t, err)
	other, err := svc.Submit(validSubmitRequest("P2020202"))
	require.NoError(t, err)

	t.Run("Owner reads their application with history", func(t *testing.T) {
		detail, err := svc.Get(owner.Application.ID, owner.Application.IdentityID, models.RoleApplicant)
		require.NoError(t, err)
		assert.Equal(t, owner.ReferenceCode, detail.Application.ReferenceCode)
		assert.Equal(t, "Jane Traveler", detail.Application.FullName)
		require.Len(t, detail.History, 1)
	})

	t.Run("Another applicant is forbidden", func(t *testing.T) {
		_, err := svc.Get(owner.Application.ID, other.Application.IdentityID, models.RoleApplicant)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("Admin reads any application", func(t *testing.T) {
		detail, err := svc.Get(owner.Application.ID, "some-admin-id", models.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, owner.Application.ID, detail.Application.ID)
	})

	t.Run("Unknown application", func(t *testing.T) {
		_, err := svc.Get("no-such-id", owner.Application.IdentityID, models.RoleApplicant)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestApplicationService_ListForIdentity(t *testing.T) {
	db, cfg := setupTestDB(t)
	svc := NewApplicationService(db, cfg, nil)

	first, err := svc.Submit(validSubmitRequest("P3030303"))
	require.NoError(t, err)
	_, err = svc.Submit(validSubmitRequest("P3030303"))
	require.NoError(t, err)
	_, err = svc.Submit(validSubmitRequest("P4040404"))
	require.NoError(t, err)

	apps, err := svc.ListForIdentity(first.Application.IdentityID)
	require.NoError(t, err)
	assert.Len(t, apps, 2)
	for _, app := range apps {
		assert.Equal(t, first.Application.IdentityID, app.IdentityID)
	}
}

func TestApplicationService_AdminList(t *testing.T) {
	db, cfg := setupTestDB(t)
	svc := NewApplicationService(db, cfg, nil)

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(validSubmitRequest(fmt.Sprintf("P600000%d", i)))
		require.NoError(t, err)
	}
	adminID := createAdmin(t, db, "reviewer")
	approved, err := svc.Submit(validSubmitRequest("P6060606"))
	require.NoError(t, err)
	_, err = svc.UpdateStatus(approved.Application.ID, models.StatusApproved, "", adminID)
	require.NoError(t, err)

	t.Run("Unfiltered list with counts", func(t *testing.T) {
		result, err := svc.AdminList(database.ApplicationFilter{})
		require.NoError(t, err)
		assert.Equal(t, 4, result.Total)
		assert.Equal(t, 3, result.StatusCounts[models.StatusSubmitted])
		assert.Equal(t, 1, result.StatusCounts[models.StatusApproved])
	})

	t.Run("Filter by status", func(t *testing.T) {
		result, err := svc.AdminList(database.ApplicationFilter{Status: models.StatusApproved})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Total)
		require.Len(t, result.Applications, 1)
		assert.Equal(t, approved.Application.ID, result.Applications[0].ID)
	})

	t.Run("Invalid status filter rejected", func(t *testing.T) {
		_, err := svc.AdminList(database.ApplicationFilter{Status: "Pending"})
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("Pagination", func(t *testing.T) {
		result, err := svc.AdminList(database.ApplicationFilter{Page: 2, Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, 4, result.Total)
		assert.Len(t, result.Applications, 1)
		assert.Equal(t, 2, result.Page)
		assert.Equal(t, 3, result.Limit)
	})
}

func TestApplicationService_UpdateStatus(t *testing.T) {
	db, cfg := setupTestDB(t)
	notifier := newRecordingNotifier()
	svc := NewApplicationService(db, cfg, notifier)

	adminID := createAdmin(t, db, "reviewer")
	submitted, err := svc.Submit(validSubmitRequest("P7070707"))
	require.NoError(t, err)
	appID := submitted.Application.ID

	t.Run("Appends history attributed to the acting identity", func(t *testing.T) {
		detail, err := svc.UpdateStatus(appID, models.StatusUnderReview, "Assigned to officer", adminID)
		require.NoError(t, err)

		assert.Equal(t, models.StatusUnderReview, detail.Application.CurrentStatus)
		require.Len(t, detail.History, 2)
		assert.Equal(t, models.StatusUnderReview, detail.History[0].Status)
		assert.Equal(t, models.StatusSubmitted, detail.History[1].Status)
		require.True(t, detail.History[0].UpdatedBy.Valid)
		assert.Equal(t, adminID, detail.History[0].UpdatedBy.String)

		select {
		case n := <-notifier.calls:
			assert.Equal(t, submitted.ReferenceCode, n.referenceCode)
			assert.Equal(t, models.StatusSubmitted, n.previousStatus)
			assert.Equal(t, models.StatusUnderReview, n.newStatus)
		case <-time.After(time.Second):
			t.Fatal("expected a notification")
		}
	})

	t.Run("Unchanged status still recorded but not notified", func(t *testing.T) {
		detail, err := svc.UpdateStatus(appID, models.StatusUnderReview, "Still reviewing", adminID)
		require.NoError(t, err)
		assert.Len(t, detail.History, 3)

		select {
		case n := <-notifier.calls:
			t.Fatalf("unexpected notification: %+v", n)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("Invalid status rejected", func(t *testing.T) {
		_, err := svc.UpdateStatus(appID, "Archived", "", adminID)
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("Unknown application", func(t *testing.T) {
		_, err := svc.UpdateStatus("no-such-id", models.StatusApproved, "", adminID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
