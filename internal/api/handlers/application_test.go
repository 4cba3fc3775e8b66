package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visatrack/visatrack/internal/database/models"
)

type submission struct {
	applicationID string
	referenceCode string
	uniqueCode    string
}

func applicationBody(passportNumber string) map[string]interface{} {
	return map[string]interface{}{
		"full_name":        "Jane Traveler",
		"gender":           "female",
		"passport_number":  passportNumber,
		"date_of_birth":    "1990-04-12",
		"nationality":      "Estonian",
		"address_line1":    "12 Harbor Street",
		"city":             "Tallinn",
		"country":          "Estonia",
		"visa_type":        "tourist",
		"purpose_of_visit": "Vacation",
		"contact_email":    "jane@example.com",
		"contact_phone":    "+372 5555 5555",
		"terms_accepted":   true,
	}
}

// submitApplication submits a valid application and returns the issued codes
func (e *testEnv) submitApplication(t *testing.T, passportNumber string) submission {
	t.Helper()
	w, resp := e.doJSON(t, http.MethodPost, "/api/v1/applications", applicationBody(passportNumber), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	s := submission{
		applicationID: resp["application_id"].(string),
		referenceCode: resp["reference_code"].(string),
	}
	if code, ok := resp["unique_code"].(string); ok {
		s.uniqueCode = code
	}
	return s
}

// applicantLogin logs an applicant in and returns session and CSRF tokens
func (e *testEnv) applicantLogin(t *testing.T, passportNumber, uniqueCode string) (token, csrfToken string) {
	t.Helper()
	w, resp := e.doJSON(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"passport_number": passportNumber,
		"unique_code":     uniqueCode,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	return resp["token"].(string), resp["csrf_token"].(string)
}

func TestApplicationHandler_Submit(t *testing.T) {
	env := newTestEnv(t)

	t.Run("First submission issues codes", func(t *testing.T) {
		w, resp := env.doJSON(t, http.MethodPost, "/api/v1/applications", applicationBody("P1111111"), nil)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Len(t, resp["unique_code"], 10)
		assert.Len(t, resp["reference_code"], 12)
		assert.Equal(t, models.StatusSubmitted, resp["status"])
		assert.NotEmpty(t, resp["application_id"])
	})

	t.Run("Repeat submission omits the unique code", func(t *testing.T) {
		env.submitApplication(t, "P2222222")

		w, resp := env.doJSON(t, http.MethodPost, "/api/v1/applications", applicationBody("P2222222"), nil)
		assert.Equal(t, http.StatusCreated, w.Code)
		_, hasCode := resp["unique_code"]
		assert.False(t, hasCode)
	})

	t.Run("Missing required field rejected by binding", func(t *testing.T) {
		body := applicationBody("P3333333")
		delete(body, "full_name")

		w, _ := env.doJSON(t, http.MethodPost, "/api/v1/applications", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Invalid email rejected", func(t *testing.T) {
		body := applicationBody("P3333333")
		body["contact_email"] = "not-an-email"

		w, _ := env.doJSON(t, http.MethodPost, "/api/v1/applications", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Terms not accepted rejected", func(t *testing.T) {
		body := applicationBody("P3333333")
		body["terms_accepted"] = false

		w, resp := env.doJSON(t, http.MethodPost, "/api/v1/applications", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, resp["error"], "terms")
	})
}

func TestApplicationHandler_ApplicantAccess(t *testing.T) {
	env := newTestEnv(t)

	mine := env.submitApplication(t, "P4444444")
	other := env.submitApplication(t, "P5555555")
	token, _ := env.applicantLogin(t, "P4444444", mine.uniqueCode)
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	t.Run("Lists own applications", func(t *testing.T) {
		w, resp := env.doJSON(t, http.MethodGet, "/api/v1/applications", nil, authHeader)
		assert.Equal(t, http.StatusOK, w.Code)

		apps := resp["applications"].([]interface{})
		require.Len(t, apps, 1)
		app := apps[0].(map[string]interface{})
		assert.Equal(t, mine.referenceCode, app["reference_code"])
		// Decrypted PII comes back in plaintext
		assert.Equal(t, "Jane Traveler", app["full_name"])
	})

	t.Run("Reads own application with history", func(t *testing.T) {
		w, resp := env.doJSON(t, http.MethodGet, "/api/v1/applications/"+mine.applicationID, nil, authHeader)
		assert.Equal(t, http.StatusOK, w.Code)

		app := resp["application"].(map[string]interface{})
		assert.Equal(t, models.StatusSubmitted, app["current_status"])

		history := resp["history"].([]interface{})
		require.Len(t, history, 1)
	})

	t.Run("Cannot read another applicant's application", func(t *testing.T) {
		w, _ := env.doJSON(t, http.MethodGet, "/api/v1/applications/"+other.applicationID, nil, authHeader)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Unknown application is 404", func(t *testing.T) {
		w, _ := env.doJSON(t, http.MethodGet, "/api/v1/applications/no-such-id", nil, authHeader)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Cannot reach admin listing", func(t *testing.T) {
		w, _ := env.doJSON(t, http.MethodGet, "/api/v1/admin/applications", nil, authHeader)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestApplicationHandler_AdminList(t *testing.T) {
	env := newTestEnv(t)
	env.performSetup(t, "admin", "adminpass123")
	token, csrfToken := env.adminLogin(t, "admin", "adminpass123")
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"X-XSRF-TOKEN":  csrfToken,
	}

	first := env.submitApplication(t, "P6666661")
	env.submitApplication(t, "P6666662")
	env.submitApplication(t, "P6666663")

	t.Run("Lists all applications with counts", func(t *testing.T) {
		w, resp := env.doJSON(t, http.MethodGet, "/api/v1/admin/applications", nil, headers)
		assert.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, float64(3), resp["total"])
		counts := resp["status_counts"].(map[string]interface{})
		assert.Equal(t, float64(3), counts[models.StatusSubmitted])
	})

	t.Run("Pagination", func(t *testing.T) {
		w, resp := env.doJSON(t, http.MethodGet, "/api/v1/admin/applications?page=2&limit=2", nil, headers)
		assert.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, float64(3), resp["total"])
		apps := resp["applications"].([]interface{})
		assert.Len(t, apps, 1)
	})

	t.Run("Search by reference code", func(t *testing.T) {
		w, resp := env.doJSON(t, http.MethodGet, "/api/v1/admin/applications?search="+first.referenceCode, nil, headers)
		assert.Equal(t, http.StatusOK, w.Code)

		apps := resp["applications"].([]interface{})
		require.Len(t, apps, 1)
		app := apps[0].(map[string]interface{})
		assert.Equal(t, first.referenceCode, app["reference_code"])
	})

	t.Run("Invalid status filter rejected", func(t *testing.T) {
		w, _ := env.doJSON(t, http.MethodGet, "/api/v1/admin/applications?status=Pending", nil, headers)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestApplicationHandler_UpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	env.performSetup(t, "admin", "adminpass123")
	token, csrfToken := env.adminLogin(t, "admin", "adminpass123")
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"X-XSRF-TOKEN":  csrfToken,
	}

	target := env.submitApplication(t, "P8888888")
	path := "/api/v1/admin/applications/" + target.applicationID + "/status"

	t.Run("Valid update appends history", func(t *testing.T) {
		w, me := env.doJSON(t, http.MethodGet, "/api/v1/auth/me", nil, headers)
		require.Equal(t, http.StatusOK, w.Code)
		adminID := me["identity_id"].(string)

		w, resp := env.doJSON(t, http.MethodPut, path, map[string]string{
			"status": models.StatusUnderReview,
			"notes":  "Assigned to officer",
		}, headers)

		assert.Equal(t, http.StatusOK, w.Code)
		app := resp["application"].(map[string]interface{})
		assert.Equal(t, models.StatusUnderReview, app["current_status"])

		history := resp["history"].([]interface{})
		require.Len(t, history, 2)
		newest := history[0].(map[string]interface{})
		assert.Equal(t, models.StatusUnderReview, newest["status"])

		// History rows reference the acting identity, not its username
		entries, err := env.db.GetStatusHistory(target.applicationID)
		require.NoError(t, err)
		require.True(t, entries[0].UpdatedBy.Valid)
		assert.Equal(t, adminID, entries[0].UpdatedBy.String)
	})

	t.Run("Invalid status rejected", func(t *testing.T) {
		w, _ := env.doJSON(t, http.MethodPut, path, map[string]string{
			"status": "Archived",
		}, headers)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Unknown application is 404", func(t *testing.T) {
		w, _ := env.doJSON(t, http.MethodPut, "/api/v1/admin/applications/no-such-id/status", map[string]string{
			"status": models.StatusApproved,
		}, headers)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Update without CSRF token rejected", func(t *testing.T) {
		w, _ := env.doJSON(t, http.MethodPut, path, map[string]string{
			"status": models.StatusApproved,
		}, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Applicant cannot update status", func(t *testing.T) {
		applicantToken, applicantCSRF := env.applicantLogin(t, "P8888888", target.uniqueCode)
		w, _ := env.doJSON(t, http.MethodPut, path, map[string]string{
			"status": models.StatusApproved,
		}, map[string]string{
			"Authorization": "Bearer " + applicantToken,
			"X-XSRF-TOKEN":  applicantCSRF,
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
