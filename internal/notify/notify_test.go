package notify

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visatrack/visatrack/internal/database/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testApp() *models.Application {
	return &models.Application{
		ReferenceCode: "REFTEST001",
		FullName:      "Jane Traveler",
		ContactEmail:  "jane@example.com",
		ContactPhone:  "+372 5555 5555",
	}
}

func TestEmailNotifier_StatusChanged(t *testing.T) {
	t.Run("Sends email with status transition", func(t *testing.T) {
		logger := zap.NewNop()
		n := NewEmailNotifier("smtp.example.com", 587, "visa@example.com", "user", "pass", logger)

		var gotAddr, gotFrom string
		var gotTo []string
		var gotMsg []byte
		n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			return nil
		}

		n.StatusChanged(testApp(), models.StatusSubmitted, models.StatusUnderReview)

		assert.Equal(t, "smtp.example.com:587", gotAddr)
		assert.Equal(t, "visa@example.com", gotFrom)
		assert.Equal(t, []string{"jane@example.com"}, gotTo)
		assert.Contains(t, string(gotMsg), "REFTEST001")
		assert.Contains(t, string(gotMsg), "Previous Status: Submitted")
		assert.Contains(t, string(gotMsg), "New Status: Under Review")
	})

	t.Run("Delivery failure is logged, not propagated", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		logger := zap.New(core)

		n := NewEmailNotifier("smtp.example.com", 587, "visa@example.com", "", "", logger)
		n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			return errors.New("connection refused")
		}

		// Must not panic or return an error
		n.StatusChanged(testApp(), models.StatusSubmitted, models.StatusRejected)

		logs := recorded.FilterMessage("Failed to send status update email").All()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)
	})

	t.Run("Unconfigured host skips email", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		logger := zap.New(core)

		n := NewEmailNotifier("", 0, "", "", "", logger)
		called := false
		n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			called = true
			return nil
		}

		n.StatusChanged(testApp(), models.StatusSubmitted, models.StatusApproved)

		assert.False(t, called)
		assert.Len(t, recorded.FilterMessage("Email not configured, skipping notification").All(), 1)
	})

	t.Run("No email address skips delivery", func(t *testing.T) {
		logger := zap.NewNop()
		n := NewEmailNotifier("smtp.example.com", 587, "visa@example.com", "", "", logger)
		called := false
		n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			called = true
			return nil
		}

		app := testApp()
		app.ContactEmail = ""
		n.StatusChanged(app, models.StatusSubmitted, models.StatusApproved)

		assert.False(t, called)
	})
}
