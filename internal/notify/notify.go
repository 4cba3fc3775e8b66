// Package notify delivers best-effort status-change notifications to
// applicants. Delivery failures are logged and never propagated; a status
// update must succeed even when the mail server is down.
package notify

import (
	"fmt"
	"net/smtp"

	"github.com/visatrack/visatrack/internal/database/models"
	"go.uber.org/zap"
)

// Notifier dispatches a notification for a status transition
type Notifier interface {
	StatusChanged(app *models.Application, previousStatus, newStatus string)
}

// EmailNotifier sends status updates over SMTP and logs SMS dispatch as a
// placeholder until an SMS provider is integrated.
type EmailNotifier struct {
	host   string
	port   int
	from   string
	user   string
	pass   string
	logger *zap.Logger

	// send is swappable for tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates a notifier. An empty host disables email delivery;
// dispatch then only logs, which keeps development setups working without a
// mail server.
func NewEmailNotifier(host string, port int, from, user, pass string, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{
		host:   host,
		port:   port,
		from:   from,
		user:   user,
		pass:   pass,
		logger: logger,
		send:   smtp.SendMail,
	}
}

// StatusChanged sends an email to the application's contact address and a
// placeholder SMS to its contact phone. Both are best effort.
func (n *EmailNotifier) StatusChanged(app *models.Application, previousStatus, newStatus string) {
	if app.ContactEmail != "" {
		n.sendEmail(app, previousStatus, newStatus)
	}
	if app.ContactPhone != "" {
		// SMS integration pending; log so transitions remain traceable
		n.logger.Info("SMS notification dispatched",
			zap.String("reference_code", app.ReferenceCode),
			zap.String("previous_status", previousStatus),
			zap.String("new_status", newStatus),
		)
	}
}

func (n *EmailNotifier) sendEmail(app *models.Application, previousStatus, newStatus string) {
	if n.host == "" {
		n.logger.Debug("Email not configured, skipping notification",
			zap.String("reference_code", app.ReferenceCode))
		return
	}

	subject := fmt.Sprintf("Visa Application Status Update - %s", app.ReferenceCode)
	body := fmt.Sprintf(
		"Dear %s,\r\n\r\n"+
			"Your visa application with reference number %s has been updated.\r\n\r\n"+
			"Previous Status: %s\r\nNew Status: %s\r\n\r\n"+
			"You can check the details of your application by logging into our portal "+
			"using your passport number and unique code.\r\n\r\n"+
			"Thank you,\r\nVisa Processing Team\r\n",
		app.FullName, app.ReferenceCode, previousStatus, newStatus,
	)

	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		n.from, app.ContactEmail, subject, body,
	))

	var auth smtp.Auth
	if n.user != "" {
		auth = smtp.PlainAuth("", n.user, n.pass, n.host)
	}

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	if err := n.send(addr, auth, n.from, []string{app.ContactEmail}, msg); err != nil {
		n.logger.Error("Failed to send status update email",
			zap.String("reference_code", app.ReferenceCode),
			zap.Error(err),
		)
		return
	}

	n.logger.Info("Status update email sent",
		zap.String("reference_code", app.ReferenceCode),
		zap.String("new_status", newStatus),
	)
}
