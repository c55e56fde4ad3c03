// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	texttemplate "text/template"

	"github.com/sirupsen/logrus"

	"github.com/homecare/careops-backend/internal/config"
)

type EmailTemplate struct {
	Subject string
	Body    string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

var ErrSMTPNotConfigured = errors.New("smtp host not configured")

// EmailNotifier renders a template per (subject kind, communication kind) and
// delivers it over SMTP.
type EmailNotifier struct {
	email    config.EmailConfig
	baseURL  string
	sendMail sendMailFunc
}

func NewEmailNotifier(cfg *config.Config) *EmailNotifier {
	return &EmailNotifier{
		email:    cfg.Email,
		baseURL:  cfg.Frontend.BaseURL,
		sendMail: smtp.SendMail,
	}
}

func (n *EmailNotifier) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("communication %s has no recipient", msg.CommunicationID)
	}

	tmpl := n.getEmailTemplate(string(msg.SubjectKind) + "." + msg.Kind)

	data := map[string]interface{}{
		"PlatformName": n.email.FromName,
		"ConsoleURL":   n.baseURL,
		"SubjectID":    msg.SubjectID.String(),
		"Event":        msg.Kind,
		"Name":         "",
		"Reason":       "",
	}
	for k, v := range msg.Data {
		data[k] = v
	}

	subject, err := renderSubject(tmpl.Subject, data)
	if err != nil {
		return fmt.Errorf("failed to render email subject: %w", err)
	}

	body, err := n.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return n.sendEmail(ctx, msg.Recipient, subject, body)
}

// Helper methods
func (n *EmailNotifier) sendEmail(ctx context.Context, to, subject, body string) error {
	if n.email.SMTPHost == "" {
		// Left failed so the retry sweep delivers it once SMTP is configured.
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Warn("SMTP not configured, email not sent")
		return ErrSMTPNotConfigured
	}

	auth := smtp.PlainAuth("", n.email.SMTPUsername, n.email.SMTPPassword, n.email.SMTPHost)

	from := n.email.FromEmail
	if n.email.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.email.FromName, n.email.FromEmail)
	}
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", from, to, subject, body))
	addr := fmt.Sprintf("%s:%s", n.email.SMTPHost, n.email.SMTPPort)

	// net/smtp has no context support; give up waiting once ctx expires.
	done := make(chan error, 1)
	go func() {
		done <- n.sendMail(addr, auth, n.email.FromEmail, []string{to}, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", to, ctx.Err())
	}
}

func (n *EmailNotifier) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func renderSubject(templateStr string, data interface{}) (string, error) {
	tmpl, err := texttemplate.New("subject").Option("missingkey=zero").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return strings.TrimSpace(buf.String()), nil
}

func (n *EmailNotifier) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"application.info-requested": {
			Subject: "More information needed for your application",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Name}},</h2>
	<p>We are reviewing your application and need a little more from you:</p>
	<blockquote>{{.Reason}}</blockquote>
	<p>Please upload the requested documents so we can continue.</p>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
		},
		"application.approved": {
			Subject: "Welcome aboard, {{.Name}}",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Your application is approved!</h2>
	<p>Hello {{.Name}},</p>
	<p>All of your documents have been verified and you are now an active provider.</p>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
		},
		"application.rejected": {
			Subject: "Update on your application",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Hello {{.Name}},</p>
	<p>Unfortunately we are unable to approve your application.</p>
	{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
		},
		"patient_survey.approved": {
			Subject: "Your care request has been accepted",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Hello {{.Name}},</p>
	<p>Thank you for completing our intake survey. Our team will reach out to set up your care plan.</p>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
		},
		"patient_survey.rejected": {
			Subject: "Update on your care request",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Hello {{.Name}},</p>
	<p>We are not able to accept your care request at this time.</p>
	{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
	<p>You are welcome to submit a new survey.</p>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
		},
		"subscription.subscription-created": {
			Subject: "Your care plan is active",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Hello {{.Name}},</p>
	<p>Your monthly plan includes {{.NurseAllotment}} nurse visit(s) and {{.CNAAllotment}} CNA visit(s) per period.</p>
	<p>Current period ends {{.PeriodEnd}}.</p>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
		},
	}

	if template, exists := templates[templateType]; exists {
		return template
	}

	// Default template
	return EmailTemplate{
		Subject: "{{.PlatformName}} update",
		Body:    "<p>Hello {{.Name}},</p><p>There is an update on your account: {{.Event}}.</p>",
	}
}
