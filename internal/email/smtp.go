package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// SMTPEmailService sends emails via SMTP. It works with Mailhog in
// development and any authenticated SMTP relay in production.
type SMTPEmailService struct {
	config    SMTPConfig
	baseURL   string
	templates *template.Template
	logger    *slog.Logger

	// sendMail is smtp.SendMail outside tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPEmailService creates a new SMTP-based email service. baseURL is
// used for links back to the app.
func NewSMTPEmailService(config SMTPConfig, baseURL string, logger *slog.Logger) (*SMTPEmailService, error) {
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}

	templates, err := template.New("email").Funcs(emailTemplateFuncs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	return &SMTPEmailService{
		config:    config,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		templates: templates,
		logger:    logger,
		sendMail:  smtp.SendMail,
	}, nil
}

// =============================================================================
// EmailService Interface Implementation
// =============================================================================

func (s *SMTPEmailService) SendTrialStartedEmail(ctx context.Context, to, name string, expiresAt time.Time) error {
	data := map[string]any{
		"Name":      name,
		"ExpiresAt": expiresAt,
		"AppURL":    s.baseURL,
	}

	htmlBody, err := s.renderTemplate("trial_started.html", data)
	if err != nil {
		return fmt.Errorf("failed to render trial started email template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

Your free trial has started. AI practice, AI chat and unlimited vocabulary
are unlocked until %s.

Start practicing: %s

The TOEIC Prep Team
`, name, formatTime(expiresAt), s.baseURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  "Your TOEIC Prep trial has started",
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

func (s *SMTPEmailService) SendTrialExpiringEmail(ctx context.Context, to, name string, expiresAt time.Time) error {
	pricingURL := s.baseURL + "/pricing"
	data := map[string]any{
		"Name":       name,
		"ExpiresAt":  expiresAt,
		"PricingURL": pricingURL,
	}

	htmlBody, err := s.renderTemplate("trial_expiring.html", data)
	if err != nil {
		return fmt.Errorf("failed to render trial expiring email template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

Your free trial ends on %s. Subscribe to keep AI practice and chat:

%s

The TOEIC Prep Team
`, name, formatTime(expiresAt), pricingURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  "Your TOEIC Prep trial ends soon",
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

func (s *SMTPEmailService) SendExportReadyEmail(ctx context.Context, to, name, downloadURL string, linkExpiresAt time.Time) error {
	data := map[string]any{
		"Name":          name,
		"DownloadURL":   downloadURL,
		"LinkExpiresAt": linkExpiresAt,
	}

	htmlBody, err := s.renderTemplate("export_ready.html", data)
	if err != nil {
		return fmt.Errorf("failed to render export ready email template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

Your vocabulary export is ready. Download it here (link valid until %s):

%s

The TOEIC Prep Team
`, name, formatTime(linkExpiresAt), downloadURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  "Your vocabulary export is ready",
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

// =============================================================================
// Internal Methods
// =============================================================================

func (s *SMTPEmailService) send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := s.buildMessage(email)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	// Mailhog takes no credentials.
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := s.sendMail(addr, auth, s.config.From, []string{email.To}, msg); err != nil {
		s.logger.Error("failed to send email",
			"to", email.To,
			"subject", email.Subject,
			"error", err,
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		"to", email.To,
		"subject", email.Subject,
	)
	return nil
}

const mimeBoundary = "===============TOEICPREP_BOUNDARY==============="

// buildMessage constructs a multipart/alternative message with headers.
func (s *SMTPEmailService) buildMessage(email Email) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s <%s>\r\n", s.config.FromName, s.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", email.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", email.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", mimeBoundary)

	writePart := func(contentType, body string) {
		fmt.Fprintf(&buf, "--%s\r\n", mimeBoundary)
		fmt.Fprintf(&buf, "Content-Type: %s; charset=utf-8\r\n\r\n", contentType)
		buf.WriteString(body)
		buf.WriteString("\r\n")
	}
	writePart("text/plain", email.TextBody)
	writePart("text/html", email.HTMLBody)

	fmt.Fprintf(&buf, "--%s--\r\n", mimeBoundary)
	return buf.Bytes()
}

func (s *SMTPEmailService) renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 MST")
}

func emailTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatTime": formatTime,
		"currentYear": func() int {
			return time.Now().Year()
		},
	}
}

var _ EmailService = (*SMTPEmailService)(nil)
