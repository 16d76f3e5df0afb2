// Package email sends the transactional emails of the service: trial
// notifications and export download links.
package email

import (
	"context"
	"time"
)

// EmailService defines the interface for sending transactional emails.
type EmailService interface {
	// SendTrialStartedEmail confirms a trial start and when it ends.
	SendTrialStartedEmail(ctx context.Context, to, name string, expiresAt time.Time) error

	// SendTrialExpiringEmail reminds a trialing user that access ends soon.
	SendTrialExpiringEmail(ctx context.Context, to, name string, expiresAt time.Time) error

	// SendExportReadyEmail delivers a time-limited download link.
	SendExportReadyEmail(ctx context.Context, to, name, downloadURL string, linkExpiresAt time.Time) error
}

// Email represents a single email message.
type Email struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // e.g., "localhost" for Mailhog
	Port     int    // e.g., 1025 for Mailhog
	Username string // empty for Mailhog
	Password string
	From     string
	FromName string
}

const (
	DefaultFromEmail = "noreply@toeicprep.app"
	DefaultFromName  = "TOEIC Prep"
)
