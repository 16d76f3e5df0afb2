package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/email"
	"github.com/DukeRupert/toeicprep/internal/worker"
)

// SendTrialEmailHandler sends the trial started and trial expiring emails.
type SendTrialEmailHandler struct {
	users  Users
	email  email.EmailService
	logger *slog.Logger
	now    func() time.Time
}

// NewSendTrialEmailHandler creates a new handler for trial emails.
func NewSendTrialEmailHandler(users Users, emailService email.EmailService, logger *slog.Logger) *SendTrialEmailHandler {
	return &SendTrialEmailHandler{
		users:  users,
		email:  emailService,
		logger: logger,
		now:    time.Now,
	}
}

func (h *SendTrialEmailHandler) Type() string {
	return worker.JobTypeSendTrialEmail
}

func (h *SendTrialEmailHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.SendTrialEmailPayload
	if err := worker.DecodePayload(payload, &p); err != nil {
		return err
	}
	if p.UserID == uuid.Nil {
		return worker.NewPermanentError(errNoUserID)
	}

	user, err := loadUser(ctx, h.users, p.UserID)
	if err != nil {
		return err
	}

	// A retry can run after the trial ended; nothing useful to say then.
	if !user.IsInTrial(h.now()) {
		h.logger.Info("trial no longer running, skipping email",
			"user_id", user.ID,
			"kind", p.Kind,
		)
		return nil
	}
	expiresAt := *user.TrialExpiresAt

	switch p.Kind {
	case worker.TrialEmailStarted:
		err = h.email.SendTrialStartedEmail(ctx, user.Email, user.DisplayName(), expiresAt)
	case worker.TrialEmailExpiring:
		err = h.email.SendTrialExpiringEmail(ctx, user.Email, user.DisplayName(), expiresAt)
	default:
		return worker.NewPermanentError(fmt.Errorf("unknown trial email kind %q", p.Kind))
	}
	if err != nil {
		return fmt.Errorf("send trial email: %w", err)
	}

	h.logger.Info("trial email sent", "user_id", user.ID, "kind", p.Kind)
	return nil
}

var _ worker.JobHandler = (*SendTrialEmailHandler)(nil)
