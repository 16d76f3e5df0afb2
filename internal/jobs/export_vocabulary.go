package jobs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/email"
	"github.com/DukeRupert/toeicprep/internal/storage"
	"github.com/DukeRupert/toeicprep/internal/vocabio"
	"github.com/DukeRupert/toeicprep/internal/worker"
)

// DefaultExportLinkTTL is how long an export download link stays valid.
const DefaultExportLinkTTL = 24 * time.Hour

// maxExportSize caps the generated workbook.
const maxExportSize = 20 << 20

// VocabularyExporter lists every word of a user.
type VocabularyExporter interface {
	ExportAll(ctx context.Context, userID uuid.UUID) ([]domain.VocabularyItem, error)
}

// ExportVocabularyHandler writes a user's word list to an xlsx file in
// storage and emails a download link.
type ExportVocabularyHandler struct {
	users   Users
	vocab   VocabularyExporter
	storage storage.Storage
	email   email.EmailService
	linkTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewExportVocabularyHandler creates a new handler for vocabulary exports.
func NewExportVocabularyHandler(
	users Users,
	vocab VocabularyExporter,
	store storage.Storage,
	emailService email.EmailService,
	linkTTL time.Duration,
	logger *slog.Logger,
) *ExportVocabularyHandler {
	if linkTTL <= 0 {
		linkTTL = DefaultExportLinkTTL
	}
	return &ExportVocabularyHandler{
		users:   users,
		vocab:   vocab,
		storage: store,
		email:   emailService,
		linkTTL: linkTTL,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *ExportVocabularyHandler) Type() string {
	return worker.JobTypeExportVocabulary
}

func (h *ExportVocabularyHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.ExportVocabularyPayload
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

	items, err := h.vocab.ExportAll(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}

	var buf bytes.Buffer
	if err := vocabio.Write(&buf, items); err != nil {
		return worker.NewPermanentError(fmt.Errorf("render workbook: %w", err))
	}

	key := storage.ExportKey(user.ID)
	err = h.storage.Put(ctx, key, &buf, storage.PutOptions{
		ContentType: storage.ContentTypeXLSX,
		MaxSize:     maxExportSize,
	})
	if err != nil {
		if storage.IsTooLarge(err) {
			return worker.NewPermanentError(err)
		}
		return fmt.Errorf("store export: %w", err)
	}

	link, err := h.storage.URL(ctx, key, h.linkTTL)
	if err != nil {
		return fmt.Errorf("sign export url: %w", err)
	}

	if err := h.email.SendExportReadyEmail(ctx, user.Email, user.DisplayName(), link, h.now().Add(h.linkTTL)); err != nil {
		return fmt.Errorf("send export email: %w", err)
	}

	h.logger.Info("vocabulary exported",
		"user_id", user.ID,
		"items", len(items),
		"key", key,
	)
	return nil
}

var _ worker.JobHandler = (*ExportVocabularyHandler)(nil)
