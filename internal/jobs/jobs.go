// Package jobs implements the background job handlers run by the worker.
package jobs

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/DukeRupert/toeicprep/internal/domain"
	"github.com/DukeRupert/toeicprep/internal/worker"
)

// Users loads the recipient of a job.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// loadUser fetches the job's user. A user that no longer exists will not
// reappear, so that case fails permanently.
func loadUser(ctx context.Context, users Users, id uuid.UUID) (*domain.User, error) {
	user, err := users.GetByID(ctx, id)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return nil, worker.NewPermanentError(err)
		}
		return nil, err
	}
	return user, nil
}

var errNoUserID = errors.New("payload has no user id")
