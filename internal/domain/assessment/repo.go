package assessment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an assessment or override does not exist.
var ErrNotFound = errors.New("assessment not found")

type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, limit, offset int) ([]*Record, int, error)
	ListPendingReview(ctx context.Context, limit, offset int) ([]*Record, int, error)
	AddOverride(ctx context.Context, o *Override) error
	ListOverrides(ctx context.Context, assessmentID uuid.UUID) ([]*Override, error)
}
