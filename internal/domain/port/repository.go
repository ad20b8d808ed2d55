package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/signdata/signdata-processing-service/internal/domain/entity"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.IngestionJob) error
	Update(ctx context.Context, job *entity.IngestionJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.IngestionJob, error)
	ListRecent(ctx context.Context, limit int) ([]*entity.IngestionJob, error)
}
