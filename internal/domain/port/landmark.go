package port

import (
	"context"
	"image"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
)

type LandmarkEstimator interface {
	EstimateHolistic(ctx context.Context, frames []image.Image) ([]entity.Holistic, error)
}
