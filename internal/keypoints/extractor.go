package keypoints

import (
	"context"
	"fmt"
	"image"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/domain/port"
	"go.uber.org/zap"
)

type Extractor struct {
	estimator port.LandmarkEstimator
	layout    Layout
	logger    *zap.Logger
}

func NewExtractor(estimator port.LandmarkEstimator, layout Layout, logger *zap.Logger) *Extractor {
	return &Extractor{estimator: estimator, layout: layout, logger: logger}
}

func (e *Extractor) Layout() Layout {
	return e.layout
}

// Extract returns a (len(frames), layout.Dim()) sequence, or a (0, 0) sequence
// when there are no frames.
func (e *Extractor) Extract(ctx context.Context, frames []image.Image) (entity.Sequence, error) {
	if len(frames) == 0 {
		return entity.Sequence{}, nil
	}

	results, err := e.estimator.EstimateHolistic(ctx, frames)
	if err != nil {
		return entity.Sequence{}, fmt.Errorf("estimate landmarks: %w", err)
	}
	if len(results) != len(frames) {
		return entity.Sequence{}, fmt.Errorf("estimator returned %d results for %d frames", len(results), len(frames))
	}

	seq := entity.NewSequence(len(frames), e.layout.Dim())
	missing := 0
	for i, res := range results {
		missing += e.layout.Flatten(res, seq.Row(i))
	}

	e.logger.Debug("keypoints extracted",
		zap.Int("frames", seq.Frames),
		zap.Int("dim", seq.Dim),
		zap.Int("missing_groups", missing),
	)
	return seq, nil
}

// Flatten writes one frame into dst in layout order and returns how many groups were absent.
// Absent groups and absent trailing points stay zero.
func (l Layout) Flatten(h entity.Holistic, dst []float32) int {
	missing := 0
	off := 0
	for _, g := range l.Groups {
		points := h[g.Name]
		if len(points) == 0 {
			missing++
		}
		for i := 0; i < g.Points && i < len(points); i++ {
			p := points[i]
			block := dst[off+i*l.Coords : off+(i+1)*l.Coords]
			coords := [3]float64{p.X, p.Y, p.Z}
			for c := 0; c < l.Coords && c < len(coords); c++ {
				block[c] = float32(coords[c])
			}
		}
		off += g.Points * l.Coords
	}
	return missing
}
