package port

import (
	"context"
	"errors"
	"image"
)

// ErrCannotOpen is returned by samplers for containers they cannot read.
var ErrCannotOpen = errors.New("cannot open video")

type SampledVideo struct {
	Frames    []image.Image
	NativeFPS float64
	Stride    int
	Duration  float64
}

type FrameSampler interface {
	SampleFrames(ctx context.Context, videoPath string, targetFPS float64) (*SampledVideo, error)
}
