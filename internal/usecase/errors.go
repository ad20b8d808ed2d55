package usecase

import (
	"errors"
	"fmt"

	"github.com/signdata/signdata-processing-service/internal/domain/port"
)

var (
	ErrNoFrames    = errors.New("no frames extracted")
	ErrNoKeypoints = errors.New("no keypoints extracted")
)

const (
	StageSample   = "sample_frames"
	StageExtract  = "extract_keypoints"
	StageRegister = "register_label"
	StageSave     = "save_samples"
)

// PipelineError is the single failure shape returned by VideoPipeline.Process.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline processing failed: %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Permanent reports whether retrying the same input can never succeed.
func (e *PipelineError) Permanent() bool {
	return errors.Is(e.Err, port.ErrCannotOpen) ||
		errors.Is(e.Err, ErrNoFrames) ||
		errors.Is(e.Err, ErrNoKeypoints)
}

func IsPermanent(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Permanent()
}
