package camera

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
)

var (
	ErrMissingLandmarks = errors.New("frame missing landmarks")
	ErrEmptyLandmarks   = errors.New("frames contain no landmark values")
)

type Frame struct {
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Landmarks Landmarks       `json:"landmarks"`
}

// Payload is a camera upload: client-side landmarks for one gesture.
type Payload struct {
	User      string  `json:"user"`
	Label     string  `json:"label"`
	SessionID string  `json:"session_id"`
	Dialect   string  `json:"dialect"`
	Frames    []Frame `json:"frames"`
}

// ToSequence stacks per-frame vectors into a (len(frames), longest vector) sequence,
// padding shorter frames with trailing zeros.
func ToSequence(frames []Frame) (entity.Sequence, error) {
	vectors := make([][]float32, len(frames))
	maxLen := 0
	for i, f := range frames {
		vec, err := f.Landmarks.Vector()
		if err != nil {
			return entity.Sequence{}, fmt.Errorf("frame %d: %w", i, err)
		}
		vectors[i] = vec
		if len(vec) > maxLen {
			maxLen = len(vec)
		}
	}
	if maxLen == 0 {
		return entity.Sequence{}, ErrEmptyLandmarks
	}

	seq := entity.NewSequence(len(vectors), maxLen)
	for i, vec := range vectors {
		copy(seq.Row(i), vec)
	}
	return seq, nil
}
