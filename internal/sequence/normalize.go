package sequence

import "github.com/signdata/signdata-processing-service/internal/domain/entity"

const DefaultTargetFrames = 60

// Normalize pads with trailing zero rows or keeps the first targetT rows.
func Normalize(seq entity.Sequence, targetT int) entity.Sequence {
	out := entity.NewSequence(targetT, seq.Dim)
	rows := seq.Frames
	if rows > targetT {
		rows = targetT
	}
	copy(out.Data, seq.Data[:rows*seq.Dim])
	return out
}
