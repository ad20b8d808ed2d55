package entity

// Sequence is a (Frames, Dim) float32 matrix stored row-major.
type Sequence struct {
	Frames int
	Dim    int
	Data   []float32
}

func NewSequence(frames, dim int) Sequence {
	return Sequence{Frames: frames, Dim: dim, Data: make([]float32, frames*dim)}
}

func (s Sequence) Shape() (int, int) {
	return s.Frames, s.Dim
}

func (s Sequence) Empty() bool {
	return s.Frames == 0 || s.Dim == 0
}

func (s Sequence) Row(i int) []float32 {
	return s.Data[i*s.Dim : (i+1)*s.Dim]
}

func (s Sequence) Clone() Sequence {
	data := make([]float32, len(s.Data))
	copy(data, s.Data)
	return Sequence{Frames: s.Frames, Dim: s.Dim, Data: data}
}
