package sequence

import (
	"math"
	"math/rand"
	"testing"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAugment_VariantsInOrder(t *testing.T) {
	a := NewAugmenter(DefaultAugmentConfig(), rand.New(rand.NewSource(1)))
	in := filled(60, 4)

	variants := a.Augment(in)
	require.Len(t, variants, 4)

	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = v.Name
	}
	assert.Equal(t, []string{VariantOriginal, VariantScaled, VariantJittered, VariantTimeWarp}, names)

	assert.Equal(t, in.Data, variants[0].Sequence.Data)
	assert.Equal(t, 60, variants[1].Sequence.Frames)
	assert.Equal(t, 60, variants[2].Sequence.Frames)
	assert.Equal(t, 72, variants[3].Sequence.Frames)
	assert.Equal(t, 4, variants[3].Sequence.Dim)
}

func TestAugment_InputUntouched(t *testing.T) {
	a := NewAugmenter(DefaultAugmentConfig(), rand.New(rand.NewSource(7)))
	in := filled(10, 3)
	before := in.Clone()

	variants := a.Augment(in)
	variants[0].Sequence.Data[0] = 1000

	assert.Equal(t, before.Data, in.Data)
}

func TestScale(t *testing.T) {
	in := entity.Sequence{Frames: 1, Dim: 3, Data: []float32{1, -2, 0.5}}
	out := Scale(in, 1.1)
	assert.InDeltaSlice(t, []float64{1.1, -2.2, 0.55}, toFloat64(out.Data), 1e-6)
}

func TestJitter_Statistics(t *testing.T) {
	in := entity.NewSequence(200, 50)
	out := Jitter(in, 0.02, rand.New(rand.NewSource(42)))

	var sum, sq float64
	for _, v := range out.Data {
		sum += float64(v)
		sq += float64(v) * float64(v)
	}
	n := float64(len(out.Data))
	mean := sum / n
	std := math.Sqrt(sq/n - mean*mean)

	assert.InDelta(t, 0, mean, 0.002)
	assert.InDelta(t, 0.02, std, 0.002)
}

func TestTimeWarp(t *testing.T) {
	in := entity.NewSequence(5, 1)
	for i := range in.Data {
		in.Data[i] = float32(i)
	}

	out := TimeWarp(in, 1.2)
	require.Equal(t, 6, out.Frames)
	// linspace(0, 4, 6) = 0, 0.8, 1.6, 2.4, 3.2, 4
	assert.Equal(t, []float32{0, 1, 2, 2, 3, 4}, out.Data)
}

func TestTimeWarp_Edges(t *testing.T) {
	empty := TimeWarp(entity.NewSequence(0, 3), 1.2)
	assert.Equal(t, 0, empty.Frames)

	single := TimeWarp(entity.Sequence{Frames: 1, Dim: 2, Data: []float32{7, 8}}, 1.2)
	require.Equal(t, 1, single.Frames)
	assert.Equal(t, []float32{7, 8}, single.Data)
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
