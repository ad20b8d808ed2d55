package sequence

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
)

const (
	VariantOriginal = "original"
	VariantScaled   = "scaled"
	VariantJittered = "jittered"
	VariantTimeWarp = "timewarp"
)

type AugmentConfig struct {
	ScaleFactor    float64
	JitterSigma    float64
	TimeWarpFactor float64
}

func DefaultAugmentConfig() AugmentConfig {
	return AugmentConfig{
		ScaleFactor:    1.1,
		JitterSigma:    0.02,
		TimeWarpFactor: 1.2,
	}
}

type Variant struct {
	Name     string
	Sequence entity.Sequence
}

type Augmenter struct {
	cfg AugmentConfig

	mu  sync.Mutex
	rng *rand.Rand
}

func NewAugmenter(cfg AugmentConfig, rng *rand.Rand) *Augmenter {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Augmenter{cfg: cfg, rng: rng}
}

// Augment returns original, scaled, jittered and time-warped variants, in that order.
// The input is never modified.
func (a *Augmenter) Augment(seq entity.Sequence) []Variant {
	return []Variant{
		{Name: VariantOriginal, Sequence: seq.Clone()},
		{Name: VariantScaled, Sequence: Scale(seq, a.cfg.ScaleFactor)},
		{Name: VariantJittered, Sequence: a.jitter(seq)},
		{Name: VariantTimeWarp, Sequence: TimeWarp(seq, a.cfg.TimeWarpFactor)},
	}
}

func Scale(seq entity.Sequence, factor float64) entity.Sequence {
	out := seq.Clone()
	for i, v := range out.Data {
		out.Data[i] = float32(float64(v) * factor)
	}
	return out
}

func (a *Augmenter) jitter(seq entity.Sequence) entity.Sequence {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Jitter(seq, a.cfg.JitterSigma, a.rng)
}

// Jitter adds independent N(0, sigma) noise to every element.
func Jitter(seq entity.Sequence, sigma float64, rng *rand.Rand) entity.Sequence {
	out := seq.Clone()
	for i, v := range out.Data {
		out.Data[i] = float32(float64(v) + rng.NormFloat64()*sigma)
	}
	return out
}

// TimeWarp resamples the time axis to round(T*factor) rows, picking the nearest
// source row for each point of linspace(0, T-1, newT).
func TimeWarp(seq entity.Sequence, factor float64) entity.Sequence {
	newT := int(math.Round(float64(seq.Frames) * factor))
	if seq.Frames == 0 || newT <= 0 {
		return entity.NewSequence(0, seq.Dim)
	}

	out := entity.NewSequence(newT, seq.Dim)
	last := float64(seq.Frames - 1)
	for i := 0; i < newT; i++ {
		var pos float64
		if newT > 1 {
			pos = last * float64(i) / float64(newT-1)
		}
		src := int(math.Round(pos))
		copy(out.Row(i), seq.Row(src))
	}
	return out
}
