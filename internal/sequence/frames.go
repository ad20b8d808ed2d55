package sequence

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
)

const (
	FrameVariantOriginal = "original"
	FrameVariantFlipped  = "flipped"
	FrameVariantBright   = "bright"
	FrameVariantNoisy    = "noisy"
)

type FrameAugmentConfig struct {
	Brightness float64
	NoiseMean  float64
	NoiseSigma float64
}

func DefaultFrameAugmentConfig() FrameAugmentConfig {
	return FrameAugmentConfig{Brightness: 1.3, NoiseSigma: 15}
}

type FrameVariant struct {
	Name   string
	Frames []image.Image
}

// FrameVariants builds the raster-level augmentation family. It runs before
// landmark extraction and is not part of the default pipeline.
func FrameVariants(frames []image.Image, cfg FrameAugmentConfig, rng *rand.Rand) []FrameVariant {
	return []FrameVariant{
		{Name: FrameVariantOriginal, Frames: frames},
		{Name: FrameVariantFlipped, Frames: FlipFrames(frames)},
		{Name: FrameVariantBright, Frames: AdjustBrightness(frames, cfg.Brightness)},
		{Name: FrameVariantNoisy, Frames: AddGaussianNoise(frames, cfg.NoiseMean, cfg.NoiseSigma, rng)},
	}
}

func FlipFrames(frames []image.Image) []image.Image {
	out := make([]image.Image, len(frames))
	for i, f := range frames {
		out[i] = imaging.FlipH(f)
	}
	return out
}

// AdjustBrightness multiplies every channel by factor, saturating at 255.
func AdjustBrightness(frames []image.Image, factor float64) []image.Image {
	out := make([]image.Image, len(frames))
	for i, f := range frames {
		out[i] = imaging.AdjustFunc(f, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{
				R: saturate(float64(c.R) * factor),
				G: saturate(float64(c.G) * factor),
				B: saturate(float64(c.B) * factor),
				A: c.A,
			}
		})
	}
	return out
}

func AddGaussianNoise(frames []image.Image, mean, sigma float64, rng *rand.Rand) []image.Image {
	out := make([]image.Image, len(frames))
	for i, f := range frames {
		img := imaging.Clone(f)
		for p := 0; p < len(img.Pix); p += 4 {
			for c := 0; c < 3; c++ {
				v := float64(img.Pix[p+c]) + mean + rng.NormFloat64()*sigma
				img.Pix[p+c] = clamp(v)
			}
		}
		out[i] = img
	}
	return out
}

func saturate(v float64) uint8 {
	return clamp(math.Abs(v))
}

func clamp(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
