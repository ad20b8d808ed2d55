package usecase

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/signdata/signdata-processing-service/internal/domain/port"
	"github.com/signdata/signdata-processing-service/internal/keypoints"
	"github.com/signdata/signdata-processing-service/internal/registry"
	"github.com/signdata/signdata-processing-service/internal/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPipeline(t *testing.T, sampler port.FrameSampler, est port.LandmarkEstimator, reg port.SampleRegistry, cfg PipelineConfig) *VideoPipeline {
	t.Helper()
	extractor := keypoints.NewExtractor(est, keypoints.DefaultLayout(), zap.NewNop())
	augmenter := sequence.NewAugmenter(sequence.DefaultAugmentConfig(), rand.New(rand.NewSource(1)))
	return NewVideoPipeline(sampler, extractor, augmenter, reg, cfg, zap.NewNop())
}

func TestVideoPipeline_SavesFourNormalizedVariants(t *testing.T) {
	reg := registry.New(t.TempDir(), zap.NewNop())
	p := newPipeline(t, &fakeSampler{frames: 40, duration: 6.5}, &fakeEstimator{}, reg, DefaultPipelineConfig())

	res, err := p.Process(context.Background(), VideoRequest{
		VideoPath: "clip.mp4", User: "ana", Label: "Xin chào", SessionID: "s1", Dialect: "north",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, res.ClassIdx)
	assert.Equal(t, "class_0001_xin-chao", res.FolderName)
	assert.Equal(t, 40, res.FramesSampled)
	require.Len(t, res.SavedPaths, 4)

	for _, path := range res.SavedPaths {
		seq, err := registry.ReadSequence(path)
		require.NoError(t, err)
		rows, dim := seq.Shape()
		assert.Equal(t, 60, rows)
		assert.Equal(t, 1605, dim)
	}

	original, err := registry.ReadSequence(res.SavedPaths[0])
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), original.Row(0)[0])
	assert.Equal(t, float32(1), original.Row(39)[75])
	assert.Equal(t, float32(0), original.Row(40)[0], "padding rows are zero")

	meta, err := registry.ReadSidecar(registry.SidecarPath(res.SavedPaths[3]))
	require.NoError(t, err)
	assert.Equal(t, "timewarp", meta["augmentation"])
	assert.Equal(t, "video", meta["source"])
	assert.EqualValues(t, 60, meta["frames"])

	samples, err := reg.Samples(registry.SampleFilter{})
	require.NoError(t, err)
	assert.Len(t, samples, 4)
	assert.Equal(t, "6.5", samples[0].Duration)
}

func TestVideoPipeline_TimeWarpKeepsLengthWhenNotRenormalized(t *testing.T) {
	reg := registry.New(t.TempDir(), zap.NewNop())
	cfg := DefaultPipelineConfig()
	cfg.RenormalizeAugmented = false
	p := newPipeline(t, &fakeSampler{frames: 10}, &fakeEstimator{}, reg, cfg)

	res, err := p.Process(context.Background(), VideoRequest{Label: "ola"})
	require.NoError(t, err)

	warped, err := registry.ReadSequence(res.SavedPaths[3])
	require.NoError(t, err)
	rows, _ := warped.Shape()
	assert.Equal(t, 72, rows)

	meta, err := registry.ReadSidecar(registry.SidecarPath(res.SavedPaths[3]))
	require.NoError(t, err)
	assert.EqualValues(t, 72, meta["frames"], "frames records the stored row count")
	assert.Equal(t, 10, res.FramesSampled)
}

func TestVideoPipeline_FrameAugment(t *testing.T) {
	reg := registry.New(t.TempDir(), zap.NewNop())
	cfg := DefaultPipelineConfig()
	cfg.FrameAugment = true
	p := newPipeline(t, &fakeSampler{frames: 5}, &fakeEstimator{}, reg, cfg)

	res, err := p.Process(context.Background(), VideoRequest{Label: "ola"})
	require.NoError(t, err)
	assert.Len(t, res.SavedPaths, 16)

	meta, err := registry.ReadSidecar(registry.SidecarPath(res.SavedPaths[4]))
	require.NoError(t, err)
	assert.Equal(t, "flipped/original", meta["augmentation"])
}

func TestVideoPipeline_InputFailures(t *testing.T) {
	tests := []struct {
		name      string
		sampler   *fakeSampler
		estimator *fakeEstimator
		stage     string
		target    error
		permanent bool
	}{
		{"unreadable video", &fakeSampler{err: port.ErrCannotOpen}, &fakeEstimator{}, StageSample, port.ErrCannotOpen, true},
		{"no frames", &fakeSampler{frames: 0}, &fakeEstimator{}, StageSample, ErrNoFrames, true},
		{"estimator down", &fakeSampler{frames: 3}, &fakeEstimator{err: errors.New("connection refused")}, StageExtract, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			reg := registry.New(root, zap.NewNop())
			p := newPipeline(t, tt.sampler, tt.estimator, reg, DefaultPipelineConfig())

			_, err := p.Process(context.Background(), VideoRequest{Label: "ola"})
			require.Error(t, err)

			var pe *PipelineError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.stage, pe.Stage)
			assert.Contains(t, err.Error(), "pipeline processing failed")
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			assert.Equal(t, tt.permanent, IsPermanent(err))

			labels, err := reg.Labels()
			require.NoError(t, err)
			assert.Empty(t, labels, "no label is registered before extraction succeeds")
		})
	}
}

func TestVideoPipeline_RollsBackPartialSave(t *testing.T) {
	reg := &failingRegistry{SampleRegistry: registry.New(t.TempDir(), zap.NewNop()), failAfter: 2}
	p := newPipeline(t, &fakeSampler{frames: 4}, &fakeEstimator{}, reg, DefaultPipelineConfig())

	_, err := p.Process(context.Background(), VideoRequest{Label: "ola"})
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageSave, pe.Stage)
	assert.False(t, pe.Permanent())

	assert.Len(t, reg.deleted, 2)
	for _, path := range reg.deleted {
		assert.NoFileExists(t, path)
	}
	samples, err := reg.SampleRegistry.(*registry.Registry).Samples(registry.SampleFilter{})
	require.NoError(t, err)
	assert.Empty(t, samples)
}

var _ port.SampleRegistry = (*failingRegistry)(nil)
