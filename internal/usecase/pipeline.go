package usecase

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"time"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/domain/port"
	"github.com/signdata/signdata-processing-service/internal/infra/metrics"
	"github.com/signdata/signdata-processing-service/internal/keypoints"
	"github.com/signdata/signdata-processing-service/internal/sequence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const StatusSuccess = "success"

type PipelineConfig struct {
	TargetFPS            float64
	TargetFrames         int
	RenormalizeAugmented bool
	FrameAugment         bool
	FrameAugmentConfig   sequence.FrameAugmentConfig
	DatasetVersion       string
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TargetFPS:            6.0,
		TargetFrames:         sequence.DefaultTargetFrames,
		RenormalizeAugmented: true,
		FrameAugmentConfig:   sequence.DefaultFrameAugmentConfig(),
	}
}

type VideoRequest struct {
	VideoPath string
	User      string
	Label     string
	SessionID string
	Dialect   string
}

type VideoResult struct {
	Status        string
	SavedPaths    []string
	ClassIdx      int
	FolderName    string
	FramesSampled int
	Duration      float64
}

// VideoPipeline turns one recorded gesture into a set of augmented dataset samples.
type VideoPipeline struct {
	sampler   port.FrameSampler
	extractor *keypoints.Extractor
	augmenter *sequence.Augmenter
	registry  port.SampleRegistry
	cfg       PipelineConfig
	logger    *zap.Logger
}

func NewVideoPipeline(
	sampler port.FrameSampler,
	extractor *keypoints.Extractor,
	augmenter *sequence.Augmenter,
	registry port.SampleRegistry,
	cfg PipelineConfig,
	logger *zap.Logger,
) *VideoPipeline {
	if cfg.TargetFrames <= 0 {
		cfg.TargetFrames = sequence.DefaultTargetFrames
	}
	return &VideoPipeline{
		sampler:   sampler,
		extractor: extractor,
		augmenter: augmenter,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
	}
}

type namedSequence struct {
	name string
	seq  entity.Sequence
}

// Process runs sample → extract → normalize → augment → save. Every sequence is
// built in memory before the first write, and a failed save removes the samples
// already written for this request. Failures are *PipelineError.
func (p *VideoPipeline) Process(ctx context.Context, req VideoRequest) (*VideoResult, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "VideoPipeline.Process")
	defer span.End()
	span.SetAttributes(attribute.String("sample.label", req.Label), attribute.String("sample.user", req.User))

	log := p.logger.With(zap.String("label", req.Label), zap.String("session_id", req.SessionID))

	start := time.Now()
	sctx, sspan := tracer.Start(ctx, StageSample)
	sampled, err := p.sampler.SampleFrames(sctx, req.VideoPath, p.cfg.TargetFPS)
	sspan.End()
	if err != nil {
		return nil, &PipelineError{Stage: StageSample, Err: err}
	}
	if len(sampled.Frames) == 0 {
		return nil, &PipelineError{Stage: StageSample, Err: ErrNoFrames}
	}
	metrics.StageDuration.WithLabelValues(StageSample).Observe(time.Since(start).Seconds())
	metrics.FramesSampledTotal.Add(float64(len(sampled.Frames)))

	start = time.Now()
	ectx, espan := tracer.Start(ctx, StageExtract)
	sequences, err := p.buildSequences(ectx, sampled.Frames)
	espan.End()
	if err != nil {
		return nil, &PipelineError{Stage: StageExtract, Err: err}
	}
	metrics.StageDuration.WithLabelValues(StageExtract).Observe(time.Since(start).Seconds())

	start = time.Now()
	classIdx, folder, err := p.registry.RegisterLabel(req.Label, "", p.cfg.DatasetVersion)
	if err != nil {
		return nil, &PipelineError{Stage: StageRegister, Err: err}
	}

	_, vspan := tracer.Start(ctx, StageSave)
	defer vspan.End()
	saved := make([]string, 0, len(sequences))
	for _, ns := range sequences {
		meta := entity.SampleMetadata{
			User:      req.User,
			SessionID: req.SessionID,
			Frames:    ns.seq.Frames,
			Source:    entity.SourceVideo,
			Dialect:   req.Dialect,
			Extra:     map[string]any{"augmentation": ns.name},
		}
		if sampled.Duration > 0 {
			d := sampled.Duration
			meta.Duration = &d
		}
		path, err := p.registry.SaveSample(ns.seq, classIdx, folder, meta)
		if err != nil {
			p.rollback(saved, log)
			return nil, &PipelineError{Stage: StageSave, Err: err}
		}
		saved = append(saved, path)
	}
	metrics.StageDuration.WithLabelValues(StageSave).Observe(time.Since(start).Seconds())
	metrics.SamplesSavedTotal.WithLabelValues(entity.SourceVideo).Add(float64(len(saved)))

	log.Info("video processed",
		zap.Int("class_idx", classIdx),
		zap.Int("frames_sampled", len(sampled.Frames)),
		zap.Int("stride", sampled.Stride),
		zap.Int("saved", len(saved)),
	)

	return &VideoResult{
		Status:        StatusSuccess,
		SavedPaths:    saved,
		ClassIdx:      classIdx,
		FolderName:    folder,
		FramesSampled: len(sampled.Frames),
		Duration:      sampled.Duration,
	}, nil
}

// buildSequences extracts, normalizes and augments every frame family. Without
// frame augmentation there is one family, the sampled frames themselves.
func (p *VideoPipeline) buildSequences(ctx context.Context, frames []image.Image) ([]namedSequence, error) {
	families := []sequence.FrameVariant{{Name: sequence.FrameVariantOriginal, Frames: frames}}
	if p.cfg.FrameAugment {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		families = sequence.FrameVariants(frames, p.cfg.FrameAugmentConfig, rng)
	}

	var out []namedSequence
	for _, fam := range families {
		seq, err := p.extractor.Extract(ctx, fam.Frames)
		if err != nil {
			return nil, err
		}
		if seq.Empty() {
			return nil, ErrNoKeypoints
		}

		normalized := sequence.Normalize(seq, p.cfg.TargetFrames)
		for _, v := range p.augmenter.Augment(normalized) {
			s := v.Sequence
			if p.cfg.RenormalizeAugmented {
				s = sequence.Normalize(s, p.cfg.TargetFrames)
			}
			name := v.Name
			if p.cfg.FrameAugment {
				name = fam.Name + "/" + v.Name
			}
			out = append(out, namedSequence{name: name, seq: s})
		}
	}
	return out, nil
}

func (p *VideoPipeline) rollback(paths []string, log *zap.Logger) {
	for _, path := range paths {
		if err := p.registry.DeleteSampleFile(path); err != nil {
			log.Error("rollback of saved sample failed", zap.String("path", path), zap.Error(err))
		}
	}
	if len(paths) > 0 {
		log.Warn("rolled back partially saved samples", zap.Int("count", len(paths)))
	}
}

func (r *VideoResult) String() string {
	return fmt.Sprintf("%s: class %d (%s), %d samples", r.Status, r.ClassIdx, r.FolderName, len(r.SavedPaths))
}
