package usecase

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/domain/port"
	"github.com/signdata/signdata-processing-service/internal/keypoints"
)

type fakeSampler struct {
	frames   int
	duration float64
	err      error
}

func (f *fakeSampler) SampleFrames(_ context.Context, _ string, _ float64) (*port.SampledVideo, error) {
	if f.err != nil {
		return nil, f.err
	}
	frames := make([]image.Image, f.frames)
	for i := range frames {
		frames[i] = image.NewRGBA(image.Rect(0, 0, 2, 2))
	}
	return &port.SampledVideo{Frames: frames, NativeFPS: 30, Stride: 5, Duration: f.duration}, nil
}

// fakeEstimator detects a full pose and one left-hand point in every frame.
type fakeEstimator struct {
	err error
}

func (f *fakeEstimator) EstimateHolistic(_ context.Context, frames []image.Image) ([]entity.Holistic, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]entity.Holistic, len(frames))
	for i := range out {
		pose := make([]entity.Landmark, 25)
		for j := range pose {
			pose[j] = entity.Landmark{X: 0.5, Y: 0.25, Z: -0.1}
		}
		out[i] = entity.Holistic{
			keypoints.GroupPose:     pose,
			keypoints.GroupLeftHand: {{X: 1, Y: 1, Z: 1}},
		}
	}
	return out, nil
}

// failingRegistry delegates to a real registry but fails SaveSample after failAfter successes.
type failingRegistry struct {
	port.SampleRegistry
	failAfter int
	saved     int
	deleted   []string
}

func (f *failingRegistry) SaveSample(seq entity.Sequence, classIdx int, folder string, meta entity.SampleMetadata) (string, error) {
	if f.saved >= f.failAfter {
		return "", errors.New("disk full")
	}
	f.saved++
	return f.SampleRegistry.SaveSample(seq, classIdx, folder, meta)
}

func (f *failingRegistry) DeleteSampleFile(path string) error {
	f.deleted = append(f.deleted, path)
	return f.SampleRegistry.DeleteSampleFile(path)
}

type fakeProcessor struct {
	result *VideoResult
	err    error
	got    []VideoRequest
}

func (f *fakeProcessor) Process(_ context.Context, req VideoRequest) (*VideoResult, error) {
	f.got = append(f.got, req)
	return f.result, f.err
}

type fakeRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]entity.IngestionJob
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: map[uuid.UUID]entity.IngestionJob{}}
}

func (r *fakeRepo) Create(_ context.Context, job *entity.IngestionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeRepo) Update(ctx context.Context, job *entity.IngestionJob) error {
	return r.Create(ctx, job)
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.IngestionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	return &job, nil
}

func (r *fakeRepo) ListRecent(_ context.Context, _ int) ([]*entity.IngestionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.IngestionJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		j := j
		out = append(out, &j)
	}
	return out, nil
}

type fakeStorage struct {
	downloadErr error
	uploaded    map[string][]byte
}

func (s *fakeStorage) DownloadVideo(_ context.Context, _ string, destPath string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	return os.WriteFile(destPath, []byte("video"), 0o644)
}

func (s *fakeStorage) UploadVideo(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	return s.put(key, r)
}

func (s *fakeStorage) UploadArchive(_ context.Context, key string, r io.Reader, _ int64) error {
	return s.put(key, r)
}

func (s *fakeStorage) put(key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if s.uploaded == nil {
		s.uploaded = map[string][]byte{}
	}
	s.uploaded[key] = b
	return nil
}

type recordingPublisher struct {
	status  [][]byte
	dlq     [][]byte
	reasons []string
	ingest  [][]byte
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.status = append(p.status, msg)
	return nil
}

func (p *recordingPublisher) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	p.dlq = append(p.dlq, msg)
	p.reasons = append(p.reasons, reason)
	return nil
}

func (p *recordingPublisher) PublishIngest(_ context.Context, msg []byte) error {
	p.ingest = append(p.ingest, msg)
	return nil
}

type recordingNotifier struct {
	sent []string
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, email, _, _, _ string) error {
	n.sent = append(n.sent, email)
	return nil
}
