package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ingestFixture struct {
	uc       *IngestVideoUseCase
	repo     *fakeRepo
	storage  *fakeStorage
	proc     *fakeProcessor
	pub      *recordingPublisher
	notifier *recordingNotifier
}

func newIngestFixture(t *testing.T, maxRetries int) *ingestFixture {
	f := &ingestFixture{
		repo:     newFakeRepo(),
		storage:  &fakeStorage{},
		proc:     &fakeProcessor{},
		pub:      &recordingPublisher{},
		notifier: &recordingNotifier{},
	}
	f.uc = NewIngestVideoUseCase(f.repo, f.storage, f.proc, f.pub, f.pub, f.notifier, zap.NewNop(),
		IngestVideoConfig{TempDir: t.TempDir(), MaxRetries: maxRetries})
	return f
}

func ingestMessage(t *testing.T, id uuid.UUID) []byte {
	body, err := json.Marshal(entity.VideoIngestionMessage{
		JobID: id, UserID: "ana", Label: "ola", SessionID: "s1", VideoKey: "ana/ab12cd34_ola.mp4",
		FileSize: 1024, UserEmail: "ana@example.com",
	})
	require.NoError(t, err)
	return body
}

func lastStatus(t *testing.T, pub *recordingPublisher) entity.IngestionStatusMessage {
	require.NotEmpty(t, pub.status)
	var msg entity.IngestionStatusMessage
	require.NoError(t, json.Unmarshal(pub.status[len(pub.status)-1], &msg))
	return msg
}

func TestIngestVideo_Success(t *testing.T) {
	f := newIngestFixture(t, 3)
	f.proc.result = &VideoResult{
		Status: StatusSuccess, SavedPaths: []string{"a.npz", "b.npz", "c.npz", "d.npz"},
		ClassIdx: 2, FolderName: "class_0002_ola", FramesSampled: 18, Duration: 3,
	}
	id := uuid.New()

	require.NoError(t, f.uc.Execute(context.Background(), ingestMessage(t, id)))

	require.Len(t, f.proc.got, 1)
	assert.Equal(t, "ola", f.proc.got[0].Label)
	assert.Equal(t, ".mp4", f.proc.got[0].VideoPath[len(f.proc.got[0].VideoPath)-4:])

	job, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, 4, job.SavedCount)
	assert.Equal(t, 18, job.FrameCount)

	msg := lastStatus(t, f.pub)
	assert.Equal(t, entity.TaskStatusDone, msg.TaskStatus)
	require.NotNil(t, msg.Result)
	assert.Equal(t, "class_0002_ola", msg.Result.FolderName)
	assert.Empty(t, f.pub.dlq)
}

func TestIngestVideo_MalformedGoesToDLQ(t *testing.T) {
	f := newIngestFixture(t, 3)
	require.NoError(t, f.uc.Execute(context.Background(), []byte(`{invalid json`)))
	require.Len(t, f.pub.dlq, 1)
	assert.Contains(t, f.pub.reasons[0], "unmarshal_error")
	assert.Empty(t, f.proc.got)
}

func TestIngestVideo_PermanentPipelineFailure(t *testing.T) {
	f := newIngestFixture(t, 3)
	f.proc.err = &PipelineError{Stage: StageSample, Err: ErrNoFrames}
	id := uuid.New()

	require.NoError(t, f.uc.Execute(context.Background(), ingestMessage(t, id)))

	job, _ := f.repo.FindByID(context.Background(), id)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Len(t, f.pub.dlq, 1)
	assert.Equal(t, []string{"ana@example.com"}, f.notifier.sent)

	msg := lastStatus(t, f.pub)
	assert.Equal(t, entity.TaskStatusError, msg.TaskStatus)
	assert.Contains(t, msg.ErrorMessage, "no frames extracted")
}

func TestIngestVideo_RetryableThenExhausted(t *testing.T) {
	f := newIngestFixture(t, 2)
	f.storage.downloadErr = errors.New("minio unavailable")
	id := uuid.New()
	body := ingestMessage(t, id)

	err := f.uc.Execute(context.Background(), body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt 1/2")
	assert.Empty(t, f.pub.dlq)

	require.NoError(t, f.uc.Execute(context.Background(), body))
	assert.Len(t, f.pub.dlq, 1)
	assert.Len(t, f.notifier.sent, 1)

	job, _ := f.repo.FindByID(context.Background(), id)
	assert.Equal(t, 2, job.Attempt)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
}

func TestIngestVideo_TransientPipelineFailureIsRetried(t *testing.T) {
	f := newIngestFixture(t, 3)
	f.proc.err = &PipelineError{Stage: StageExtract, Err: errors.New("sidecar timeout")}

	err := f.uc.Execute(context.Background(), ingestMessage(t, uuid.New()))
	require.Error(t, err)
	assert.Empty(t, f.pub.dlq)
	assert.Equal(t, entity.TaskStatusError, lastStatus(t, f.pub).TaskStatus)
}

func TestIngestVideo_CompletedJobIsNotReprocessed(t *testing.T) {
	f := newIngestFixture(t, 3)
	f.proc.result = &VideoResult{Status: StatusSuccess}
	id := uuid.New()
	body := ingestMessage(t, id)

	require.NoError(t, f.uc.Execute(context.Background(), body))
	require.NoError(t, f.uc.Execute(context.Background(), body))
	assert.Len(t, f.proc.got, 1)
}

var (
	_ port.JobRepository   = (*fakeRepo)(nil)
	_ port.VideoStorage    = (*fakeStorage)(nil)
	_ port.ArchiveStorage  = (*fakeStorage)(nil)
	_ port.StatusPublisher = (*recordingPublisher)(nil)
	_ port.DLQPublisher    = (*recordingPublisher)(nil)
	_ port.IngestPublisher = (*recordingPublisher)(nil)
	_ VideoProcessor       = (*fakeProcessor)(nil)
)
