package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/domain/port"
	"github.com/signdata/signdata-processing-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// VideoProcessor is the part of VideoPipeline the queue handler depends on.
type VideoProcessor interface {
	Process(ctx context.Context, req VideoRequest) (*VideoResult, error)
}

type IngestVideoUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	pipeline  VideoProcessor
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
}

type IngestVideoConfig struct {
	TempDir    string
	MaxRetries int
}

func NewIngestVideoUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	pipeline VideoProcessor,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg IngestVideoConfig,
) *IngestVideoUseCase {
	return &IngestVideoUseCase{
		repo:      repo,
		storage:   storage,
		pipeline:  pipeline,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
	}
}

// Execute handles one ingestion message. A nil return acks the delivery; an error
// asks the queue layer to retry it.
func (uc *IngestVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "IngestVideoUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.VideoIngestionMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
		attribute.String("job.label", msg.Label),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewIngestionJob(msg.UserID, msg.Label, msg.SessionID, msg.Dialect, msg.VideoKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if job.Status == entity.JobStatusCompleted {
		log.Info("job already completed, skipping redelivery")
		return nil
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.run(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

func (uc *IngestVideoUseCase) run(
	ctx context.Context,
	job *entity.IngestionJob,
	msg entity.VideoIngestionMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	dlStart := time.Now()
	dctx, spanDl := otel.Tracer("usecase").Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input"+filepath.Ext(msg.VideoKey))
	err := uc.storage.DownloadVideo(dctx, msg.VideoKey, videoPath)
	spanDl.End()
	if err != nil {
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	result, err := uc.pipeline.Process(ctx, VideoRequest{
		VideoPath: videoPath,
		User:      msg.UserID,
		Label:     msg.Label,
		SessionID: msg.SessionID,
		Dialect:   msg.Dialect,
	})
	if err != nil {
		log.Error("pipeline failed", zap.Error(err))
		if IsPermanent(err) {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, err.Error())
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, err.Error(), log)
	}

	job.MarkCompleted(result.ClassIdx, len(result.SavedPaths), result.FramesSampled, result.Duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, &entity.IngestionResult{
		ClassIdx:      result.ClassIdx,
		FolderName:    result.FolderName,
		SavedPaths:    result.SavedPaths,
		FramesSampled: result.FramesSampled,
	}, log)

	log.Info("job completed successfully",
		zap.Int("class_idx", result.ClassIdx),
		zap.Int("frames_sampled", result.FramesSampled),
		zap.Int("saved", len(result.SavedPaths)),
	)
	return nil
}

func (uc *IngestVideoUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.IngestionJob,
	msg entity.VideoIngestionMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, nil, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *IngestVideoUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.IngestionJob,
	msg entity.VideoIngestionMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, nil, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.Label, errMsg)
	}

	return nil
}

func (uc *IngestVideoUseCase) publishStatus(ctx context.Context, job *entity.IngestionJob, result *entity.IngestionResult, log *zap.Logger) {
	taskStatus := entity.TaskStatusDone
	if job.Status == entity.JobStatusFailed {
		taskStatus = entity.TaskStatusError
	}
	statusMsg := entity.IngestionStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Label:        job.Label,
		SessionID:    job.SessionID,
		Status:       job.Status,
		TaskStatus:   taskStatus,
		VideoKey:     job.VideoKey,
		Result:       result,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
