package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/domain/port"
	"go.uber.org/zap"
)

const MessageQueued = "queued"

type UploadVideoRequest struct {
	User        string
	Label       string
	Dialect     string
	SessionID   string
	UserEmail   string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UploadVideoResult struct {
	Success   bool   `json:"success"`
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// EnqueueVideoUseCase stores a raw upload and hands it to the ingestion worker.
type EnqueueVideoUseCase struct {
	registry  port.SampleRegistry
	storage   port.VideoStorage
	repo      port.JobRepository
	publisher port.IngestPublisher
	maxRetry  int
	logger    *zap.Logger
}

func NewEnqueueVideoUseCase(
	registry port.SampleRegistry,
	storage port.VideoStorage,
	repo port.JobRepository,
	publisher port.IngestPublisher,
	maxRetry int,
	logger *zap.Logger,
) *EnqueueVideoUseCase {
	return &EnqueueVideoUseCase{
		registry:  registry,
		storage:   storage,
		repo:      repo,
		publisher: publisher,
		maxRetry:  maxRetry,
		logger:    logger,
	}
}

func (uc *EnqueueVideoUseCase) Execute(ctx context.Context, req UploadVideoRequest) (*UploadVideoResult, error) {
	if strings.TrimSpace(req.Label) == "" {
		return nil, fmt.Errorf("label is required")
	}
	if req.SessionID == "" {
		req.SessionID = newSessionID()
	}

	if _, _, err := uc.registry.RegisterLabel(req.Label, "", ""); err != nil {
		return nil, fmt.Errorf("register label: %w", err)
	}

	key := objectKey(req.User, req.Filename)
	if err := uc.storage.UploadVideo(ctx, key, req.Body, req.Size, req.ContentType); err != nil {
		return nil, err
	}

	job := entity.NewIngestionJob(req.User, req.Label, req.SessionID, req.Dialect, key, req.Size, uc.maxRetry)
	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	body, err := json.Marshal(entity.VideoIngestionMessage{
		JobID:     job.ID,
		UserID:    req.User,
		Label:     req.Label,
		SessionID: req.SessionID,
		Dialect:   req.Dialect,
		VideoKey:  key,
		FileSize:  req.Size,
		UserEmail: req.UserEmail,
	})
	if err != nil {
		return nil, err
	}
	if err := uc.publisher.PublishIngest(ctx, body); err != nil {
		return nil, fmt.Errorf("publish ingest: %w", err)
	}

	uc.logger.Info("video queued",
		zap.String("job_id", job.ID.String()),
		zap.String("video_key", key),
		zap.String("label", req.Label),
	)
	return &UploadVideoResult{Success: true, ID: job.ID.String(), SessionID: req.SessionID, Message: MessageQueued}, nil
}

// objectKey is <user>/<8hex>_<base filename>; an empty user becomes "anonymous".
func objectKey(user, filename string) string {
	if user == "" {
		user = "anonymous"
	}
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		name = "video.mp4"
	}
	return fmt.Sprintf("%s/%s_%s", user, uuid.NewString()[:8], name)
}
