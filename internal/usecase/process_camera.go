package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/signdata/signdata-processing-service/internal/camera"
	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/domain/port"
	"github.com/signdata/signdata-processing-service/internal/infra/metrics"
	"github.com/signdata/signdata-processing-service/internal/sequence"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const (
	MessageSaved             = "saved"
	MessageMissingLabel      = "Missing label or frames"
	messageInvalidFramesPref = "Invalid frames payload: "
)

type CameraConfig struct {
	// TargetFrames > 0 pads or truncates camera sequences like the video path does.
	TargetFrames   int
	DatasetVersion string
}

// CameraResult is reported to the client as-is; camera ingestion never returns an error.
type CameraResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

type CameraIngestion struct {
	registry port.SampleRegistry
	cfg      CameraConfig
	logger   *zap.Logger
}

func NewCameraIngestion(registry port.SampleRegistry, cfg CameraConfig, logger *zap.Logger) *CameraIngestion {
	return &CameraIngestion{registry: registry, cfg: cfg, logger: logger}
}

// Process converts client-side landmarks into one sample. The label is only
// registered once the frames are known to convert.
func (c *CameraIngestion) Process(ctx context.Context, payload camera.Payload) CameraResult {
	_, span := otel.Tracer("usecase").Start(ctx, "CameraIngestion.Process")
	defer span.End()

	if strings.TrimSpace(payload.Label) == "" || len(payload.Frames) == 0 {
		return CameraResult{Message: MessageMissingLabel}
	}
	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	log := c.logger.With(zap.String("label", payload.Label), zap.String("session_id", sessionID))

	seq, err := camera.ToSequence(payload.Frames)
	if err != nil {
		log.Warn("camera payload rejected", zap.Error(err))
		return CameraResult{Message: messageInvalidFramesPref + err.Error()}
	}
	if c.cfg.TargetFrames > 0 {
		seq = sequence.Normalize(seq, c.cfg.TargetFrames)
	}

	classIdx, folder, err := c.registry.RegisterLabel(payload.Label, "", c.cfg.DatasetVersion)
	if err != nil {
		log.Error("register label failed", zap.Error(err))
		return CameraResult{Message: err.Error()}
	}

	meta := entity.SampleMetadata{
		User:      payload.User,
		SessionID: sessionID,
		Frames:    len(payload.Frames),
		Source:    entity.SourceCamera,
		Dialect:   payload.Dialect,
	}
	path, err := c.registry.SaveSample(seq, classIdx, folder, meta)
	if err != nil {
		log.Error("save camera sample failed", zap.Error(err))
		return CameraResult{Message: err.Error()}
	}
	metrics.SamplesSavedTotal.WithLabelValues(entity.SourceCamera).Inc()

	rows, dim := seq.Shape()
	log.Info("camera sample saved", zap.Int("class_idx", classIdx), zap.Int("frames", rows), zap.Int("dim", dim))
	return CameraResult{Success: true, ID: sessionID, Path: path, Message: MessageSaved}
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
