package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// IngestionJob tracks one uploaded video through the processing pipeline.
type IngestionJob struct {
	ID            uuid.UUID  `json:"id"`
	UserID        string     `json:"user_id"`
	Label         string     `json:"label"`
	SessionID     string     `json:"session_id"`
	Dialect       string     `json:"dialect"`
	VideoKey      string     `json:"video_key"`
	Status        JobStatus  `json:"status"`
	ClassIdx      int        `json:"class_idx"`
	SavedCount    int        `json:"saved_count"`
	FrameCount    int        `json:"frame_count"`
	FileSize      int64      `json:"file_size"`
	VideoDuration float64    `json:"video_duration"`
	Attempt       int        `json:"attempt"`
	MaxAttempts   int        `json:"max_attempts"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func NewIngestionJob(userID, label, sessionID, dialect, videoKey string, fileSize int64, maxAttempts int) *IngestionJob {
	now := time.Now().UTC()
	return &IngestionJob{
		ID:          uuid.New(),
		UserID:      userID,
		Label:       label,
		SessionID:   sessionID,
		Dialect:     dialect,
		VideoKey:    videoKey,
		FileSize:    fileSize,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *IngestionJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
}

func (j *IngestionJob) MarkCompleted(classIdx, savedCount, frameCount int, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ClassIdx = classIdx
	j.SavedCount = savedCount
	j.FrameCount = frameCount
	j.VideoDuration = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *IngestionJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *IngestionJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
