package entity

import "github.com/google/uuid"

const (
	TaskStatusDone  = "done"
	TaskStatusError = "error"
)

// VideoIngestionMessage is the inbound message from the ingestion queue.
type VideoIngestionMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	Label     string    `json:"label"`
	SessionID string    `json:"session_id"`
	Dialect   string    `json:"dialect"`
	VideoKey  string    `json:"video_key"`
	FileSize  int64     `json:"file_size"`
	UserEmail string    `json:"user_email"`
}

// IngestionResult mirrors what the pipeline reports back for a finished job.
type IngestionResult struct {
	ClassIdx      int      `json:"class_idx"`
	FolderName    string   `json:"folder_name"`
	SavedPaths    []string `json:"saved"`
	FramesSampled int      `json:"frames_sampled"`
}

// IngestionStatusMessage is the outbound message published to the status queue.
type IngestionStatusMessage struct {
	JobID        uuid.UUID        `json:"job_id"`
	UserID       string           `json:"user_id"`
	Label        string           `json:"label"`
	SessionID    string           `json:"session_id"`
	Status       JobStatus        `json:"status"`
	TaskStatus   string           `json:"task_status"`
	VideoKey     string           `json:"video_key"`
	Result       *IngestionResult `json:"result,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Attempt      int              `json:"attempt"`
	MaxAttempts  int              `json:"max_attempts"`
}
