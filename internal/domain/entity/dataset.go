package entity

const (
	SourceVideo  = "video"
	SourceCamera = "camera"
)

type Label struct {
	ClassIdx       int    `json:"class_idx" yaml:"class_idx"`
	LabelOriginal  string `json:"label_original" yaml:"label_original"`
	Slug           string `json:"slug" yaml:"slug"`
	FolderName     string `json:"folder_name" yaml:"folder_name"`
	CreatedAt      string `json:"created_at" yaml:"created_at"`
	DatasetVersion string `json:"dataset_version" yaml:"dataset_version"`
	Notes          string `json:"notes" yaml:"notes"`
}

type Sample struct {
	SampleID   string `json:"sample_id" yaml:"sample_id"`
	ClassIdx   int    `json:"class_idx" yaml:"class_idx"`
	FolderName string `json:"folder_name" yaml:"folder_name"`
	File       string `json:"file" yaml:"file"`
	User       string `json:"user" yaml:"user"`
	SessionID  string `json:"session_id" yaml:"session_id"`
	Frames     string `json:"frames" yaml:"frames"`
	Duration   string `json:"duration" yaml:"duration"`
	Source     string `json:"source" yaml:"source"`
	Dialect    string `json:"dialect" yaml:"dialect"`
	CreatedAt  string `json:"created_at" yaml:"created_at"`
}

// SampleMetadata is what a caller knows about a sample before it is saved.
// Extra keys are written to the JSON sidecar untouched.
type SampleMetadata struct {
	User      string
	SessionID string
	Frames    int
	Duration  *float64
	Source    string
	Dialect   string
	CreatedAt string
	Extra     map[string]any
}

type Session struct {
	SessionID    string   `json:"session_id" yaml:"session_id"`
	User         string   `json:"user" yaml:"user"`
	Labels       []string `json:"labels" yaml:"labels"`
	SamplesCount int      `json:"samples_count" yaml:"samples_count"`
	CreatedAt    string   `json:"created_at" yaml:"created_at"`
}
