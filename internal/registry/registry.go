package registry

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	LabelsFile  = "labels.csv"
	SamplesFile = "samples.csv"
	FeaturesDir = "features"

	DefaultDatasetVersion = "v1"
)

var (
	ErrLabelNotFound  = errors.New("label not found")
	ErrLabelInUse     = errors.New("label is referenced by samples")
	ErrLabelExists    = errors.New("label already exists")
	ErrSameLabel      = errors.New("source and destination labels are the same")
	ErrSampleNotFound = errors.New("sample not found")
)

// Registry owns labels.csv, samples.csv and the features tree under one dataset root.
// Every mutation holds mu for its whole read-modify-write cycle.
type Registry struct {
	root   string
	logger *zap.Logger

	mu     sync.Mutex
	now    func() time.Time
	newID  func() string
	rename func(oldpath, newpath string) error
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newID = gen }
}

func New(root string, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		root:   root,
		logger: logger,
		now:    time.Now,
		newID:  shortHex,
		rename: os.Rename,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Root() string {
	return r.root
}

func (r *Registry) FeatureRoot() string {
	return filepath.Join(r.root, FeaturesDir)
}

func (r *Registry) labelsPath() string {
	return filepath.Join(r.root, LabelsFile)
}

func (r *Registry) samplesPath() string {
	return filepath.Join(r.root, SamplesFile)
}

func (r *Registry) folderPath(folder string) string {
	return filepath.Join(r.FeatureRoot(), folder)
}

// Timestamp renders t the way every created_at column is written: UTC, microseconds, trailing Z.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000") + "Z"
}

func (r *Registry) timestamp() string {
	return Timestamp(r.now())
}

func shortHex() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}
