package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/signdata/signdata-processing-service/internal/domain/port"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type ExportResult struct {
	ObjectKey string `json:"object_key"`
	Size      int64  `json:"size"`
}

// ExportDatasetUseCase zips the dataset root (CSVs and feature tree) and uploads it.
type ExportDatasetUseCase struct {
	root     string
	archiver port.Archiver
	storage  port.ArchiveStorage
	tempDir  string
	now      func() time.Time
	logger   *zap.Logger
}

func NewExportDatasetUseCase(root string, archiver port.Archiver, storage port.ArchiveStorage, tempDir string, logger *zap.Logger) *ExportDatasetUseCase {
	return &ExportDatasetUseCase{
		root:     root,
		archiver: archiver,
		storage:  storage,
		tempDir:  tempDir,
		now:      time.Now,
		logger:   logger,
	}
}

func (uc *ExportDatasetUseCase) Execute(ctx context.Context) (*ExportResult, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "ExportDatasetUseCase.Execute")
	defer span.End()

	if err := os.MkdirAll(uc.tempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	zipPath := filepath.Join(uc.tempDir, "export_"+uuid.NewString()+".zip")
	defer os.Remove(zipPath)

	if err := uc.archiver.CreateArchive(ctx, uc.root, nil, zipPath); err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	f, err := os.Open(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("exports/dataset_%s.zip", uc.now().UTC().Format("20060102T150405Z"))
	if err := uc.storage.UploadArchive(ctx, key, f, info.Size()); err != nil {
		return nil, err
	}

	uc.logger.Info("dataset exported", zap.String("object_key", key), zap.Int64("size", info.Size()))
	return &ExportResult{ObjectKey: key, Size: info.Size()}, nil
}
